package triage

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules is the full set of rule tables the engine runs on. A Rules value is
// treated as immutable once it has been handed to NewEngine.
type Rules struct {
	Version     string          `yaml:"version"`
	Thresholds  Thresholds      `yaml:"thresholds"`
	Policy      Policy          `yaml:"policy"`
	RiskFactors RiskFactors     `yaml:"risk_factors"`
	RiskGroups  RiskGroupLabels `yaml:"risk_groups"`
	Extracted   ExtractedValues `yaml:"extracted"`
	Lexicon     Lexicon         `yaml:"lexicon"`
	Questions   []QuestionGroup `yaml:"questions"`
}

// Thresholds are the lower bounds of the pharmacy, gp and emergency bands.
// Anything below Pharmacy is self care.
type Thresholds struct {
	Pharmacy  int `yaml:"pharmacy"`
	GP        int `yaml:"gp"`
	Emergency int `yaml:"emergency"`
}

// Policy holds the stop and selection constants of the state machine.
type Policy struct {
	MinQuestions         int  `yaml:"min_questions"`
	MaxQuestions         int  `yaml:"max_questions"`
	SeverityWindow       int  `yaml:"severity_window"`
	DecisionMinQuestions int  `yaml:"decision_min_questions"`
	ConfidenceStop       int  `yaml:"confidence_stop"`
	DecisionMargin       int  `yaml:"decision_margin"`
	StrictTierFilter     bool `yaml:"strict_tier_filter"`
}

type Term struct {
	Text   string `yaml:"term"`
	Weight int    `yaml:"weight"`
}

type DurationBucket struct {
	Label   string `yaml:"label"`
	MinDays int    `yaml:"min_days"`
	Weight  int    `yaml:"weight"`
}

type RiskFactors struct {
	RedFlags   []Term           `yaml:"red_flags"`
	Severity   []Term           `yaml:"severity"`
	Duration   []DurationBucket `yaml:"duration"`
	Trend      []Term           `yaml:"trend"`
	RiskGroup  []Term           `yaml:"risk_group"`
	SelfCare   []Term           `yaml:"self_care"`
	Associated []Term           `yaml:"associated"`
}

// Terms returns the weighted terms of a category. Duration buckets are
// returned as terms keyed by their label.
func (rf RiskFactors) Terms(c Category) []Term {
	switch c {
	case CategoryRedFlags:
		return rf.RedFlags
	case CategorySeverity:
		return rf.Severity
	case CategoryTrend:
		return rf.Trend
	case CategoryRiskGroup:
		return rf.RiskGroup
	case CategorySelfCare:
		return rf.SelfCare
	case CategoryAssociated:
		return rf.Associated
	case CategoryDuration:
		terms := make([]Term, 0, len(rf.Duration))
		for _, b := range rf.Duration {
			terms = append(terms, Term{Text: b.Label, Weight: b.Weight})
		}
		return terms
	}
	return nil
}

// RiskGroupLabels are the risk_group values the engine writes when it derives
// a risk group from age or chronic conditions.
type RiskGroupLabels struct {
	Infant         string `yaml:"infant"`
	Elderly        string `yaml:"elderly"`
	Chronic        string `yaml:"chronic"`
	None           string `yaml:"none"`
	InfantUnderAge int    `yaml:"infant_under_age"`
	ElderlyOverAge int    `yaml:"elderly_over_age"`
}

// ExtractedValues are the answer values written for signals found in text.
type ExtractedValues struct {
	DurationFormat string `yaml:"duration_format"`
	Worsening      string `yaml:"worsening"`
	SelfCareTried  string `yaml:"self_care_tried"`
}

type Rewrite struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type VariantGroup struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants"`
}

type SeverityIndicators struct {
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
	Low    []string `yaml:"low"`
}

type Lexicon struct {
	Slang       []Rewrite          `yaml:"slang"`
	Variants    []VariantGroup     `yaml:"variants"`
	Severity    SeverityIndicators `yaml:"severity"`
	Worsening   []string           `yaml:"worsening"`
	SelfCare    []string           `yaml:"self_care"`
	Anxiety     []string           `yaml:"anxiety"`
	RedFlags    []string           `yaml:"red_flags"`
	Emergency   []string           `yaml:"emergency"`
	Symptoms    []string           `yaml:"symptoms"`
	Reassurance []string           `yaml:"reassurance"`
}

type QuestionGroup struct {
	Name      string     `yaml:"group"`
	Questions []Question `yaml:"questions"`
}

var (
	defaultRulesOnce sync.Once
	defaultRules     *Rules
)

// DefaultRules returns the rule tables compiled into the binary.
func DefaultRules() *Rules {
	defaultRulesOnce.Do(func() {
		r, err := ParseRules(defaultRulesYAML)
		if err != nil {
			panic(fmt.Sprintf("triage: embedded rules are invalid: %v", err))
		}
		defaultRules = r
	})
	return defaultRules
}

// LoadRules reads and validates a rules document from disk.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ladderQuestions are the ids the selector refers to directly.
var ladderQuestions = []QuestionID{
	QuestionBreathing, QuestionSeverity, QuestionDuration, QuestionTrend,
	QuestionFever, QuestionAge, QuestionSelfCare,
}

func (r *Rules) Validate() error {
	var errs []error

	t := r.Thresholds
	if !(0 < t.Pharmacy && t.Pharmacy < t.GP && t.GP < t.Emergency) {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 < pharmacy < gp < emergency, got %d/%d/%d",
			t.Pharmacy, t.GP, t.Emergency))
	}

	p := r.Policy
	if p.MinQuestions <= 0 || p.MinQuestions > p.MaxQuestions {
		errs = append(errs, fmt.Errorf("policy must satisfy 0 < min_questions <= max_questions, got %d/%d",
			p.MinQuestions, p.MaxQuestions))
	}
	if p.SeverityWindow < 0 || p.DecisionMargin < 0 || p.DecisionMinQuestions < 0 {
		errs = append(errs, errors.New("policy windows and margins must not be negative"))
	}

	if len(r.Lexicon.Reassurance) == 0 {
		errs = append(errs, errors.New("lexicon needs at least one reassurance message"))
	}
	if len(r.RiskFactors.Duration) == 0 {
		errs = append(errs, errors.New("risk_factors.duration needs at least one bucket"))
	}

	known := make(map[QuestionID]bool)
	for _, g := range r.Questions {
		for _, q := range g.Questions {
			if q.ID == "" || q.Text == "" {
				errs = append(errs, fmt.Errorf("question in group %q needs an id and a text", g.Name))
				continue
			}
			if known[q.ID] {
				errs = append(errs, fmt.Errorf("duplicate question id %q", q.ID))
			}
			known[q.ID] = true
			if q.Slot != "" {
				if _, ok := ParseSlot(string(q.Slot)); !ok {
					errs = append(errs, fmt.Errorf("question %q fills unknown slot %q", q.ID, q.Slot))
				}
			}
		}
	}
	for _, id := range ladderQuestions {
		if !known[id] {
			errs = append(errs, fmt.Errorf("question catalog is missing %q", id))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid rules: %w", errors.Join(errs...))
	}
	return nil
}
