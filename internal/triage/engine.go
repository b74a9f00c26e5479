package triage

import (
	"fmt"
	"strconv"
	"strings"
)

// Engine is the triage decision engine. It is safe for concurrent use; all of
// its state is read-only after construction.
type Engine struct {
	rules    *Rules
	norm     *Normalizer
	scorer   *Scorer
	catalog  *QuestionCatalog
	selector *Selector
}

func NewEngine(rules *Rules) (*Engine, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	norm := NewNormalizer(rules.Lexicon)
	scorer := NewScorer(norm, rules.RiskFactors, rules.Thresholds)
	catalog := NewQuestionCatalog(rules.Questions)
	return &Engine{
		rules:    rules,
		norm:     norm,
		scorer:   scorer,
		catalog:  catalog,
		selector: NewSelector(catalog, scorer, rules.Policy, rules.Thresholds),
	}, nil
}

// MustNewEngine is NewEngine for rule sets known to be valid.
func MustNewEngine(rules *Rules) *Engine {
	e, err := NewEngine(rules)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Version() string { return e.rules.Version }
func (e *Engine) Rules() *Rules { return e.rules }
func (e *Engine) Normalizer() *Normalizer { return e.norm }
func (e *Engine) Scorer() *Scorer { return e.scorer }
func (e *Engine) Questions() *QuestionCatalog { return e.catalog }
func (e *Engine) Normalize(text string) string { return e.norm.Normalize(text) }
func (e *Engine) TierFor(score int) Tier { return e.scorer.Tier(score) }

func (e *Engine) Confidence(a Answers, text string, count int) int {
	return Confidence(a, e.norm.Analyze(text), count)
}

// RiskScore scores text together with the answers gathered so far.
func (e *Engine) RiskScore(text string, answers Answers) int {
	return e.scorer.Score(text, answers)
}

// SelectNextQuestion runs the question ladder on its own.
func (e *Engine) SelectNextQuestion(text string, answers Answers, asked []QuestionID, questionCount int) (Question, bool) {
	sig := e.norm.Analyze(text)
	return e.selector.Next(SelectionInput{
		Signals:       sig,
		Answers:       answers,
		Asked:         NewAskedSet(asked),
		QuestionCount: questionCount,
		Score:         e.scorer.score(sig, answers),
	})
}

// Turn is the input of one assessment step.
type Turn struct {
	Symptom       string
	Answers       Answers
	Asked         []QuestionID
	QuestionCount int
}

// Decision is the outcome of one assessment step. When NeedMoreInfo is false
// the session is terminal and Tier is always concrete.
type Decision struct {
	NeedMoreInfo bool
	Question     *Question
	Prompt       string
	Tier         Tier
	Reassurance  string
	RiskScore    int
	Confidence   int
	StopReason   StopReason
	Fallback     bool
	Answers      Answers
	Signals      Signals
}

// Assess decides whether to keep asking or to stop with a tier.
func (e *Engine) Assess(t Turn) Decision {
	sig := e.norm.Analyze(t.Symptom)
	answers := e.Enrich(t.Answers, sig)

	d := Decision{
		Answers:    answers,
		Signals:    sig,
		RiskScore:  e.scorer.score(sig, answers),
		Confidence: Confidence(answers, sig, t.QuestionCount),
	}
	if sig.Anxious {
		d.Reassurance = e.norm.Reassurance(t.QuestionCount)
	}

	switch {
	case sig.RedFlag:
		d.Tier, d.StopReason = TierEmergency, StopRedFlag
		return d
	case sig.Emergency:
		d.Tier, d.StopReason = TierEmergency, StopEmergencyKeyword
		return d
	}

	tier := e.decisiveTier(d.RiskScore, t.QuestionCount, answers)
	if reason, stop := e.stopReason(tier, d.Confidence, t.QuestionCount); stop {
		return terminate(d, tier, reason)
	}

	q, ok := e.selector.Next(SelectionInput{
		Signals:       sig,
		Answers:       answers,
		Asked:         NewAskedSet(t.Asked),
		QuestionCount: t.QuestionCount,
		Score:         d.RiskScore,
	})
	if !ok {
		return terminate(d, tier, StopLadderExhausted)
	}

	d.NeedMoreInfo = true
	d.Question = &q
	d.Tier = tier
	d.Prompt = q.Text
	if d.Reassurance != "" {
		d.Prompt = d.Reassurance + "\n\n" + q.Text
	}
	return d
}

// terminate ends the session. An undecided tier falls back to gp.
func terminate(d Decision, tier Tier, reason StopReason) Decision {
	if !tier.Concrete() {
		tier = TierGP
		d.Fallback = true
	}
	d.Tier = tier
	d.StopReason = reason
	return d
}

// Enrich fills empty slots from signals found in the text and derives a risk
// group from an answered age. Explicit answers always win.
func (e *Engine) Enrich(answers Answers, sig Signals) Answers {
	out := answers.Clone()
	ex := e.rules.Extracted
	if sig.HasDuration && !out.Has(SlotDuration) {
		out[SlotDuration] = fmt.Sprintf(ex.DurationFormat, sig.DurationDays)
	}
	if sig.Worsening && !out.Has(SlotTrend) {
		out[SlotTrend] = ex.Worsening
	}
	if sig.SelfCare && !out.Has(SlotSelfCareResponse) {
		out[SlotSelfCareResponse] = ex.SelfCareTried
	}
	if !out.Has(SlotRiskGroup) && out.Has(SlotAge) {
		if age, ok := leadingInt(out.Get(SlotAge)); ok {
			if g := e.riskGroupForAge(age); g != "" {
				out[SlotRiskGroup] = g
			}
		}
	}
	return out
}

func (e *Engine) riskGroupForAge(age int) string {
	rg := e.rules.RiskGroups
	switch {
	case age < rg.InfantUnderAge:
		return rg.Infant
	case age > rg.ElderlyOverAge:
		return rg.Elderly
	}
	return ""
}

// PatientContext is the part of a health profile the engine uses.
type PatientContext struct {
	Age             int
	HasAge          bool
	Gender          string
	ChronicDiseases []string
	Allergies       []string
}

// ApplyPatientContext merges profile facts into the answers. A chronic
// condition outranks an age-derived risk group; a risk group the patient
// gave explicitly is kept.
func (e *Engine) ApplyPatientContext(answers Answers, pc PatientContext) Answers {
	out := answers.Clone()
	if g := strings.TrimSpace(pc.Gender); g != "" {
		out[SlotGender] = g
	}

	group := ""
	if pc.HasAge {
		out[SlotAge] = strconv.Itoa(pc.Age)
		group = e.riskGroupForAge(pc.Age)
	}
	if chronic := nonEmpty(pc.ChronicDiseases); len(chronic) > 0 {
		out[SlotChronicDisease] = strings.Join(chronic, ", ")
		group = e.rules.RiskGroups.Chronic
	}
	if group != "" && !out.Has(SlotRiskGroup) {
		out[SlotRiskGroup] = group
	}

	if allergies := nonEmpty(pc.Allergies); len(allergies) > 0 {
		out[SlotAllergy] = strings.Join(allergies, ", ")
	}
	return out
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
