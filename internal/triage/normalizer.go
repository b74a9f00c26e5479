package triage

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// maxNormalizeRounds bounds the fixed-point loop in Normalize.
const maxNormalizeRounds = 8

type Severity string

const (
	SeverityNone   Severity = ""
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type rewriteRule struct {
	pattern     *regexp.Regexp
	replacement string
}

type durationPattern struct {
	pattern *regexp.Regexp
	days    func(m []string) (int, bool)
}

// Normalizer canonicalizes symptom text and extracts signals from it.
// Keyword sets are stored in canonical form so they can be matched against
// normalized text.
type Normalizer struct {
	slang    []rewriteRule
	variants []rewriteRule

	high, medium, low []string
	worsening         []string
	selfCare          []string
	anxiety           []string
	redFlags          []string
	symptoms          []string
	// emergency keywords are matched literally on the folded input and in
	// canonical form on the normalized text
	emergencyRaw, emergency []string
	reassurance       []string

	durations []durationPattern
}

func NewNormalizer(lx Lexicon) *Normalizer {
	n := &Normalizer{}
	for _, r := range lx.Slang {
		if rule, ok := compileRewrite(r.From, r.To); ok {
			n.slang = append(n.slang, rule)
		}
	}
	for _, g := range lx.Variants {
		for _, v := range g.Variants {
			if rule, ok := compileRewrite(v, g.Canonical); ok {
				n.variants = append(n.variants, rule)
			}
		}
	}

	n.high = n.canonicalSet(lx.Severity.High)
	n.medium = n.canonicalSet(lx.Severity.Medium)
	n.low = n.canonicalSet(lx.Severity.Low)
	n.worsening = n.canonicalSet(lx.Worsening)
	n.selfCare = n.canonicalSet(lx.SelfCare)
	n.anxiety = n.canonicalSet(lx.Anxiety)
	n.redFlags = n.canonicalSet(lx.RedFlags)
	n.symptoms = n.canonicalSet(lx.Symptoms)
	n.emergencyRaw = literalSet(lx.Emergency)
	n.emergency = n.canonicalSet(lx.Emergency)
	n.reassurance = append([]string(nil), lx.Reassurance...)

	n.durations = []durationPattern{
		{regexp.MustCompile(`(\d+)\s*-\s*(\d+)\s*วัน`), func(m []string) (int, bool) {
			a, errA := strconv.Atoi(m[1])
			b, errB := strconv.Atoi(m[2])
			if errA != nil || errB != nil {
				return 0, false
			}
			return int(math.Ceil(float64(a+b) / 2)), true
		}},
		{regexp.MustCompile(`(\d+)\s*วัน`), func(m []string) (int, bool) {
			d, err := strconv.Atoi(m[1])
			return d, err == nil
		}},
		{regexp.MustCompile(`เมื่อวาน`), func([]string) (int, bool) { return 1, true }},
		{regexp.MustCompile(`(\d+)\s*ชั่วโมง`), func(m []string) (int, bool) {
			h, err := strconv.Atoi(m[1])
			if err != nil {
				return 0, false
			}
			return int(math.Ceil(float64(h) / 24)), true
		}},
	}
	return n
}

func compileRewrite(from, to string) (rewriteRule, bool) {
	from = strings.TrimSpace(from)
	if from == "" {
		return rewriteRule{}, false
	}
	return rewriteRule{
		pattern:     regexp.MustCompile("(?i)" + regexp.QuoteMeta(from)),
		replacement: strings.ToLower(to),
	}, true
}

func (n *Normalizer) canonicalSet(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		c := n.Normalize(t)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func literalSet(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = fold(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func fold(text string) string {
	return strings.TrimSpace(strings.ToLower(text))
}

// Normalize folds case, trims, then rewrites slang and spelling variants to
// canonical terms. The two passes repeat until the text no longer changes, so
// Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(text string) string {
	current := fold(text)
	for i := 0; i < maxNormalizeRounds; i++ {
		next := n.rewrite(current)
		if next == current {
			break
		}
		current = next
	}
	return current
}

func (n *Normalizer) rewrite(text string) string {
	for _, r := range n.slang {
		text = r.pattern.ReplaceAllLiteralString(text, r.replacement)
	}
	for _, r := range n.variants {
		text = r.pattern.ReplaceAllLiteralString(text, r.replacement)
	}
	return strings.TrimSpace(text)
}

// DetectSeverity checks high, then low, then medium indicators.
func (n *Normalizer) DetectSeverity(text string) Severity {
	return n.severityOf(n.Normalize(text))
}

func (n *Normalizer) severityOf(normalized string) Severity {
	switch {
	case containsAny(normalized, n.high):
		return SeverityHigh
	case containsAny(normalized, n.low):
		return SeverityLow
	case containsAny(normalized, n.medium):
		return SeverityMedium
	}
	return SeverityNone
}

// ExtractDuration returns the symptom duration in days. Ranges are averaged and
// hours are rounded up to whole days.
func (n *Normalizer) ExtractDuration(text string) (int, bool) {
	return n.durationOf(n.Normalize(text))
}

func (n *Normalizer) durationOf(normalized string) (int, bool) {
	for _, d := range n.durations {
		if m := d.pattern.FindStringSubmatch(normalized); m != nil {
			if days, ok := d.days(m); ok {
				return days, true
			}
		}
	}
	return 0, false
}

func (n *Normalizer) IsWorsening(text string) bool {
	return containsAny(n.Normalize(text), n.worsening)
}

func (n *Normalizer) TriedSelfCare(text string) bool {
	return containsAny(n.Normalize(text), n.selfCare)
}

func (n *Normalizer) IsAnxious(text string) bool {
	return containsAny(n.Normalize(text), n.anxiety)
}

func (n *Normalizer) HasRedFlag(text string) bool {
	return containsAny(n.Normalize(text), n.redFlags)
}

func (n *Normalizer) HasEmergencyKeyword(text string) bool {
	return n.emergencyIn(text, n.Normalize(text))
}

func (n *Normalizer) emergencyIn(raw, normalized string) bool {
	return containsAny(normalized, n.emergency) || containsAny(fold(raw), n.emergencyRaw)
}

// ExtractSymptoms lists the known symptoms present in text, or the whole
// normalized text when none is recognized.
func (n *Normalizer) ExtractSymptoms(text string) []string {
	normalized := n.Normalize(text)
	var found []string
	for _, s := range n.symptoms {
		if strings.Contains(normalized, s) {
			found = append(found, s)
		}
	}
	if len(found) == 0 && normalized != "" {
		return []string{normalized}
	}
	return found
}

// Reassurance returns one of the supportive messages, chosen by index.
func (n *Normalizer) Reassurance(index int) string {
	if len(n.reassurance) == 0 {
		return ""
	}
	if index < 0 {
		index = -index
	}
	return n.reassurance[index%len(n.reassurance)]
}

// Signals are the structured facts read from one symptom utterance.
type Signals struct {
	Normalized   string
	Severity     Severity
	DurationDays int
	HasDuration  bool
	Worsening    bool
	SelfCare     bool
	Anxious      bool
	RedFlag      bool
	Emergency    bool
}

// Analyze extracts every signal from text with a single normalization.
func (n *Normalizer) Analyze(text string) Signals {
	normalized := n.Normalize(text)
	days, hasDuration := n.durationOf(normalized)
	return Signals{
		Normalized:   normalized,
		Severity:     n.severityOf(normalized),
		DurationDays: days,
		HasDuration:  hasDuration,
		Worsening:    containsAny(normalized, n.worsening),
		SelfCare:     containsAny(normalized, n.selfCare),
		Anxious:      containsAny(normalized, n.anxiety),
		RedFlag:      containsAny(normalized, n.redFlags),
		Emergency:    n.emergencyIn(text, normalized),
	}
}

func containsAny(text string, terms []string) bool {
	if text == "" {
		return false
	}
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
