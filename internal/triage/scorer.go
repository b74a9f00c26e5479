package triage

import (
	"sort"
	"strings"
)

type weightedTerm struct {
	text   string
	weight int
}

// phraseTable matches canonical phrases longest first. A matched phrase is
// consumed so it cannot also count as a shorter phrase it contains.
type phraseTable []weightedTerm

func newPhraseTable(n *Normalizer, terms []Term) phraseTable {
	index := make(map[string]int)
	var out phraseTable
	for _, t := range terms {
		c := n.Normalize(t.Text)
		if c == "" {
			continue
		}
		if i, ok := index[c]; ok {
			if t.Weight > out[i].weight {
				out[i].weight = t.Weight
			}
			continue
		}
		index[c] = len(out)
		out = append(out, weightedTerm{text: c, weight: t.Weight})
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].text) > len(out[j].text) })
	return out
}

func (p phraseTable) score(normalized string) int {
	total := 0
	for _, t := range p {
		if strings.Contains(normalized, t.text) {
			total += t.weight
			normalized = strings.ReplaceAll(normalized, t.text, "\x00")
		}
	}
	return total
}

// answerTable looks answer values up exactly, first as given and then in
// canonical form.
type answerTable struct {
	literal   map[string]int
	canonical map[string]int
}

func newAnswerTable(n *Normalizer, terms []Term) answerTable {
	t := answerTable{
		literal:   make(map[string]int, len(terms)),
		canonical: make(map[string]int, len(terms)),
	}
	for _, term := range terms {
		if _, ok := t.literal[fold(term.Text)]; !ok {
			t.literal[fold(term.Text)] = term.Weight
		}
		if c := n.Normalize(term.Text); c != "" {
			if _, ok := t.canonical[c]; !ok {
				t.canonical[c] = term.Weight
			}
		}
	}
	return t
}

func (t answerTable) lookup(n *Normalizer, value string) int {
	if w, ok := t.literal[fold(value)]; ok {
		return w
	}
	return t.canonical[n.Normalize(value)]
}

// Scorer turns text and answers into a risk score and a tier.
type Scorer struct {
	norm       *Normalizer
	factors    RiskFactors
	thresholds Thresholds
	buckets    []DurationBucket

	redFlags phraseTable
	severity phraseTable

	severityAnswers answerTable
	trend           answerTable
	riskGroup       answerTable
	selfCare        answerTable
	associated      []Term
	bucketLabels    map[string]int
}

func NewScorer(n *Normalizer, rf RiskFactors, th Thresholds) *Scorer {
	s := &Scorer{
		norm:            n,
		thresholds:      th,
		buckets:         append([]DurationBucket(nil), rf.Duration...),
		redFlags:        newPhraseTable(n, rf.RedFlags),
		severity:        newPhraseTable(n, rf.Severity),
		severityAnswers: newAnswerTable(n, rf.Severity),
		trend:           newAnswerTable(n, rf.Trend),
		riskGroup:       newAnswerTable(n, rf.RiskGroup),
		selfCare:        newAnswerTable(n, rf.SelfCare),
		associated:      rf.Associated,
		factors:         rf,
		bucketLabels:    make(map[string]int, len(rf.Duration)),
	}
	sort.SliceStable(s.buckets, func(i, j int) bool { return s.buckets[i].MinDays > s.buckets[j].MinDays })
	for _, b := range rf.Duration {
		s.bucketLabels[fold(b.Label)] = b.Weight
	}
	return s
}

// Score computes the risk score of a symptom text and its answers. The result
// is never negative.
func (s *Scorer) Score(text string, answers Answers) int {
	return s.score(s.norm.Analyze(text), answers)
}

func (s *Scorer) score(sig Signals, answers Answers) int {
	total := s.redFlags.score(sig.Normalized)
	total += s.severity.score(sig.Normalized)
	total += s.durationWeight(sig, answers)

	if answers.Has(SlotSeverity) {
		total += s.severityAnswers.lookup(s.norm, answers.Get(SlotSeverity))
	}
	if answers.Has(SlotTrend) {
		total += s.trend.lookup(s.norm, answers.Get(SlotTrend))
	}
	if answers.Has(SlotRiskGroup) {
		total += s.riskGroup.lookup(s.norm, answers.Get(SlotRiskGroup))
	}
	if answers.Has(SlotSelfCareResponse) {
		total += s.selfCare.lookup(s.norm, answers.Get(SlotSelfCareResponse))
	}
	if answers.Has(SlotAssociatedSymptoms) {
		value := fold(answers.Get(SlotAssociatedSymptoms))
		for _, t := range s.associated {
			if term := fold(t.Text); term != "" && strings.Contains(value, term) {
				total += t.Weight
			}
		}
	}

	if total < 0 {
		return 0
	}
	return total
}

func (s *Scorer) durationWeight(sig Signals, answers Answers) int {
	if sig.HasDuration {
		return s.bucketWeight(sig.DurationDays)
	}
	if !answers.Has(SlotDuration) {
		return 0
	}
	value := answers.Get(SlotDuration)
	if w, ok := s.bucketLabels[fold(value)]; ok {
		return w
	}
	if days, ok := s.norm.ExtractDuration(value); ok {
		return s.bucketWeight(days)
	}
	if days, ok := leadingInt(value); ok {
		return s.bucketWeight(days)
	}
	return 0
}

func (s *Scorer) bucketWeight(days int) int {
	for _, b := range s.buckets {
		if days >= b.MinDays {
			return b.Weight
		}
	}
	return 0
}

// Tier maps a score onto the highest band whose floor it reaches.
func (s *Scorer) Tier(score int) Tier {
	switch {
	case score >= s.thresholds.Emergency:
		return TierEmergency
	case score >= s.thresholds.GP:
		return TierGP
	case score >= s.thresholds.Pharmacy:
		return TierPharmacy
	}
	return TierSelfCare
}

// WouldChangeTier reports whether adding the weight of value in category c to
// score moves the tier. Questions that feed no category always qualify.
func (s *Scorer) WouldChangeTier(score int, c Category, value string) bool {
	if c == "" {
		return true
	}
	w, ok := s.weightOf(c, value)
	if !ok {
		return false
	}
	return s.Tier(score) != s.Tier(score+w)
}

// CouldChangeTier reports whether any known answer in category c would move
// the tier.
func (s *Scorer) CouldChangeTier(score int, c Category) bool {
	if c == "" {
		return true
	}
	for _, t := range s.termsOf(c) {
		if s.Tier(score) != s.Tier(score+t.Weight) {
			return true
		}
	}
	return false
}

func (s *Scorer) weightOf(c Category, value string) (int, bool) {
	for _, t := range s.termsOf(c) {
		if fold(t.Text) == fold(value) {
			return t.Weight, true
		}
	}
	return 0, false
}

func (s *Scorer) termsOf(c Category) []Term {
	return s.factors.Terms(c)
}
