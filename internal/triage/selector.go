package triage

// SelectionInput is everything the selector looks at for one turn.
type SelectionInput struct {
	Signals       Signals
	Answers       Answers
	Asked         AskedSet
	QuestionCount int
	Score         int
}

// Selector walks the question ladder and returns the first rung that is
// still open.
type Selector struct {
	catalog    *QuestionCatalog
	scorer     *Scorer
	policy     Policy
	thresholds Thresholds
}

func NewSelector(catalog *QuestionCatalog, scorer *Scorer, policy Policy, th Thresholds) *Selector {
	return &Selector{catalog: catalog, scorer: scorer, policy: policy, thresholds: th}
}

// Next picks the next question, or reports false when nothing more is needed.
func (s *Selector) Next(in SelectionInput) (Question, bool) {
	if in.QuestionCount >= s.policy.MaxQuestions {
		return Question{}, false
	}
	if in.Asked == nil {
		in.Asked = AskedSet{}
	}

	// One red-flag screening question per session, never filtered.
	redFlags := s.catalog.Group(GroupRedFlags)
	if !in.Signals.RedFlag && !askedAny(in.Asked, redFlags) {
		for _, q := range redFlags {
			if !in.Asked[q.ID] {
				return q, true
			}
		}
	}

	severityKnown := in.Answers.Has(SlotSeverity) || in.Signals.Severity != SeverityNone
	if in.QuestionCount < s.policy.SeverityWindow && !severityKnown {
		if q, ok := s.open(QuestionSeverity, in); ok {
			return q, true
		}
	}

	if !in.Signals.HasDuration && !in.Answers.Has(SlotDuration) {
		if q, ok := s.open(QuestionDuration, in); ok {
			return q, true
		}
	}

	if !in.Signals.Worsening && !in.Answers.Has(SlotTrend) {
		if q, ok := s.open(QuestionTrend, in); ok {
			return q, true
		}
	}

	if in.Score >= s.thresholds.Pharmacy && !in.Answers.Has(SlotAssociatedSymptoms) && s.worthAsking(CategoryAssociated, in) {
		for _, q := range s.catalog.Group(GroupAssociatedSymptoms) {
			if !in.Asked[q.ID] {
				return q, true
			}
		}
	}

	if !in.Answers.Has(SlotRiskGroup) && !in.Answers.Has(SlotAge) {
		if q, ok := s.open(QuestionAge, in); ok {
			return q, true
		}
	}

	if !in.Signals.SelfCare && !in.Answers.Has(SlotSelfCareResponse) {
		if q, ok := s.open(QuestionSelfCare, in); ok {
			return q, true
		}
	}

	return Question{}, false
}

func (s *Selector) open(id QuestionID, in SelectionInput) (Question, bool) {
	q, ok := s.catalog.Get(id)
	if !ok || in.Asked[id] {
		return Question{}, false
	}
	if !s.worthAsking(q.Category, in) {
		return Question{}, false
	}
	return q, true
}

// worthAsking applies the tier-change filter when the policy enables it.
func (s *Selector) worthAsking(c Category, in SelectionInput) bool {
	if !s.policy.StrictTierFilter {
		return true
	}
	return s.scorer.CouldChangeTier(in.Score, c)
}

func askedAny(asked AskedSet, qs []Question) bool {
	for _, q := range qs {
		if asked[q.ID] {
			return true
		}
	}
	return false
}
