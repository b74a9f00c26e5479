package triage

// StopReason says why a turn ended the session.
type StopReason string

const (
	StopNone             StopReason = ""
	StopRedFlag          StopReason = "red_flag"
	StopEmergencyKeyword StopReason = "emergency_keyword"
	StopDecisiveTier     StopReason = "decisive_tier"
	StopConfidence       StopReason = "confidence"
	StopQuestionCap      StopReason = "question_cap"
	StopLadderExhausted  StopReason = "ladder_exhausted"
)

var confidenceWeights = []struct {
	slot   Slot
	weight int
}{
	{SlotDuration, 20},
	{SlotTrend, 20},
	{SlotRiskGroup, 15},
	{SlotSelfCareResponse, 15},
	{SlotAssociatedSymptoms, 15},
}

const (
	confidencePerQuestion   = 3
	confidenceQuestionLimit = 15
	confidenceTextBonus     = 10
	confidenceMax           = 100
)

// Confidence estimates how much of the picture has been gathered. It is
// independent of the risk score.
func Confidence(answers Answers, sig Signals, questionCount int) int {
	c := 0
	for _, w := range confidenceWeights {
		if answers.Has(w.slot) {
			c += w.weight
		}
	}
	c += min(questionCount*confidencePerQuestion, confidenceQuestionLimit)
	if sig.HasDuration {
		c += confidenceTextBonus
	}
	if sig.Severity != SeverityNone {
		c += confidenceTextBonus
	}
	if sig.Worsening || sig.SelfCare {
		c += confidenceTextBonus
	}
	return min(c, confidenceMax)
}

// decisiveTier returns the score tier once there is enough information to
// commit to it, and TierUncertain before that.
func (e *Engine) decisiveTier(score, questionCount int, answers Answers) Tier {
	if e.hasEnoughInfo(score, questionCount, answers) {
		return e.scorer.Tier(score)
	}
	return TierUncertain
}

func (e *Engine) hasEnoughInfo(score, questionCount int, answers Answers) bool {
	th, p := e.rules.Thresholds, e.rules.Policy
	if questionCount < p.DecisionMinQuestions && score < th.Emergency {
		return false
	}

	m := p.DecisionMargin
	switch e.scorer.Tier(score) {
	case TierEmergency:
		return true
	case TierGP:
		if score >= th.GP+m {
			return true
		}
	case TierPharmacy:
		if score >= th.Pharmacy+m && score < th.GP-m {
			return true
		}
	case TierSelfCare:
		if score < th.Pharmacy-m {
			return true
		}
	}

	return questionCount >= p.MinQuestions &&
		(answers.Has(SlotDuration) || answers.Has(SlotTrend) || answers.Has(SlotSeverity))
}

func (e *Engine) stopReason(tier Tier, confidence, questionCount int) (StopReason, bool) {
	p := e.rules.Policy
	switch {
	case questionCount >= p.MinQuestions && tier.Concrete():
		return StopDecisiveTier, true
	case questionCount >= p.MinQuestions && confidence >= p.ConfidenceStop:
		return StopConfidence, true
	case questionCount >= p.MaxQuestions:
		return StopQuestionCap, true
	}
	return StopNone, false
}
