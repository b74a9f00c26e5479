package triage

import "fmt"

// Tier is a triage urgency level. Tiers are totally ordered by Rank.
type Tier string

const (
	TierUncertain Tier = "uncertain"
	TierSelfCare  Tier = "self_care"
	TierPharmacy  Tier = "pharmacy"
	TierGP        Tier = "gp"
	TierEmergency Tier = "emergency"
)

func (t Tier) Rank() int {
	switch t {
	case TierSelfCare:
		return 1
	case TierPharmacy:
		return 2
	case TierGP:
		return 3
	case TierEmergency:
		return 4
	}
	return 0
}

// Concrete reports whether t is a decision that can be shown to a patient.
func (t Tier) Concrete() bool {
	return t.Rank() > 0
}

func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierUncertain, TierSelfCare, TierPharmacy, TierGP, TierEmergency:
		return t, nil
	}
	return "", fmt.Errorf("unknown triage tier %q", s)
}

// Category names a risk factor table.
type Category string

const (
	CategoryRedFlags   Category = "red_flags"
	CategorySeverity   Category = "severity"
	CategoryDuration   Category = "duration"
	CategoryTrend      Category = "trend"
	CategoryRiskGroup  Category = "risk_group"
	CategorySelfCare   Category = "self_care"
	CategoryAssociated Category = "associated"
)
