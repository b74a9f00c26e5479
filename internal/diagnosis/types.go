package diagnosis

import (
	"time"

	"symptom-triage/internal/triage"
)

// Request is everything a generator may use to explain a triage outcome.
// Tier and RiskScore are already decided by the engine.
type Request struct {
	SessionID string
	Symptoms  []string
	Answers   triage.Answers
	Tier      triage.Tier
	RiskScore int
}

type Diagnosis struct {
	SessionID       string      `json:"session_id"`
	Tier            triage.Tier `json:"triage_level"`
	TierLabel       string      `json:"triage_label"`
	RiskScore       int         `json:"risk_score"`
	Summary         string      `json:"summary"`
	Recommendations []string    `json:"recommendations"`
	WarningSigns    []string    `json:"warning_signs,omitempty"`
	Source          string      `json:"source"`
	CreatedAt       time.Time   `json:"created_at"`
}

var tierLabels = map[triage.Tier]string{
	triage.TierSelfCare:  "ดูแลตัวเองที่บ้าน",
	triage.TierPharmacy:  "ปรึกษาเภสัชกร",
	triage.TierGP:        "พบแพทย์",
	triage.TierEmergency: "ฉุกเฉิน",
	triage.TierUncertain: "ยังประเมินไม่ได้",
}

// TierLabel returns the Thai display name of a tier.
func TierLabel(t triage.Tier) string {
	if l, ok := tierLabels[t]; ok {
		return l
	}
	return string(t)
}

// contextNotes are the recommendations every generator adds for the
// patient's allergies and chronic conditions.
func contextNotes(a triage.Answers) []string {
	var notes []string
	if v := a.Get(triage.SlotAllergy); v != "" {
		notes = append(notes, "แจ้งแพทย์หรือเภสัชกรทุกครั้งว่าคุณแพ้ยา: "+v)
	}
	if v := a.Get(triage.SlotChronicDisease); v != "" && v != "ไม่มี" {
		notes = append(notes, "คุณมีโรคประจำตัว ("+v+") ควรรับประทานยาประจำตัวต่อเนื่องและแจ้งแพทย์ถึงอาการครั้งนี้")
	}
	return notes
}
