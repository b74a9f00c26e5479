package diagnosis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"symptom-triage/internal/triage"
)

type tierAdvice struct {
	summary         string
	recommendations []string
}

var adviceByTier = map[triage.Tier]tierAdvice{
	triage.TierSelfCare: {
		summary: "อาการของคุณอยู่ในระดับที่ดูแลตัวเองที่บ้านได้",
		recommendations: []string{
			"พักผ่อนให้เพียงพอและดื่มน้ำมาก ๆ",
			"สังเกตอาการต่อเนื่อง 24-48 ชั่วโมง",
			"หากอาการไม่ดีขึ้นภายใน 3 วัน ควรปรึกษาเภสัชกรหรือแพทย์",
		},
	},
	triage.TierPharmacy: {
		summary: "อาการของคุณควรได้รับคำแนะนำจากเภสัชกร",
		recommendations: []string{
			"ปรึกษาเภสัชกรที่ร้านยาใกล้บ้านเพื่อเลือกยาบรรเทาอาการ",
			"ใช้ยาตามขนาดที่เภสัชกรแนะนำและอ่านฉลากก่อนใช้ทุกครั้ง",
			"หากอาการแย่ลงหรือไม่ดีขึ้นภายใน 2-3 วัน ควรพบแพทย์",
		},
	},
	triage.TierGP: {
		summary: "อาการของคุณควรได้รับการตรวจจากแพทย์",
		recommendations: []string{
			"นัดพบแพทย์ที่คลินิกหรือโรงพยาบาลภายใน 24 ชั่วโมง",
			"จดบันทึกอาการและยาที่ใช้ไปแล้วเพื่อแจ้งแพทย์",
			"หลีกเลี่ยงการซื้อยามารับประทานเองก่อนพบแพทย์",
		},
	},
	triage.TierEmergency: {
		summary: "อาการของคุณอาจเป็นภาวะฉุกเฉิน ต้องได้รับการรักษาทันที",
		recommendations: []string{
			"โทร 1669 หรือไปห้องฉุกเฉินที่ใกล้ที่สุดทันที",
			"อย่าขับรถไปเอง ให้ผู้อื่นพาไปหรือรอรถพยาบาล",
			"ไม่ควรรับประทานอาหารหรือยาใด ๆ จนกว่าจะพบแพทย์",
		},
	},
}

var commonWarningSigns = []string{
	"หายใจลำบากหรือหายใจไม่ออก",
	"เจ็บแน่นหน้าอก",
	"ซึมลง สับสน หรือหมดสติ",
	"ไข้สูงเกิน 39 องศาเซลเซียสไม่ลดลง",
}

// TemplateGenerator writes a fixed Thai explanation for each tier.
type TemplateGenerator struct {
	now func() time.Time
}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{now: time.Now}
}

func (g *TemplateGenerator) Generate(_ context.Context, req Request) (*Diagnosis, error) {
	tier := req.Tier
	if !tier.Concrete() {
		tier = triage.TierGP
	}
	advice := adviceByTier[tier]

	var summary strings.Builder
	if symptoms := symptomList(req.Symptoms); symptoms != "" {
		fmt.Fprintf(&summary, "อาการที่แจ้ง: %s. ", symptoms)
	}
	summary.WriteString(advice.summary)
	fmt.Fprintf(&summary, " (คะแนนความเสี่ยง %d)", req.RiskScore)

	recs := append([]string(nil), advice.recommendations...)
	recs = append(recs, contextNotes(req.Answers)...)

	return &Diagnosis{
		SessionID:       req.SessionID,
		Tier:            tier,
		TierLabel:       TierLabel(tier),
		RiskScore:       req.RiskScore,
		Summary:         summary.String(),
		Recommendations: recs,
		WarningSigns:    append([]string(nil), commonWarningSigns...),
		Source:          "template",
		CreatedAt:       g.now(),
	}, nil
}

func symptomList(symptoms []string) string {
	var parts []string
	for _, s := range symptoms {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
