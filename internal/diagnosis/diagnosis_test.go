package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-triage/internal/llm"
	"symptom-triage/internal/triage"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestTemplateGenerator(t *testing.T) {
	g := NewTemplateGenerator()
	g.now = func() time.Time { return fixedNow }

	for _, tier := range []triage.Tier{triage.TierSelfCare, triage.TierPharmacy, triage.TierGP, triage.TierEmergency} {
		t.Run(string(tier), func(t *testing.T) {
			d, err := g.Generate(context.Background(), Request{
				SessionID: "s1",
				Symptoms:  []string{"ปวดหัว", " ", "มีไข้"},
				Tier:      tier,
				RiskScore: 30,
			})
			require.NoError(t, err)
			assert.Equal(t, tier, d.Tier)
			assert.Equal(t, TierLabel(tier), d.TierLabel)
			assert.Equal(t, "template", d.Source)
			assert.Equal(t, fixedNow, d.CreatedAt)
			assert.Contains(t, d.Summary, "อาการที่แจ้ง: ปวดหัว, มีไข้.")
			assert.Contains(t, d.Summary, "(คะแนนความเสี่ยง 30)")
			assert.Len(t, d.Recommendations, 3)
			assert.NotEmpty(t, d.WarningSigns)
		})
	}
}

func TestTemplateGenerator_UncertainBecomesGP(t *testing.T) {
	d, err := NewTemplateGenerator().Generate(context.Background(), Request{Tier: triage.TierUncertain})
	require.NoError(t, err)
	assert.Equal(t, triage.TierGP, d.Tier)
	assert.NotContains(t, d.Summary, "อาการที่แจ้ง")

	d, err = NewTemplateGenerator().Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, triage.TierGP, d.Tier)
}

func TestTemplateGenerator_PatientContextNotes(t *testing.T) {
	d, err := NewTemplateGenerator().Generate(context.Background(), Request{
		Tier: triage.TierPharmacy,
		Answers: triage.Answers{
			triage.SlotAllergy:        "เพนิซิลลิน",
			triage.SlotChronicDisease: "เบาหวาน, ความดัน",
		},
	})
	require.NoError(t, err)
	require.Len(t, d.Recommendations, 5)
	assert.Contains(t, d.Recommendations[3], "เพนิซิลลิน")
	assert.Contains(t, d.Recommendations[4], "เบาหวาน, ความดัน")

	d, err = NewTemplateGenerator().Generate(context.Background(), Request{
		Tier:    triage.TierPharmacy,
		Answers: triage.Answers{triage.SlotChronicDisease: "ไม่มี"},
	})
	require.NoError(t, err)
	assert.Len(t, d.Recommendations, 3)
}

func TestLLMGenerator(t *testing.T) {
	resp := json.RawMessage(`{"summary":"  คุณมีอาการปวดหัว  ","recommendations":["พักผ่อน"],"warning_signs":["ชัก"]}`)
	mock := llm.NewMockProvider(llm.MockResponse{Content: resp})
	g := NewLLMGenerator(mock, DefaultLLMConfig())
	g.now = func() time.Time { return fixedNow }

	d, err := g.Generate(context.Background(), Request{
		SessionID: "s1",
		Symptoms:  []string{"ปวดหัว"},
		Answers:   triage.Answers{triage.SlotDuration: "2 วัน", triage.SlotAllergy: "แอสไพริน"},
		Tier:      triage.TierPharmacy,
		RiskScore: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, triage.TierPharmacy, d.Tier)
	assert.Equal(t, 25, d.RiskScore)
	assert.Equal(t, "คุณมีอาการปวดหัว", d.Summary)
	assert.Equal(t, []string{"พักผ่อน", "แจ้งแพทย์หรือเภสัชกรทุกครั้งว่าคุณแพ้ยา: แอสไพริน"}, d.Recommendations)
	assert.Equal(t, []string{"ชัก"}, d.WarningSigns)
	assert.Equal(t, "llm:mock", d.Source)

	req, ok := mock.LastRequest()
	require.True(t, ok)
	require.Len(t, req.Messages, 1)
	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "Triage level: pharmacy")
	assert.Contains(t, prompt, "Risk score: 25")
	assert.Contains(t, prompt, "- ปวดหัว")
	assert.Contains(t, prompt, "- allergy: แอสไพริน\n- duration: 2 วัน")
	assert.Equal(t, diagnosisSchema, req.Schema)
}

func TestLLMGenerator_Errors(t *testing.T) {
	tests := []struct {
		name string
		resp llm.MockResponse
	}{
		{"provider error", llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("down")}}},
		{"schema violation", llm.MockResponse{Content: json.RawMessage(`{"summary":"x"}`)}},
		{"empty summary", llm.MockResponse{Content: json.RawMessage(`{"summary":" ","recommendations":["a"],"warning_signs":[]}`)}},
		{"no recommendations", llm.MockResponse{Content: json.RawMessage(`{"summary":"x","recommendations":[],"warning_signs":[]}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewLLMGenerator(llm.NewMockProvider(tt.resp), DefaultLLMConfig())
			_, err := g.Generate(context.Background(), Request{Tier: triage.TierGP})
			assert.Error(t, err)
		})
	}
}

func TestTierLabel(t *testing.T) {
	assert.Equal(t, "ฉุกเฉิน", TierLabel(triage.TierEmergency))
	assert.Equal(t, "other", TierLabel(triage.Tier("other")))
}
