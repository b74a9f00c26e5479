package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"symptom-triage/internal/llm"
	"symptom-triage/internal/triage"
)

type LLMConfig struct {
	MaxTokens   int
	Temperature float64
}

func DefaultLLMConfig() LLMConfig {
	return LLMConfig{MaxTokens: 800, Temperature: 0.2}
}

// LLMGenerator asks a language model to explain a triage outcome. The tier
// and score always come from the request, never from the model.
type LLMGenerator struct {
	provider llm.Provider
	cfg      LLMConfig
	now      func() time.Time
}

func NewLLMGenerator(provider llm.Provider, cfg LLMConfig) *LLMGenerator {
	return &LLMGenerator{provider: provider, cfg: cfg, now: time.Now}
}

type llmOutput struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
	WarningSigns    []string `json:"warning_signs"`
}

var diagnosisSchema = &llm.Schema{
	Name:        "triage_diagnosis",
	Description: "Patient-facing explanation of a triage decision",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{
				"type":        "string",
				"description": "Two or three sentences in Thai",
			},
			"recommendations": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"warning_signs": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []string{"summary", "recommendations", "warning_signs"},
		"additionalProperties": false,
	},
}

func (g *LLMGenerator) Generate(ctx context.Context, req Request) (*Diagnosis, error) {
	tier := req.Tier
	if !tier.Concrete() {
		tier = triage.TierGP
	}

	msg, err := buildUserMessage(req, tier)
	if err != nil {
		return nil, fmt.Errorf("build diagnosis prompt: %w", err)
	}
	resp, err := g.provider.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: msg}},
		Schema:      diagnosisSchema,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("llm diagnosis: %w", err)
	}

	var out llmOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return nil, fmt.Errorf("parse diagnosis response: %w", err)
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" || len(out.Recommendations) == 0 {
		return nil, errors.New("llm diagnosis: empty summary or recommendations")
	}

	return &Diagnosis{
		SessionID:       req.SessionID,
		Tier:            tier,
		TierLabel:       TierLabel(tier),
		RiskScore:       req.RiskScore,
		Summary:         out.Summary,
		Recommendations: append(out.Recommendations, contextNotes(req.Answers)...),
		WarningSigns:    out.WarningSigns,
		Source:          "llm:" + g.provider.ModelID(),
		CreatedAt:       g.now(),
	}, nil
}

const systemPrompt = `You explain symptom triage results to patients in Thailand.
The triage level has already been decided by a clinical rule engine. Never change it, never contradict it and never name a specific disease.

Write in plain Thai:
- summary: two or three sentences restating the reported symptoms and what the triage level means for the patient.
- recommendations: three to five concrete next steps that fit the triage level.
- warning_signs: symptoms that mean the patient must seek emergency care (call 1669).

Do not recommend prescription medicines. If the patient reports drug allergies, never suggest those drugs.`

type promptAnswer struct {
	Slot  triage.Slot
	Value string
}

var userTemplate = template.Must(template.New("diagnosis").Parse(`Triage level: {{.Tier}} ({{.Label}})
Risk score: {{.RiskScore}}
Reported symptoms:
{{range .Symptoms}}- {{.}}
{{end}}{{if .Answers}}Answers to follow-up questions:
{{range .Answers}}- {{.Slot}}: {{.Value}}
{{end}}{{end}}`))

func buildUserMessage(req Request, tier triage.Tier) (string, error) {
	data := struct {
		Tier      triage.Tier
		Label     string
		RiskScore int
		Symptoms  []string
		Answers   []promptAnswer
	}{
		Tier:      tier,
		Label:     TierLabel(tier),
		RiskScore: req.RiskScore,
		Symptoms:  req.Symptoms,
	}
	for _, slot := range req.Answers.Slots() {
		if v := req.Answers.Get(slot); v != "" {
			data.Answers = append(data.Answers, promptAnswer{Slot: slot, Value: v})
		}
	}

	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
