package triage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Slot is a canonical answer key.
type Slot string

const (
	SlotDuration           Slot = "duration"
	SlotTrend              Slot = "trend"
	SlotSeverity           Slot = "severity"
	SlotRiskGroup          Slot = "risk_group"
	SlotSelfCareResponse   Slot = "self_care_response"
	SlotAssociatedSymptoms Slot = "associated_symptoms"
	SlotAge                Slot = "age"
	SlotGender             Slot = "gender"
	SlotChronicDisease     Slot = "chronic_disease"
	SlotAllergy            Slot = "allergy"
)

var slotAliases = map[string]Slot{
	"severity_trend": SlotTrend,
}

// ParseSlot maps an incoming key onto its canonical slot.
func ParseSlot(key string) (Slot, bool) {
	key = strings.TrimSpace(strings.ToLower(key))
	switch s := Slot(key); s {
	case SlotDuration, SlotTrend, SlotSeverity, SlotRiskGroup, SlotSelfCareResponse,
		SlotAssociatedSymptoms, SlotAge, SlotGender, SlotChronicDisease, SlotAllergy:
		return s, true
	}
	s, ok := slotAliases[key]
	return s, ok
}

// Answers maps slots to their values. Empty values count as unanswered.
type Answers map[Slot]string

func (a Answers) Has(s Slot) bool {
	return strings.TrimSpace(a[s]) != ""
}

func (a Answers) Get(s Slot) string {
	return strings.TrimSpace(a[s])
}

func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge copies every non-empty value of other into a, overwriting.
func (a Answers) Merge(other Answers) {
	for k, v := range other {
		if strings.TrimSpace(v) != "" {
			a[k] = v
		}
	}
}

// Slots returns the answered slots in a stable order.
func (a Answers) Slots() []Slot {
	out := make([]Slot, 0, len(a))
	for k := range a {
		if a.Has(k) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *Answers) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, _, err := AnswersFromMap(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AnswersFromMap converts a decoded JSON object into Answers. Numbers and
// booleans are formatted, string lists are joined with ", ". Keys that are not
// slots are returned in dropped. A value of any other shape is an error.
func AnswersFromMap(raw map[string]any) (answers Answers, dropped []string, err error) {
	answers = make(Answers, len(raw))
	var aliased []string
	for key, value := range raw {
		slot, ok := ParseSlot(key)
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		if _, alias := slotAliases[strings.TrimSpace(strings.ToLower(key))]; alias {
			aliased = append(aliased, key)
			continue
		}
		text, err := answerText(value)
		if err != nil {
			return nil, nil, fmt.Errorf("answer %q: %w", key, err)
		}
		if text != "" {
			answers[slot] = text
		}
	}
	// canonical keys win over their aliases
	for _, key := range aliased {
		slot, _ := ParseSlot(key)
		text, err := answerText(raw[key])
		if err != nil {
			return nil, nil, fmt.Errorf("answer %q: %w", key, err)
		}
		if text != "" && !answers.Has(slot) {
			answers[slot] = text
		}
	}
	sort.Strings(dropped)
	return answers, dropped, nil
}

func answerText(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("list items must be strings, got %T", item)
			}
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}

// leadingInt parses the first run of ASCII digits in s.
func leadingInt(s string) (int, bool) {
	start := strings.IndexAny(s, "0123456789")
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
