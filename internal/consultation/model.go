package consultation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"symptom-triage/internal/diagnosis"
	"symptom-triage/internal/triage"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotFound = errors.New("session not found")
	ErrVersionConflict = errors.New("session version conflict")
)

// AnonymousUser is the user id clients send before sign-in.
const AnonymousUser = "anonymous"

// Session is the aggregate root of one triage conversation.
type Session struct {
	ID     string `json:"session_id"`
	UserID string `json:"user_id,omitempty"`

	// Symptoms holds the symptom utterances in the order they were reported.
	// Answer-only turns are not recorded here.
	Symptoms []string       `json:"symptoms"`
	Answers  triage.Answers `json:"answers"`

	// QuestionsAsked keeps the prompt texts for display; AskedIDs is what the
	// engine checks.
	QuestionsAsked []string            `json:"questions_asked"`
	AskedIDs       []triage.QuestionID `json:"asked_ids"`
	QuestionCount  int                 `json:"question_count"`

	Tier triage.Tier `json:"triage_level,omitempty"`

	// Version is 0 for a session that was never stored.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Answers:   triage.Answers{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CacheVersion lets version-aware caches refuse stale writes.
func (s *Session) CacheVersion() int64 { return s.Version }

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Symptoms = append([]string(nil), s.Symptoms...)
	c.QuestionsAsked = append([]string(nil), s.QuestionsAsked...)
	c.AskedIDs = append([]triage.QuestionID(nil), s.AskedIDs...)
	c.Answers = s.Answers.Clone()
	return &c
}

// LastSymptom is the utterance the engine scores and selects against.
func (s *Session) LastSymptom() string {
	if len(s.Symptoms) == 0 {
		return ""
	}
	return s.Symptoms[len(s.Symptoms)-1]
}

// IsAnswerTurn reports whether a payload answers the pending question rather
// than reporting a new symptom: it must fill a slot the session does not have
// yet, and there must already be a symptom on record.
func (s *Session) IsAnswerTurn(answers triage.Answers) bool {
	if len(s.Symptoms) == 0 {
		return false
	}
	for slot := range answers {
		if answers.Has(slot) && !s.Answers.Has(slot) {
			return true
		}
	}
	return false
}

// LinkUser attaches the session to a signed-in user. It reports whether the
// session changed.
func (s *Session) LinkUser(userID string) bool {
	if userID == "" || s.UserID == userID {
		return false
	}
	s.UserID = userID
	return true
}

// RecordQuestion appends a question put to the patient.
func (s *Session) RecordQuestion(q triage.Question, prompt string) {
	s.QuestionsAsked = append(s.QuestionsAsked, prompt)
	s.AskedIDs = append(s.AskedIDs, q.ID)
	s.QuestionCount++
}

// ResolveAskedIDs fills AskedIDs for sessions stored before ids were
// recorded, by matching the stored question texts against the catalog.
func (s *Session) ResolveAskedIDs(c *triage.QuestionCatalog) {
	if len(s.AskedIDs) > 0 || len(s.QuestionsAsked) == 0 {
		return
	}
	for _, text := range s.QuestionsAsked {
		// prompts may carry a reassurance prefix
		if i := strings.LastIndex(text, "\n\n"); i >= 0 {
			text = text[i+2:]
		}
		if id, ok := c.IDForText(text); ok {
			s.AskedIDs = append(s.AskedIDs, id)
		}
	}
}

// NormalizeUserID maps the anonymous marker and blanks to no user.
func NormalizeUserID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.EqualFold(id, AnonymousUser) {
		return ""
	}
	return id
}

// DiagnosisRecord is the stored outcome of a diagnosis request.
type DiagnosisRecord struct {
	ID              uuid.UUID
	SessionID       string
	UserID          string
	Tier            triage.Tier
	RiskScore       int
	Summary         string
	Recommendations []string
	CreatedAt       time.Time
}

func newDiagnosisRecord(s *Session, d *diagnosis.Diagnosis, now time.Time) *DiagnosisRecord {
	return &DiagnosisRecord{
		ID:              uuid.New(),
		SessionID:       s.ID,
		UserID:          s.UserID,
		Tier:            d.Tier,
		RiskScore:       d.RiskScore,
		Summary:         d.Summary,
		Recommendations: d.Recommendations,
		CreatedAt:       now,
	}
}

type CheckInStatus string

const (
	CheckInBetter CheckInStatus = "better"
	CheckInSame   CheckInStatus = "same"
	CheckInWorse  CheckInStatus = "worse"
)

func ParseCheckInStatus(s string) (CheckInStatus, error) {
	switch st := CheckInStatus(strings.TrimSpace(strings.ToLower(s))); st {
	case CheckInBetter, CheckInSame, CheckInWorse:
		return st, nil
	}
	return "", fmt.Errorf("%w: status must be better, same or worse", ErrInvalidInput)
}

// CheckIn is a follow-up report on how the patient feels after triage.
type CheckIn struct {
	ID        uuid.UUID     `json:"id"`
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id,omitempty"`
	Status    CheckInStatus `json:"status"`
	Notes     string        `json:"notes,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// HealthProfile is the stored profile of a signed-in user.
type HealthProfile struct {
	UserID          string
	Gender          string
	BirthDate       *time.Time
	WeightKg        float64
	HeightCm        float64
	ChronicDiseases []string
	Allergies       []string
}

// Age returns the age in whole years at now.
func (p *HealthProfile) Age(now time.Time) (int, bool) {
	if p.BirthDate == nil || p.BirthDate.IsZero() {
		return 0, false
	}
	b := p.BirthDate.In(now.Location())
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

func (p *HealthProfile) PatientContext(now time.Time) triage.PatientContext {
	if p == nil {
		return triage.PatientContext{}
	}
	age, ok := p.Age(now)
	return triage.PatientContext{
		Age:             age,
		HasAge:          ok,
		Gender:          p.Gender,
		ChronicDiseases: p.ChronicDiseases,
		Allergies:       p.Allergies,
	}
}
