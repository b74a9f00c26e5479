package supabase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/supabase-community/supabase-go"

	"symptom-triage/internal/consultation"
	"symptom-triage/internal/triage"
)

// Config holds Supabase connection configuration
type Config struct {
	URL        string
	APIKey     string
	ProfileTTL time.Duration // Default: 5 minutes
}

const profileCacheSize = 1024

// Store keeps sessions, diagnoses and check-ins in Supabase tables through
// PostgREST and reads health profiles from user_profiles.
type Store struct {
	client   *supabase.Client
	profiles *expirable.LRU[string, *consultation.HealthProfile]
}

func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	if cfg.ProfileTTL == 0 {
		cfg.ProfileTTL = 5 * time.Minute
	}

	client, err := supabase.NewClient(strings.TrimRight(cfg.URL, "/"), cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Store{
		client:   client,
		profiles: expirable.NewLRU[string, *consultation.HealthProfile](profileCacheSize, nil, cfg.ProfileTTL),
	}, nil
}

type sessionRow struct {
	SessionID      string              `json:"session_id"`
	UserID         *string             `json:"user_id"`
	Symptoms       []string            `json:"symptoms"`
	Answers        triage.Answers      `json:"answers"`
	QuestionsAsked []string            `json:"questions_asked"`
	AskedIDs       []triage.QuestionID `json:"asked_ids"`
	QuestionCount  int                 `json:"question_count"`
	TriageLevel    *string             `json:"triage_level"`
	Version        int64               `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func toSessionRow(s *consultation.Session) sessionRow {
	return sessionRow{
		SessionID:      s.ID,
		UserID:         optional(s.UserID),
		Symptoms:       nonNil(s.Symptoms),
		Answers:        s.Answers,
		QuestionsAsked: nonNil(s.QuestionsAsked),
		AskedIDs:       nonNil(s.AskedIDs),
		QuestionCount:  s.QuestionCount,
		TriageLevel:    optional(string(s.Tier)),
		Version:        s.Version,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func (r sessionRow) session() *consultation.Session {
	s := &consultation.Session{
		ID:             r.SessionID,
		Symptoms:       r.Symptoms,
		Answers:        r.Answers,
		QuestionsAsked: r.QuestionsAsked,
		AskedIDs:       r.AskedIDs,
		QuestionCount:  r.QuestionCount,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.UserID != nil {
		s.UserID = *r.UserID
	}
	if r.TriageLevel != nil {
		s.Tier = triage.Tier(*r.TriageLevel)
	}
	if s.Answers == nil {
		s.Answers = triage.Answers{}
	}
	return s
}

func (st *Store) GetSession(ctx context.Context, id string) (*consultation.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []sessionRow
	_, err := st.client.From("triage_sessions").
		Select("*", "", false).
		Eq("session_id", id).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(rows) == 0 {
		return nil, consultation.ErrSessionNotFound
	}
	return rows[0].session(), nil
}

// SaveSession inserts new sessions and updates existing ones on a version
// match. PostgREST reports the updated rows, so an empty result is a
// conflict.
func (st *Store) SaveSession(ctx context.Context, s *consultation.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	row := toSessionRow(s)
	row.Version = s.Version + 1

	var rows []sessionRow
	var err error
	if s.Version == 0 {
		_, err = st.client.From("triage_sessions").
			Insert(row, false, "", "representation", "").
			ExecuteTo(&rows)
		if isUniqueViolation(err) {
			return consultation.ErrVersionConflict
		}
	} else {
		_, err = st.client.From("triage_sessions").
			Update(row, "representation", "").
			Eq("session_id", s.ID).
			Eq("version", strconv.FormatInt(s.Version, 10)).
			ExecuteTo(&rows)
	}
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if len(rows) == 0 {
		return consultation.ErrVersionConflict
	}
	s.Version++
	return nil
}

type diagnosisRow struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	UserID          *string   `json:"user_id"`
	TriageLevel     string    `json:"triage_level"`
	RiskScore       int       `json:"risk_score"`
	Summary         string    `json:"summary"`
	Recommendations []string  `json:"recommendations"`
	CreatedAt       time.Time `json:"created_at"`
}

func (st *Store) SaveDiagnosis(ctx context.Context, d *consultation.DiagnosisRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := diagnosisRow{
		ID:              d.ID.String(),
		SessionID:       d.SessionID,
		UserID:          optional(d.UserID),
		TriageLevel:     string(d.Tier),
		RiskScore:       d.RiskScore,
		Summary:         d.Summary,
		Recommendations: nonNil(d.Recommendations),
		CreatedAt:       d.CreatedAt,
	}
	if _, _, err := st.client.From("diagnoses").Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to save diagnosis: %w", err)
	}
	return nil
}

type checkInRow struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    *string   `json:"user_id"`
	Status    string    `json:"status"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

func (st *Store) SaveCheckIn(ctx context.Context, c *consultation.CheckIn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := checkInRow{
		ID:        c.ID.String(),
		SessionID: c.SessionID,
		UserID:    optional(c.UserID),
		Status:    string(c.Status),
		Notes:     optional(c.Notes),
		CreatedAt: c.CreatedAt,
	}
	if _, _, err := st.client.From("followup_checkins").Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to save check-in: %w", err)
	}
	return nil
}

func (st *Store) ListCheckIns(ctx context.Context, sessionID, userID string) ([]consultation.CheckIn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := st.client.From("followup_checkins").
		Select("*", "", false).
		Eq("session_id", sessionID)
	if userID != "" {
		q = q.Eq("user_id", userID)
	}

	var rows []checkInRow
	// nil options order descending
	if _, err := q.Order("created_at", nil).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}

	out := make([]consultation.CheckIn, 0, len(rows))
	for _, r := range rows {
		c := consultation.CheckIn{
			SessionID: r.SessionID,
			Status:    consultation.CheckInStatus(r.Status),
			CreatedAt: r.CreatedAt,
		}
		if err := c.ID.UnmarshalText([]byte(r.ID)); err != nil {
			return nil, fmt.Errorf("check-in id %q: %w", r.ID, err)
		}
		if r.UserID != nil {
			c.UserID = *r.UserID
		}
		if r.Notes != nil {
			c.Notes = *r.Notes
		}
		out = append(out, c)
	}
	return out, nil
}

type profileRow struct {
	ID              string   `json:"id"`
	Gender          *string  `json:"gender"`
	BirthDate       *string  `json:"birth_date"`
	WeightKg        *float64 `json:"weight_kg"`
	HeightCm        *float64 `json:"height_cm"`
	ChronicDiseases []string `json:"chronic_diseases"`
	DrugAllergies   []string `json:"drug_allergies"`
}

// GetProfile reads a health profile, caching it for the profile TTL. Users
// without a profile are not cached.
func (st *Store) GetProfile(ctx context.Context, userID string) (*consultation.HealthProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hp, ok := st.profiles.Get(userID); ok {
		return hp, nil
	}

	var rows []profileRow
	_, err := st.client.From("user_profiles").
		Select("id,gender,birth_date,weight_kg,height_cm,chronic_diseases,drug_allergies", "", false).
		Eq("id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	r := rows[0]
	hp := &consultation.HealthProfile{
		UserID:          r.ID,
		ChronicDiseases: r.ChronicDiseases,
		Allergies:       r.DrugAllergies,
	}
	if r.Gender != nil {
		hp.Gender = *r.Gender
	}
	if r.WeightKg != nil {
		hp.WeightKg = *r.WeightKg
	}
	if r.HeightCm != nil {
		hp.HeightCm = *r.HeightCm
	}
	if r.BirthDate != nil {
		if t, ok := consultation.ParseBirthDate(*r.BirthDate); ok {
			hp.BirthDate = &t
		}
	}
	st.profiles.Add(userID, hp)
	return hp, nil
}

// isUniqueViolation matches the "(code) message" errors postgrest-go
// builds from PostgREST error bodies.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "(23505)")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var (
	_ consultation.Repository      = (*Store)(nil)
	_ consultation.ProfileProvider = (*Store)(nil)
)

// Check pings PostgREST with a cheap select.
func (st *Store) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := st.client.From("triage_sessions").Select("session_id", "", false).Limit(1, "").Execute()
	return err
}
