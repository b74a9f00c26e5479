package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"symptom-triage/internal/triage"
)

// Repository persists sessions and everything recorded against them.
type Repository interface {
	// GetSession returns ErrSessionNotFound when no session has the id.
	GetSession(ctx context.Context, id string) (*Session, error)
	// SaveSession inserts a session with Version 0 and otherwise updates it
	// only if the stored version still matches, returning ErrVersionConflict
	// when it does not. On success s.Version is the new stored version.
	SaveSession(ctx context.Context, s *Session) error
	SaveDiagnosis(ctx context.Context, d *DiagnosisRecord) error
	SaveCheckIn(ctx context.Context, c *CheckIn) error
	// ListCheckIns returns the check-ins of a session, newest first. A
	// non-empty userID restricts the list to that user.
	ListCheckIns(ctx context.Context, sessionID, userID string) ([]CheckIn, error)
}

// ProfileProvider loads health profiles. A user without a profile yields
// (nil, nil).
type ProfileProvider interface {
	GetProfile(ctx context.Context, userID string) (*HealthProfile, error)
}

// sqlRepo works against postgres and sqlite. Both drivers accept $n
// placeholders and the statements stay within their common dialect.
type sqlRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &sqlRepo{db: db}
}

func (r *sqlRepo) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `SELECT session_id, user_id, symptoms, answers, questions_asked, asked_ids,
		question_count, triage_level, version, created_at, updated_at
		FROM triage_sessions WHERE session_id = $1`

	var (
		s                                             Session
		userID, tier                                  sql.NullString
		symptomsJSON, answersJSON, askedJSON, idsJSON []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&userID,
		&symptomsJSON,
		&answersJSON,
		&askedJSON,
		&idsJSON,
		&s.QuestionCount,
		&tier,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s.UserID = userID.String
	s.Tier = triage.Tier(tier.String)

	for _, col := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"symptoms", symptomsJSON, &s.Symptoms},
		{"answers", answersJSON, &s.Answers},
		{"questions_asked", askedJSON, &s.QuestionsAsked},
		{"asked_ids", idsJSON, &s.AskedIDs},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", col.name, err)
		}
	}
	if s.Answers == nil {
		s.Answers = triage.Answers{}
	}
	return &s, nil
}

func (r *sqlRepo) SaveSession(ctx context.Context, s *Session) error {
	cols, err := marshalColumns(s.Symptoms, s.Answers, s.QuestionsAsked, s.AskedIDs)
	if err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	var res sql.Result
	if s.Version == 0 {
		query := `
			INSERT INTO triage_sessions (session_id, user_id, symptoms, answers, questions_asked, asked_ids,
				question_count, triage_level, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
			ON CONFLICT (session_id) DO NOTHING
		`
		res, err = r.db.ExecContext(ctx, query,
			s.ID, nullString(s.UserID), cols[0], cols[1], cols[2], cols[3],
			s.QuestionCount, nullString(string(s.Tier)), s.CreatedAt, s.UpdatedAt)
	} else {
		query := `
			UPDATE triage_sessions SET
				user_id = $2,
				symptoms = $3,
				answers = $4,
				questions_asked = $5,
				asked_ids = $6,
				question_count = $7,
				triage_level = $8,
				version = version + 1,
				updated_at = $9
			WHERE session_id = $1 AND version = $10
		`
		res, err = r.db.ExecContext(ctx, query,
			s.ID, nullString(s.UserID), cols[0], cols[1], cols[2], cols[3],
			s.QuestionCount, nullString(string(s.Tier)), s.UpdatedAt, s.Version)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	s.Version++
	return nil
}

func (r *sqlRepo) SaveDiagnosis(ctx context.Context, d *DiagnosisRecord) error {
	recs, err := json.Marshal(d.Recommendations)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO diagnoses (id, session_id, user_id, triage_level, risk_score, summary, recommendations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		d.ID.String(), d.SessionID, nullString(d.UserID), string(d.Tier), d.RiskScore, d.Summary, string(recs), d.CreatedAt)
	return err
}

func (r *sqlRepo) SaveCheckIn(ctx context.Context, c *CheckIn) error {
	query := `
		INSERT INTO followup_checkins (id, session_id, user_id, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID.String(), c.SessionID, nullString(c.UserID), string(c.Status), nullString(c.Notes), c.CreatedAt)
	return err
}

func (r *sqlRepo) ListCheckIns(ctx context.Context, sessionID, userID string) ([]CheckIn, error) {
	query := `SELECT id, session_id, user_id, status, notes, created_at FROM followup_checkins WHERE session_id = $1`
	args := []any{sessionID}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CheckIn{}
	for rows.Next() {
		var (
			c           CheckIn
			id, status  string
			user, notes sql.NullString
		)
		if err := rows.Scan(&id, &c.SessionID, &user, &status, &notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := c.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("check-in id %q: %w", id, err)
		}
		c.UserID, c.Notes, c.Status = user.String, notes.String, CheckInStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

type sqlProfiles struct {
	db *sql.DB
}

// NewProfileStore reads the user_profiles table.
func NewProfileStore(db *sql.DB) ProfileProvider {
	return &sqlProfiles{db: db}
}

func (p *sqlProfiles) GetProfile(ctx context.Context, userID string) (*HealthProfile, error) {
	query := `SELECT id, gender, birth_date, weight_kg, height_cm, chronic_diseases, drug_allergies
		FROM user_profiles WHERE id = $1`

	var (
		hp                 HealthProfile
		gender, birth      sql.NullString
		weight, height     sql.NullFloat64
		chronic, allergies []byte
	)
	err := p.db.QueryRowContext(ctx, query, userID).Scan(
		&hp.UserID, &gender, &birth, &weight, &height, &chronic, &allergies)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	hp.Gender, hp.WeightKg, hp.HeightCm = gender.String, weight.Float64, height.Float64
	if birth.Valid {
		if t, ok := ParseBirthDate(birth.String); ok {
			hp.BirthDate = &t
		}
	}
	if hp.ChronicDiseases, err = decodeStringList(chronic); err != nil {
		return nil, fmt.Errorf("chronic_diseases: %w", err)
	}
	if hp.Allergies, err = decodeStringList(allergies); err != nil {
		return nil, fmt.Errorf("drug_allergies: %w", err)
	}
	return &hp, nil
}

var birthDateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// ParseBirthDate accepts the date renderings the supported stores produce.
func ParseBirthDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// decodeStringList reads a JSON array column. Postgres text[] literals
// ({a,b}) are accepted too.
func decodeStringList(raw []byte) ([]string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		var out []string
		for _, item := range strings.Split(s[1:len(s)-1], ",") {
			if item = strings.Trim(strings.TrimSpace(item), `"`); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalColumns(values ...any) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
