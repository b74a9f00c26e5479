package consultation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"symptom-triage/internal/diagnosis"
	"symptom-triage/internal/triage"
)

const (
	maxSaveAttempts = 3
	notifyTimeout   = 10 * time.Second
)

// SessionCache keeps session snapshots for when the repository is
// unavailable. Implementations evict on their own.
type SessionCache interface {
	Get(ctx context.Context, id string) (*Session, bool, error)
	Set(ctx context.Context, id string, s *Session) error
}

type DiagnosisGenerator interface {
	Generate(ctx context.Context, req diagnosis.Request) (*diagnosis.Diagnosis, error)
}

// ReportService renders the doctor report and delivers it.
type ReportService interface {
	Render(s *Session, d *diagnosis.Diagnosis) ([]byte, error)
	SendDoctorReport(ctx context.Context, s *Session, d *diagnosis.Diagnosis) error
}

// Notifier alerts the on-call doctor.
type Notifier interface {
	NotifyEmergency(ctx context.Context, s *Session, reason triage.StopReason) error
	NotifyEscalation(ctx context.Context, s *Session, c *CheckIn) error
}

// PersistPolicy decides what a failed session write means for the turn.
type PersistPolicy int

const (
	// PersistAvailable logs the failure, keeps the session in the fallback
	// cache and answers the turn anyway.
	PersistAvailable PersistPolicy = iota
	// PersistStrict fails the turn.
	PersistStrict
)

func ParsePersistPolicy(s string) (PersistPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "available":
		return PersistAvailable, nil
	case "strict":
		return PersistStrict, nil
	}
	return 0, fmt.Errorf("unknown persist policy %q", s)
}

func (p PersistPolicy) String() string {
	if p == PersistStrict {
		return "strict"
	}
	return "available"
}

type Service interface {
	AssessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
	GetDiagnosis(ctx context.Context, sessionID, userID string) (*diagnosis.Diagnosis, error)
	GetReport(ctx context.Context, sessionID, userID string) ([]byte, error)
	RecordCheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error)
	ListCheckIns(ctx context.Context, sessionID, userID string) ([]CheckIn, error)
}

type TurnRequest struct {
	SessionID string
	Symptom   string
	// Answers is the decoded previous_answers object.
	Answers map[string]any
	UserID  string
}

type TurnResult struct {
	SessionID    string
	NeedMoreInfo bool
	NextQuestion string
	QuestionID   triage.QuestionID
	AnswerSlot   triage.Slot
	TriageLevel  triage.Tier
	Reassurance  string
	RiskScore    int
	Confidence   int
	StopReason   triage.StopReason
	QuestionNo   int
}

type CheckInRequest struct {
	SessionID string
	UserID    string
	Status    string
	Notes     string
}

type CheckInResult struct {
	CheckIn   CheckIn
	Escalated bool
	Advice    string
}

// Options holds the optional collaborators of the service.
type Options struct {
	Profiles  ProfileProvider
	Cache     SessionCache
	Generator DiagnosisGenerator
	Reports   ReportService
	Notifier  Notifier
	Policy    PersistPolicy
	Logger    *log.Logger
	// ReportError receives failures the service recovers from.
	ReportError func(error)
	Now         func() time.Time
}

type service struct {
	engine    *triage.Engine
	repo      Repository
	profiles  ProfileProvider
	cache     SessionCache
	generator DiagnosisGenerator
	fallback  DiagnosisGenerator
	reports   ReportService
	notifier  Notifier
	policy    PersistPolicy
	log       *log.Logger
	reportErr func(error)
	now       func() time.Time
	locks     *keyedMutex
}

func NewService(engine *triage.Engine, repo Repository, opts Options) Service {
	s := &service{
		engine:    engine,
		repo:      repo,
		profiles:  opts.Profiles,
		cache:     opts.Cache,
		generator: opts.Generator,
		fallback:  diagnosis.NewTemplateGenerator(),
		reports:   opts.Reports,
		notifier:  opts.Notifier,
		policy:    opts.Policy,
		log:       opts.Logger,
		reportErr: opts.ReportError,
		now:       opts.Now,
		locks:     newKeyedMutex(),
	}
	if s.generator == nil {
		s.generator = s.fallback
	}
	if s.log == nil {
		s.log = log.Default()
	}
	if s.reportErr == nil {
		s.reportErr = func(error) {}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// AssessTurn runs one conversation turn: it records the payload on the
// session, asks the engine for a decision and stores the result.
func (s *service) AssessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	symptom := strings.TrimSpace(req.Symptom)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	if symptom == "" {
		return nil, fmt.Errorf("%w: symptom is required", ErrInvalidInput)
	}
	incoming, dropped, err := triage.AnswersFromMap(req.Answers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(dropped) > 0 {
		s.log.Printf("Session %s: ignoring unknown answer keys %v", sessionID, dropped)
	}
	userID := NormalizeUserID(req.UserID)

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	profile := s.loadProfile(ctx, userID)
	for attempt := 1; ; attempt++ {
		sess := s.load(ctx, sessionID)
		prevTier := sess.Tier
		result := s.applyTurn(sess, symptom, incoming, userID, profile)

		err := s.repo.SaveSession(ctx, sess)
		if errors.Is(err, ErrVersionConflict) && attempt < maxSaveAttempts {
			s.log.Printf("Session %s changed concurrently, recomputing turn (attempt %d)", sessionID, attempt)
			continue
		}
		if err != nil {
			if err := s.persistFailed(ctx, sess, err); err != nil {
				return nil, err
			}
		} else {
			s.cacheSet(ctx, sess)
		}

		if sess.Tier == triage.TierEmergency && prevTier != triage.TierEmergency {
			s.notifyEmergency(ctx, sess, result.StopReason)
		}
		return result, nil
	}
}

func (s *service) applyTurn(sess *Session, symptom string, incoming triage.Answers, userID string, profile *HealthProfile) *TurnResult {
	now := s.now()
	if sess.Answers == nil {
		sess.Answers = triage.Answers{}
	}
	sess.ResolveAskedIDs(s.engine.Questions())
	sess.LinkUser(userID)

	if !sess.IsAnswerTurn(incoming) {
		sess.Symptoms = append(sess.Symptoms, symptom)
	}
	sess.Answers.Merge(incoming)

	// signals found in the text are kept, profile facts are not
	last := sess.LastSymptom()
	sess.Answers = s.engine.Enrich(sess.Answers, s.engine.Normalizer().Analyze(last))
	answers := sess.Answers
	if profile != nil {
		answers = s.engine.ApplyPatientContext(answers, profile.PatientContext(now))
	}

	d := s.engine.Assess(triage.Turn{
		Symptom:       last,
		Answers:       answers,
		Asked:         sess.AskedIDs,
		QuestionCount: sess.QuestionCount,
	})

	result := &TurnResult{
		SessionID:    sess.ID,
		NeedMoreInfo: d.NeedMoreInfo,
		TriageLevel:  d.Tier,
		Reassurance:  d.Reassurance,
		RiskScore:    d.RiskScore,
		Confidence:   d.Confidence,
		StopReason:   d.StopReason,
	}
	if d.NeedMoreInfo {
		sess.RecordQuestion(*d.Question, d.Prompt)
		result.NextQuestion = d.Prompt
		result.QuestionID = d.Question.ID
		result.AnswerSlot = d.Question.Slot
		result.QuestionNo = sess.QuestionCount
	}
	if d.Fallback {
		s.log.Printf("Session %s ended undecided (%s), falling back to %s", sess.ID, d.StopReason, d.Tier)
	}
	sess.Tier = d.Tier
	sess.UpdatedAt = now
	return result
}

// load returns the freshest copy of a session: the repository's, unless the
// cache holds later unsaved turns on top of the same version. Read failures
// fall back to the cache and then to a new session.
func (s *service) load(ctx context.Context, id string) *Session {
	stored, err := s.repo.GetSession(ctx, id)
	cached, hit := s.cacheGet(ctx, id)
	switch {
	case err == nil:
		if hit && cached.Version == stored.Version && cached.UpdatedAt.After(stored.UpdatedAt) {
			return cached
		}
		return stored
	case errors.Is(err, ErrSessionNotFound):
		if hit {
			cached.Version = 0
			return cached
		}
	default:
		s.log.Printf("Failed to load session %s, using fallback cache: %v", id, err)
		s.reportErr(fmt.Errorf("load session %s: %w", id, err))
		if hit {
			return cached
		}
	}
	return NewSession(id, s.now())
}

// lookup is load for operations that need an existing session.
func (s *service) lookup(ctx context.Context, id string) (*Session, error) {
	stored, err := s.repo.GetSession(ctx, id)
	if err == nil {
		if cached, hit := s.cacheGet(ctx, id); hit && cached.Version == stored.Version && cached.UpdatedAt.After(stored.UpdatedAt) {
			return cached, nil
		}
		return stored, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		s.log.Printf("Failed to load session %s, using fallback cache: %v", id, err)
		s.reportErr(fmt.Errorf("load session %s: %w", id, err))
	}
	if cached, hit := s.cacheGet(ctx, id); hit {
		return cached, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

func (s *service) persistFailed(ctx context.Context, sess *Session, err error) error {
	err = fmt.Errorf("save session %s: %w", sess.ID, err)
	s.reportErr(err)
	if s.policy == PersistStrict {
		return err
	}
	s.log.Printf("%v; keeping session in fallback cache", err)
	s.cacheSet(ctx, sess)
	return nil
}

func (s *service) cacheGet(ctx context.Context, id string) (*Session, bool) {
	if s.cache == nil {
		return nil, false
	}
	sess, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		s.log.Printf("Session cache read failed for %s: %v", id, err)
		return nil, false
	}
	if !ok || sess == nil {
		return nil, false
	}
	return sess.Clone(), true
}

func (s *service) cacheSet(ctx context.Context, sess *Session) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, sess.ID, sess.Clone()); err != nil {
		s.log.Printf("Session cache write failed for %s: %v", sess.ID, err)
	}
}

func (s *service) loadProfile(ctx context.Context, userID string) *HealthProfile {
	if userID == "" || s.profiles == nil {
		return nil
	}
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		s.log.Printf("Failed to load health profile for %s: %v", userID, err)
		return nil
	}
	return p
}

func (s *service) notifyEmergency(ctx context.Context, sess *Session, reason triage.StopReason) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyEmergency(ctx, sess.Clone(), reason); err != nil {
		s.log.Printf("Failed to notify doctor about session %s: %v", sess.ID, err)
		s.reportErr(err)
	}
}

func (s *service) GetDiagnosis(ctx context.Context, sessionID, userID string) (*diagnosis.Diagnosis, error) {
	d, sess, err := s.diagnose(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	rec := newDiagnosisRecord(sess, d, s.now())
	if err := s.repo.SaveDiagnosis(ctx, rec); err != nil {
		s.log.Printf("Failed to save diagnosis for session %s: %v", sess.ID, err)
		s.reportErr(err)
	}

	if d.Tier == triage.TierEmergency && s.reports != nil {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.reports.SendDoctorReport(sendCtx, sess, d); err != nil {
			s.log.Printf("Failed to send report for session %s: %v", sess.ID, err)
			s.reportErr(err)
		}
	}
	return d, nil
}

func (s *service) GetReport(ctx context.Context, sessionID, userID string) ([]byte, error) {
	if s.reports == nil {
		return nil, errors.New("reports are not configured")
	}
	d, sess, err := s.diagnose(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	pdf, err := s.reports.Render(sess, d)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return pdf, nil
}

// diagnose explains the session's tier. The score covers every symptom the
// patient reported.
func (s *service) diagnose(ctx context.Context, sessionID, userID string) (*diagnosis.Diagnosis, *Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	userID = NormalizeUserID(userID)

	sess, err := s.linkedSession(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, err
	}

	answers := sess.Answers.Clone()
	if p := s.loadProfile(ctx, userID); p != nil {
		answers = s.engine.ApplyPatientContext(answers, p.PatientContext(s.now()))
	}
	tier := sess.Tier
	if !tier.Concrete() {
		tier = triage.TierGP
	}
	req := diagnosis.Request{
		SessionID: sess.ID,
		Symptoms:  append([]string(nil), sess.Symptoms...),
		Answers:   answers,
		Tier:      tier,
		RiskScore: s.engine.RiskScore(strings.Join(sess.Symptoms, " "), answers),
	}

	d, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.log.Printf("Diagnosis generator failed for session %s, using template: %v", sess.ID, err)
		s.reportErr(err)
		if d, err = s.fallback.Generate(ctx, req); err != nil {
			return nil, nil, fmt.Errorf("generate diagnosis: %w", err)
		}
	}
	d.SessionID = sess.ID
	d.Tier = tier
	d.TierLabel = diagnosis.TierLabel(tier)
	d.RiskScore = req.RiskScore
	return d, sess, nil
}

// linkedSession loads a session and attaches it to userID if needed.
// Failing to store the link does not fail the caller.
func (s *service) linkedSession(ctx context.Context, sessionID, userID string) (*Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.LinkUser(userID) {
		return sess, nil
	}
	sess.UpdatedAt = s.now()
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		s.log.Printf("Failed to link session %s to user %s: %v", sessionID, userID, err)
		s.reportErr(err)
		return sess, nil
	}
	s.cacheSet(ctx, sess)
	return sess, nil
}

var checkInAdvice = map[CheckInStatus]string{
	CheckInBetter: "ดีใจที่อาการดีขึ้น พักผ่อนให้เพียงพอและสังเกตอาการต่อไป",
	CheckInSame:   "หากอาการไม่ดีขึ้นภายใน 2-3 วัน ควรพบแพทย์",
	CheckInWorse:  "อาการของคุณแย่ลง ควรพบแพทย์โดยเร็ว หากมีอาการรุนแรงให้โทร 1669",
}

func (s *service) RecordCheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	status, err := ParseCheckInStatus(req.Status)
	if err != nil {
		return nil, err
	}
	sess, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	c := &CheckIn{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    NormalizeUserID(req.UserID),
		Status:    status,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: s.now(),
	}
	if err := s.repo.SaveCheckIn(ctx, c); err != nil {
		return nil, fmt.Errorf("save check-in: %w", err)
	}

	result := &CheckInResult{CheckIn: *c, Advice: checkInAdvice[status]}
	if status == CheckInWorse && sess.Tier != triage.TierEmergency {
		result.Escalated = true
		s.log.Printf("Escalation needed for session %s: patient reports worse", sessionID)
		if s.notifier != nil {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			defer cancel()
			if err := s.notifier.NotifyEscalation(nctx, sess, c); err != nil {
				s.log.Printf("Failed to send escalation for session %s: %v", sessionID, err)
				s.reportErr(err)
			}
		}
	}
	return result, nil
}

func (s *service) ListCheckIns(ctx context.Context, sessionID, userID string) ([]CheckIn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	return s.repo.ListCheckIns(ctx, sessionID, NormalizeUserID(userID))
}
