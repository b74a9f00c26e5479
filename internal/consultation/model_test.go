package consultation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-triage/internal/triage"
)

func TestSessionIsAnswerTurn(t *testing.T) {
	s := NewSession("s1", time.Now())
	answers := triage.Answers{triage.SlotSeverity: "มาก"}

	assert.False(t, s.IsAnswerTurn(answers), "no symptom recorded yet")

	s.Symptoms = []string{"ปวดหัว"}
	assert.True(t, s.IsAnswerTurn(answers))
	assert.False(t, s.IsAnswerTurn(triage.Answers{}))
	assert.False(t, s.IsAnswerTurn(triage.Answers{triage.SlotTrend: "  "}), "blank values fill nothing")

	s.Answers[triage.SlotSeverity] = "ปานกลาง"
	assert.False(t, s.IsAnswerTurn(answers), "slot already filled")
	assert.True(t, s.IsAnswerTurn(triage.Answers{triage.SlotSeverity: "มาก", triage.SlotTrend: "แย่ลง"}))
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := NewSession("s1", time.Now())
	s.Symptoms = []string{"ปวดหัว"}
	s.Answers[triage.SlotTrend] = "แย่ลง"
	s.AskedIDs = []triage.QuestionID{triage.QuestionBreathing}

	c := s.Clone()
	c.Symptoms[0] = "ไข้"
	c.Answers[triage.SlotTrend] = "ดีขึ้น"
	c.AskedIDs = append(c.AskedIDs, triage.QuestionSeverity)

	assert.Equal(t, "ปวดหัว", s.Symptoms[0])
	assert.Equal(t, "แย่ลง", s.Answers[triage.SlotTrend])
	assert.Len(t, s.AskedIDs, 1)
	assert.Nil(t, (*Session)(nil).Clone())
}

func TestSessionLinkUser(t *testing.T) {
	s := NewSession("s1", time.Now())
	assert.False(t, s.LinkUser(""))
	assert.True(t, s.LinkUser("u1"))
	assert.False(t, s.LinkUser("u1"))
	assert.True(t, s.LinkUser("u2"))
	assert.Equal(t, "u2", s.UserID)
}

func TestSessionResolveAskedIDs(t *testing.T) {
	catalog := triage.MustNewEngine(nil).Questions()
	breathing, _ := catalog.Get(triage.QuestionBreathing)
	severity, _ := catalog.Get(triage.QuestionSeverity)

	s := NewSession("s1", time.Now())
	s.QuestionsAsked = []string{
		breathing.Text,
		"ไม่ต้องกังวลนะคะ\n\n" + severity.Text,
		"คำถามที่ไม่มีในรายการ",
	}
	s.ResolveAskedIDs(catalog)
	assert.Equal(t, []triage.QuestionID{triage.QuestionBreathing, triage.QuestionSeverity}, s.AskedIDs)

	// ids already present are left alone
	s.AskedIDs = []triage.QuestionID{triage.QuestionTrend}
	s.ResolveAskedIDs(catalog)
	assert.Equal(t, []triage.QuestionID{triage.QuestionTrend}, s.AskedIDs)
}

func TestNormalizeUserID(t *testing.T) {
	assert.Equal(t, "", NormalizeUserID(""))
	assert.Equal(t, "", NormalizeUserID("  anonymous "))
	assert.Equal(t, "", NormalizeUserID("Anonymous"))
	assert.Equal(t, "u1", NormalizeUserID(" u1 "))
}

func TestParseCheckInStatus(t *testing.T) {
	for _, in := range []string{"better", "SAME", " worse "} {
		_, err := ParseCheckInStatus(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseCheckInStatus("fine")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestHealthProfileAge(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	date := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}

	tests := []struct {
		name  string
		birth *time.Time
		age   int
		ok    bool
	}{
		{"birthday passed", date(1990, 1, 1), 36, true},
		{"birthday today", date(1990, 6, 15), 36, true},
		{"birthday tomorrow", date(1990, 6, 16), 35, true},
		{"infant", date(2025, 12, 1), 0, true},
		{"unknown", nil, 0, false},
		{"future", date(2027, 1, 1), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &HealthProfile{BirthDate: tt.birth}
			age, ok := p.Age(now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.age, age)
		})
	}
}

func TestHealthProfilePatientContext(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	birth := time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &HealthProfile{Gender: "หญิง", BirthDate: &birth, ChronicDiseases: []string{"เบาหวาน"}}

	pc := p.PatientContext(now)
	assert.Equal(t, 76, pc.Age)
	assert.True(t, pc.HasAge)
	assert.Equal(t, "หญิง", pc.Gender)
	assert.Equal(t, []string{"เบาหวาน"}, pc.ChronicDiseases)

	var none *HealthProfile
	assert.Equal(t, triage.PatientContext{}, none.PatientContext(now))
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("s1")
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, k.size(), "idle keys are released")

	// different keys do not block each other
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	require.Equal(t, 2, k.size())
	unlockA()
	unlockB()
}
