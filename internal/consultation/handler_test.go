package consultation

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-triage/internal/triage"
)

func newTestRouter(t *testing.T) (http.Handler, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	svc := NewService(triage.MustNewEngine(nil), repo, Options{
		Profiles: repo,
		Reports:  &fakeReports{},
		Now:      steppingClock(),
	})
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(svc))
	return r, repo
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAssessHandler(t *testing.T) {
	h, repo := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/triage/assess", `{"session_id":"s1","symptom":"ปวดหัว"}`, userIDHeader, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["need_more_info"])
	assert.Equal(t, "มีหายใจลำบากหรือหายใจไม่ออกไหมคะ?", got["next_question"])
	assert.Equal(t, "breathing", got["question_id"])
	assert.Equal(t, "uncertain", got["triage_level"])
	assert.Nil(t, got["reassurance"])
	assert.NotContains(t, got, "answer_slot")

	s, err := repo.GetSession(t.Context(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
}

func TestAssessHandlerEmergency(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/triage/assess", `{"session_id":"s1","symptom":"ปวดท้องทนไม่ไหวแล้ว","previous_answers":{}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got AssessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.NeedMoreInfo)
	assert.Nil(t, got.NextQuestion)
	assert.Equal(t, triage.TierEmergency, got.TriageLevel)
	assert.Equal(t, triage.StopEmergencyKeyword, got.StopReason)
}

func TestAssessHandlerErrors(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"session_id":`},
		{"missing symptom", `{"session_id":"s1"}`},
		{"bad answer shape", `{"session_id":"s1","symptom":"ไอ","previous_answers":{"severity":{"a":1}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/triage/assess", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestDiagnosisHandler(t *testing.T) {
	h, repo := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/triage/diagnosis?session_id=nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	do(t, h, http.MethodPost, "/triage/assess", `{"session_id":"s1","symptom":"ไอ มีน้ำมูก"}`)
	rec = do(t, h, http.MethodGet, "/triage/diagnosis?session_id=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "s1", got["session_id"])
	assert.Equal(t, "gp", got["triage_level"])
	assert.Equal(t, "template", got["source"])
	assert.NotEmpty(t, got["recommendations"])
	assert.Len(t, repo.Diagnoses(), 1)
}

func TestReportHandler(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/triage/assess", `{"session_id":"s1","symptom":"ไอ"}`)

	rec := do(t, h, http.MethodGet, "/triage/diagnosis/report?session_id=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "triage-s1.pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestReportHandlerQuotesFilename(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/triage/assess", `{"session_id":"a\"b; x=1","symptom":"ไอ"}`)

	rec := do(t, h, http.MethodGet, "/triage/diagnosis/report?session_id="+url.QueryEscape(`a"b; x=1`), "")
	require.Equal(t, http.StatusOK, rec.Code)

	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "inline", disposition)
	assert.Equal(t, map[string]string{"filename": `triage-a"b; x=1.pdf`}, params)
}

func TestCheckInHandlers(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/followup/checkin", `{"session_id":"s1","status":"worse"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	do(t, h, http.MethodPost, "/triage/assess", `{"session_id":"s1","symptom":"ไอ"}`)

	rec = do(t, h, http.MethodPost, "/followup/checkin", `{"session_id":"s1","status":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/followup/checkin", `{"session_id":"s1","status":"worse","notes":"ไอหนักขึ้น"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Success   bool    `json:"success"`
		Escalated bool    `json:"escalated"`
		Advice    string  `json:"advice"`
		CheckIn   CheckIn `json:"checkin"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.True(t, res.Escalated)
	assert.NotEmpty(t, res.Advice)
	assert.Equal(t, CheckInWorse, res.CheckIn.Status)

	rec = do(t, h, http.MethodGet, "/followup/checkins?session_id=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		CheckIns []CheckIn `json:"checkins"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.CheckIns, 1)
	assert.Equal(t, "ไอหนักขึ้น", list.CheckIns[0].Notes)

	rec = do(t, h, http.MethodGet, "/followup/checkins", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
