package consultation

import (
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"symptom-triage/internal/triage"
)

const (
	userIDHeader = "X-User-Id"
	maxBodyBytes = 1 << 20
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type AssessRequest struct {
	SessionID       string         `json:"session_id"`
	Symptom         string         `json:"symptom"`
	PreviousAnswers map[string]any `json:"previous_answers"`
}

type AssessResponse struct {
	NeedMoreInfo bool              `json:"need_more_info"`
	NextQuestion *string           `json:"next_question"`
	QuestionID   triage.QuestionID `json:"question_id,omitempty"`
	AnswerSlot   triage.Slot       `json:"answer_slot,omitempty"`
	TriageLevel  triage.Tier       `json:"triage_level"`
	Reassurance  *string           `json:"reassurance"`
	RiskScore    int               `json:"risk_score"`
	Confidence   int               `json:"confidence"`
	StopReason   triage.StopReason `json:"stop_reason,omitempty"`
}

func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.AssessTurn(r.Context(), TurnRequest{
		SessionID: req.SessionID,
		Symptom:   req.Symptom,
		Answers:   req.PreviousAnswers,
		UserID:    r.Header.Get(userIDHeader),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AssessResponse{
		NeedMoreInfo: res.NeedMoreInfo,
		NextQuestion: optional(res.NextQuestion),
		QuestionID:   res.QuestionID,
		AnswerSlot:   res.AnswerSlot,
		TriageLevel:  res.TriageLevel,
		Reassurance:  optional(res.Reassurance),
		RiskScore:    res.RiskScore,
		Confidence:   res.Confidence,
		StopReason:   res.StopReason,
	})
}

func (h *Handler) Diagnosis(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDiagnosis(r.Context(), r.URL.Query().Get("session_id"), r.Header.Get(userIDHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	pdf, err := h.svc.GetReport(r.Context(), sessionID, r.Header.Get(userIDHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("inline", map[string]string{"filename": "triage-" + sessionID + ".pdf"}))
	if _, err := w.Write(pdf); err != nil {
		log.Printf("Failed to write report for session %s: %v", sessionID, err)
	}
}

type CheckInBody struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Notes     string `json:"notes"`
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var body CheckInBody
	if !decodeBody(w, r, &body) {
		return
	}

	res, err := h.svc.RecordCheckIn(r.Context(), CheckInRequest{
		SessionID: body.SessionID,
		UserID:    r.Header.Get(userIDHeader),
		Status:    body.Status,
		Notes:     body.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"checkin":   res.CheckIn,
		"escalated": res.Escalated,
		"advice":    res.Advice,
	})
}

func (h *Handler) CheckIns(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListCheckIns(r.Context(), r.URL.Query().Get("session_id"), r.Header.Get(userIDHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkins": list})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/triage/assess", h.Assess)
	r.Get("/triage/diagnosis", h.Diagnosis)
	r.Get("/triage/diagnosis/report", h.Report)
	r.Post("/followup/checkin", h.CheckIn)
	r.Get("/followup/checkins", h.CheckIns)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		log.Printf("Request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
