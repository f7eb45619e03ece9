package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/contraceptiq/internal/consultation"
	"github.com/thebtf/contraceptiq/pkg/models"
)

// intakeResponse is returned when a consultation code is created.
type intakeResponse struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	ExpiresIn string    `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
}

// claimRequest identifies the clinician picking up a code.
type claimRequest struct {
	OBID   string `json:"ob_id"`
	OBName string `json:"ob_name"`
}

// requireStore answers 503 when no consultation store is configured.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Consultation store unavailable", "")
		return false
	}
	return true
}

// writeStoreError maps consultation store errors to responses.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, consultation.ErrNotFound), errors.Is(err, consultation.ErrExpired):
		writeError(w, http.StatusNotFound, "NotFound", "Invalid code or data expired")
	case errors.Is(err, consultation.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "Conflict", "Consultation already handled by another clinician")
	default:
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("Consultation store error")
		writeError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

// codeParam returns the normalized {code} URL parameter, or writes 404.
func codeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := consultation.NormalizeCode(chi.URLParam(r, "code"))
	if !consultation.ValidCode(code) {
		writeError(w, http.StatusNotFound, "NotFound", "Invalid code or data expired")
		return "", false
	}
	return code, true
}

// handleCreateIntake stores a patient's answers under a new code. The body
// is either {"patient_data": {...}} or the answers object itself.
func (s *Server) handleCreateIntake(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var body map[string]any
	if !decodeBody(w, r, &body) {
		return
	}
	data := body
	if nested, ok := body["patient_data"].(map[string]any); ok {
		data = nested
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "No data provided", "")
		return
	}

	rec, err := s.store.Create(r.Context(), data)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	log.Info().Str("code", rec.Code).Msg("Patient intake created")

	writeJSON(w, http.StatusCreated, intakeResponse{
		Code:      rec.Code,
		Message:   "Patient data stored successfully",
		ExpiresIn: formatTTL(rec.ExpiresAt.Sub(rec.CreatedAt)),
		ExpiresAt: rec.ExpiresAt,
	})
}

// handleGetIntake returns the record for a code.
func (s *Server) handleGetIntake(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(r.Context(), code)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCancelIntake marks a code cancelled.
func (s *Server) handleCancelIntake(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	if err := s.store.Cancel(r.Context(), code); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSaveRisk stores a risk result computed elsewhere (usually on the
// clinician's device) on the record.
func (s *Server) handleSaveRisk(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	var result models.RiskAssessment
	if !decodeBody(w, r, &result) {
		return
	}
	if !result.RiskLevel.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid risk result",
			fmt.Sprintf("risk_level must be %s or %s", models.RiskLow, models.RiskHigh))
		return
	}
	if _, err := s.store.Get(r.Context(), code); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if err := s.store.SaveRiskResult(r.Context(), code, result); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":   code,
		"status": models.StatusForRisk(result.RiskLevel),
	})
}

// handleClaimIntake assigns a code to a clinician.
func (s *Server) handleClaimIntake(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.OBID = strings.TrimSpace(req.OBID)
	if req.OBID == "" {
		writeError(w, http.StatusBadRequest, "Missing ob_id", "")
		return
	}

	rec, err := s.store.Claim(r.Context(), code, req.OBID, strings.TrimSpace(req.OBName))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleAssessIntake runs the risk assessment on a stored intake and records
// the result.
func (s *Server) handleAssessIntake(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if s.assessor == nil {
		writeError(w, http.StatusNotImplemented, "Assessment not configured", "")
		return
	}
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(r.Context(), code)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	result, err := s.assessor.AssessAndRecord(r.Context(), code, rec.Answers())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleQueue lists the clinician's waiting consultations.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	records, err := s.store.Queue(r.Context(), chi.URLParam(r, "obID"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultations": records, "count": len(records)})
}

// handleHistory lists the clinician's assessed consultations.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	records, err := s.store.History(r.Context(), chi.URLParam(r, "obID"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultations": records, "count": len(records)})
}

// formatTTL renders whole hours as "24h" and anything else in Go duration form.
func formatTTL(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
