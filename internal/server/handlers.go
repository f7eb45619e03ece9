package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/contraceptiq/internal/apperr"
	"github.com/thebtf/contraceptiq/internal/features"
	"github.com/thebtf/contraceptiq/internal/mec"
	"github.com/thebtf/contraceptiq/internal/remote"
	"github.com/thebtf/contraceptiq/internal/scoring"
	"github.com/thebtf/contraceptiq/pkg/models"
)

// writeJSON writes data as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error body in the shape the client decodes.
func writeError(w http.ResponseWriter, status int, errText, message string) {
	writeJSON(w, status, remote.ErrorResponse{Error: errText, Message: message, Status: status})
}

// writeAppError maps a classified error to a status code.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindModelLoad:
		status = http.StatusServiceUnavailable
	case apperr.KindTimeout:
		status = http.StatusGatewayTimeout
	case apperr.KindNetwork:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("Request failed")
	}
	writeError(w, status, http.StatusText(status), apperr.UserMessage(err))
}

// decodeBody decodes a JSON request body into v. An empty body is an error.
// On failure the 400 response has already been written.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", "")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		writeError(w, http.StatusBadRequest, "No data provided", "Request body must contain JSON data")
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	return true
}

// healthResponse extends the client's health body with operator detail.
type healthResponse struct {
	remote.HealthResponse
	ModelDirectory string `json:"model_directory,omitempty"`
	Message        string `json:"message"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

// handleHealth answers 200 when the models are loaded and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	loaded := s.model.Ready()
	resp := healthResponse{
		HealthResponse: remote.HealthResponse{
			Status:       "healthy",
			ModelVersion: s.model.Config().ModelVersion,
			ModelsLoaded: loaded,
		},
		ModelDirectory: s.cfg.ModelDir,
		Message:        "Server is running",
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
	}
	status := http.StatusOK
	if !loaded {
		resp.Status = "degraded"
		resp.Message = "Models not loaded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleFeatures lists the model inputs and how the intake form groups them.
func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	categories := features.Categories()
	counts := make(map[string]int, len(categories))
	for name, keys := range categories {
		counts[name] = len(keys)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"required_features": features.FeatureOrder,
		"guest_required":    features.RequiredKeys,
		"total_count":       len(features.FeatureOrder),
		"categories":        counts,
	})
}

// handleRisk scores one set of intake answers.
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if !s.model.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, remote.ErrorResponse{
			Error:   "Models not loaded",
			Message: "ML models failed to load at startup. Check server logs.",
			Status:  http.StatusServiceUnavailable,
		})
		return
	}

	var raw map[string]any
	if !decodeBody(w, r, &raw) {
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "No data provided", "Request body must contain JSON data")
		return
	}

	answers, ignored := models.ParseAnswers(raw)
	if len(ignored) > 0 {
		log.Debug().Strs("keys", ignored).Msg("Ignoring unrecognized intake fields")
	}

	if missing := features.MissingRequired(answers); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, k := range missing {
			names[i] = string(k)
		}
		writeJSON(w, http.StatusBadRequest, remote.ErrorResponse{
			Error:           "Missing required features",
			MissingFeatures: names,
			RequiredCount:   len(features.RequiredKeys),
			ProvidedCount:   len(raw),
			Status:          http.StatusBadRequest,
		})
		return
	}

	vec, defaulted := features.EncodeDetailed(answers)
	if res := features.Validate(vec); !res.Valid {
		details := make([]string, len(res.Errors))
		for i, fe := range res.Errors {
			details[i] = fe.String()
		}
		writeJSON(w, http.StatusBadRequest, remote.ErrorResponse{
			Error:            "Invalid feature types or values",
			ValidationErrors: details,
			Status:           http.StatusBadRequest,
		})
		return
	}
	if len(defaulted) > 0 {
		log.Debug().Int("count", len(defaulted)).Msg("Encoded answers with defaults")
	}

	result, err := s.model.Predict(r.Context(), vec)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	result.Source = ""
	writeJSON(w, http.StatusOK, result)
}

// eligibilityRequest is the body of the MEC and recommendation endpoints.
// When Answers is present it takes precedence over the flat fields. An
// omitted age is mec.DefaultAge, as on the answers path.
type eligibilityRequest struct {
	Age              *int           `json:"age,omitempty"`
	SmokingStatus    string         `json:"smoking_status,omitempty"`
	CigarettesPerDay int            `json:"cigarettes_per_day,omitempty"`
	Answers          map[string]any `json:"answers,omitempty"`
	Preferences      []string       `json:"preferences,omitempty"`
}

func (req eligibilityRequest) input() mec.Input {
	if len(req.Answers) > 0 {
		answers, _ := models.ParseAnswers(req.Answers)
		return mec.InputFromAnswers(answers)
	}
	in := mec.Input{
		Age:              mec.DefaultAge,
		SmokingStatus:    mec.ParseSmokingStatus(req.SmokingStatus),
		CigarettesPerDay: max(req.CigarettesPerDay, 0),
	}
	if req.Age != nil && *req.Age >= 0 {
		in.Age = *req.Age
	}
	return in
}

// hasProfile reports whether the request carries anything the rules can use.
func (req eligibilityRequest) hasProfile() bool {
	return len(req.Answers) > 0 || req.Age != nil || req.SmokingStatus != ""
}

// mecEntry is one method in an eligibility response.
type mecEntry struct {
	ID       models.MethodID    `json:"id"`
	Color    string             `json:"color"`
	Label    string             `json:"label"`
	Category models.MECCategory `json:"mec_category"`
}

// handleMEC returns the eligibility category of every method.
func (s *Server) handleMEC(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := req.input()
	result := mec.Calculate(in)
	methods := make([]mecEntry, 0, len(models.Methods))
	for _, id := range models.Methods {
		c, _ := result.Category(id)
		methods = append(methods, mecEntry{ID: id, Category: c, Color: mec.Color(c), Label: mec.Label(c)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"input":   in,
		"mec":     result,
		"methods": methods,
	})
}

// handleRecommendations ranks methods by eligibility and preference fit.
// Without a profile every method is treated as category 1.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var ranked []scoring.RankedMethod
	if req.hasProfile() {
		ranked = scoring.Rank(mec.Calculate(req.input()), req.Preferences)
	} else {
		ranked = scoring.RankByPreference(req.Preferences)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recommendations": ranked,
	})
}
