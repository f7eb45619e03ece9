package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/contraceptiq/internal/apperr"
	"github.com/thebtf/contraceptiq/internal/consultation"
	"github.com/thebtf/contraceptiq/internal/features"
	"github.com/thebtf/contraceptiq/internal/mec"
	"github.com/thebtf/contraceptiq/internal/remote"
	"github.com/thebtf/contraceptiq/internal/riskmodel"
	"github.com/thebtf/contraceptiq/pkg/models"
)

// fakeModel records the vectors it is asked to score.
type fakeModel struct {
	err     error
	lastVec models.FeatureVector
	result  models.RiskAssessment
	calls   int
	mu      sync.Mutex
	ready   atomic.Bool
}

func newFakeModel(result models.RiskAssessment) *fakeModel {
	m := &fakeModel{result: result}
	m.ready.Store(true)
	return m
}

func (m *fakeModel) Predict(ctx context.Context, vec models.FeatureVector) (models.RiskAssessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastVec = vec
	return m.result, m.err
}

func (m *fakeModel) Ready() bool { return m.ready.Load() }

func (m *fakeModel) Config() riskmodel.HybridConfig { return riskmodel.DefaultHybridConfig() }

// fakeAssessor records the answers it is asked to assess.
type fakeAssessor struct {
	store   consultation.Store
	err     error
	answers models.PatientAnswers
	result  models.RiskAssessment
}

func (a *fakeAssessor) AssessAndRecord(ctx context.Context, code string, answers models.PatientAnswers) (models.RiskAssessment, error) {
	a.answers = answers
	if a.err != nil {
		return models.RiskAssessment{}, a.err
	}
	return a.result, a.store.SaveRiskResult(ctx, code, a.result)
}

func intakePayload() map[string]any {
	return map[string]any{
		"AGE":                            28,
		"REGION":                         "Region VII – Central Visayas",
		"EDUC_LEVEL":                     "College Graduate",
		"RELIGION":                       "Iglesia ni Cristo",
		"ETHNICITY":                      "Cebuano",
		"MARITAL_STATUS":                 "Married",
		"RESIDING_WITH_PARTNER":          "Yes",
		"HOUSEHOLD_HEAD_SEX":             "Shared/Both",
		"OCCUPATION":                     "Farmer",
		"HUSBANDS_EDUC":                  "Secondary",
		"HUSBAND_AGE":                    33,
		"PARTNER_EDUC":                   "Primary",
		"SMOKE_CIGAR":                    "Occasional smoker",
		"PARITY":                         2,
		"DESIRE_FOR_MORE_CHILDREN":       "Not Sure",
		"WANT_LAST_CHILD":                "Yes",
		"WANT_LAST_PREGNANCY":            "No",
		"CONTRACEPTIVE_METHOD":           3,
		"MONTH_USE_CURRENT_METHOD":       14,
		"PATTERN_USE":                    1,
		"TOLD_ABT_SIDE_EFFECTS":          1,
		"LAST_SOURCE_TYPE":               2,
		"LAST_METHOD_DISCONTINUED":       "Injectable",
		"REASON_DISCONTINUED":            "Side effects",
		"HSBND_DESIRE_FOR_MORE_CHILDREN": "No",
	}
}

var highRisk = models.RiskAssessment{
	RiskLevel:      models.RiskHigh,
	Confidence:     0.4213,
	Recommendation: "Schedule follow-up counseling session",
	Probability:    0.4213,
	Metadata:       models.AssessmentMetadata{ModelVersion: "v3", Threshold: 0.15, ConfidenceMargin: 0.2},
	Source:         models.SourceOnDevice,
}

type HandlersSuite struct {
	suite.Suite
	model    *fakeModel
	store    *consultation.SQLiteStore
	assessor *fakeAssessor
	srv      *Server
}

func (s *HandlersSuite) SetupTest() {
	store, err := consultation.OpenSQLite(":memory:")
	s.Require().NoError(err)
	s.store = store
	s.model = newFakeModel(highRisk)
	s.assessor = &fakeAssessor{store: store, result: highRisk}
	s.srv = New(Config{ModelDir: "/opt/models"}, s.model, store, WithAssessor(s.assessor))
}

func (s *HandlersSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *HandlersSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *HandlersSuite) createIntake() string {
	rec := s.do(http.MethodPost, "/api/v1/patient-intake", map[string]any{"patient_data": intakePayload()})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp intakeResponse
	s.decode(rec, &resp)
	return resp.Code
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *HandlersSuite) TestHealth_GoodScenarios_Loaded() {
	rec := s.do(http.MethodGet, "/api/health", nil)

	s.Equal(http.StatusOK, rec.Code)
	var resp healthResponse
	s.decode(rec, &resp)
	s.Equal("healthy", resp.Status)
	s.True(resp.ModelsLoaded)
	s.Equal("v3", resp.ModelVersion)
	s.Equal("/opt/models", resp.ModelDirectory)
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func (s *HandlersSuite) TestFeatures_GoodScenarios_Categories() {
	rec := s.do(http.MethodGet, "/api/v1/features", nil)

	s.Equal(http.StatusOK, rec.Code)
	var resp struct {
		Required   []string       `json:"required_features"`
		Categories map[string]int `json:"categories"`
		Total      int            `json:"total_count"`
	}
	s.decode(rec, &resp)
	s.Equal(features.FeatureCount, resp.Total)
	s.Len(resp.Required, features.FeatureCount)
	s.Equal("AGE", resp.Required[0])
	s.Equal(map[string]int{"demographic": 13, "fertility": 4, "method_history": 8}, resp.Categories)
}

func (s *HandlersSuite) TestRisk_GoodScenarios_ScoresEncodedAnswers() {
	rec := s.do(http.MethodPost, "/api/v1/discontinuation-risk", intakePayload())

	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp models.RiskAssessment
	s.decode(rec, &resp)
	s.Equal(models.RiskHigh, resp.RiskLevel)
	s.Equal(0.4213, resp.Confidence)
	s.Equal("Schedule follow-up counseling session", resp.Recommendation)
	s.Empty(resp.Source, "the remote side does not label its own results")
	s.NotContains(rec.Body.String(), `"source"`)

	s.Equal(1, s.model.calls)
	s.Len(s.model.lastVec, features.FeatureCount)
	s.Equal(float32(28), s.model.lastVec[0])
}

func (s *HandlersSuite) TestMEC_GoodScenarios_OlderHeavySmoker() {
	rec := s.do(http.MethodPost, "/api/v1/mec", map[string]any{
		"age": 36, "smoking_status": "Current daily", "cigarettes_per_day": 20,
	})

	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		MEC     models.MECResult `json:"mec"`
		Methods []mecEntry       `json:"methods"`
	}
	s.decode(rec, &resp)
	s.Equal(models.MECUnacceptable, resp.MEC.CHC)
	s.Equal(models.MECNoRestriction, resp.MEC.Implant)
	s.Len(resp.Methods, len(models.Methods))
	for _, m := range resp.Methods {
		s.NotEmpty(m.Color)
		s.NotEmpty(m.Label)
	}
}

func (s *HandlersSuite) TestMEC_GoodScenarios_FromAnswers() {
	rec := s.do(http.MethodPost, "/api/v1/mec", map[string]any{
		"answers": map[string]any{"AGE": 16, "SMOKE_CIGAR": "Never"},
	})

	s.Require().Equal(http.StatusOK, rec.Code)
	var resp struct {
		MEC models.MECResult `json:"mec"`
	}
	s.decode(rec, &resp)
	s.Equal(models.MECAdvantages, resp.MEC.CuIUD, "adolescents get category 2 for IUDs")
}

func (s *HandlersSuite) TestRecommendations_GoodScenarios_RankedByEligibility() {
	rec := s.do(http.MethodPost, "/api/v1/recommendations", map[string]any{
		"age": 36, "smoking_status": "current_daily", "cigarettes_per_day": 20,
		"preferences": []string{"nonhormonal"},
	})

	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Recommendations []struct {
			ID       models.MethodID    `json:"id"`
			Category models.MECCategory `json:"mec_category"`
		} `json:"recommendations"`
	}
	s.decode(rec, &resp)
	s.Require().Len(resp.Recommendations, len(models.Methods))
	last := resp.Recommendations[len(resp.Recommendations)-1]
	s.Equal(models.MethodCHC, last.ID)
	s.Equal(models.MECUnacceptable, last.Category)
}

func (s *HandlersSuite) TestIntake_GoodScenarios_CreateAndFetch() {
	code := s.createIntake()
	s.True(consultation.ValidCode(code))

	rec := s.do(http.MethodGet, "/api/v1/patient-intake/"+strings.ToLower(code), nil)

	s.Require().Equal(http.StatusOK, rec.Code)
	var got models.ConsultationRecord
	s.decode(rec, &got)
	s.Equal(code, got.Code)
	s.Equal(models.StatusWaiting, got.Status)
	s.Equal("Cebuano", got.PatientData["ETHNICITY"])
}

func (s *HandlersSuite) TestIntake_GoodScenarios_RawBodyAndExpiry() {
	rec := s.do(http.MethodPost, "/api/v1/patient-intake", map[string]any{"AGE": 30})

	s.Require().Equal(http.StatusCreated, rec.Code)
	var resp intakeResponse
	s.decode(rec, &resp)
	s.Equal("24h", resp.ExpiresIn)
	s.False(resp.ExpiresAt.IsZero())
}

func (s *HandlersSuite) TestIntake_GoodScenarios_ClaimAssessHistory() {
	code := s.createIntake()

	rec := s.do(http.MethodPost, "/api/v1/patient-intake/"+code+"/claim", claimRequest{OBID: "ob-7", OBName: "Dr. Cruz"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/clinicians/ob-7/queue", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var queue struct {
		Consultations []models.ConsultationRecord `json:"consultations"`
		Count         int                         `json:"count"`
	}
	s.decode(rec, &queue)
	s.Equal(1, queue.Count)

	rec = s.do(http.MethodPost, "/api/v1/patient-intake/"+code+"/assess", map[string]any{})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("28", s.assessor.answers[models.KeyAge])

	rec = s.do(http.MethodGet, "/api/v1/clinicians/ob-7/history", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var history struct {
		Consultations []models.ConsultationRecord `json:"consultations"`
	}
	s.decode(rec, &history)
	s.Require().Len(history.Consultations, 1)
	s.Equal(models.StatusCritical, history.Consultations[0].Status)
}

func (s *HandlersSuite) TestIntake_GoodScenarios_SaveRiskAndCancel() {
	code := s.createIntake()

	rec := s.do(http.MethodPut, "/api/v1/patient-intake/"+code+"/risk", models.RiskAssessment{
		RiskLevel: models.RiskLow, Confidence: 0.05, Recommendation: "Continue monitoring contraceptive use",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), `"completed"`)

	other := s.createIntake()
	rec = s.do(http.MethodDelete, "/api/v1/patient-intake/"+other, nil)
	s.Equal(http.StatusNoContent, rec.Code)

	got, err := s.store.Get(context.Background(), other)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, got.Status)
}

// =============================================================================
// BAD SCENARIOS - Invalid input handling
// =============================================================================

func (s *HandlersSuite) TestHealth_BadScenarios_NotLoaded() {
	s.model.ready.Store(false)

	rec := s.do(http.MethodGet, "/api/health", nil)

	s.Equal(http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	s.decode(rec, &resp)
	s.Equal("degraded", resp.Status)
	s.False(resp.ModelsLoaded)
}

func (s *HandlersSuite) TestRisk_BadScenarios_ModelsNotLoaded() {
	s.model.ready.Store(false)

	rec := s.do(http.MethodPost, "/api/v1/discontinuation-risk", intakePayload())

	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Contains(rec.Body.String(), "Models not loaded")
	s.Zero(s.model.calls)
}

func (s *HandlersSuite) TestRisk_BadScenarios_MissingFeatures() {
	rec := s.do(http.MethodPost, "/api/v1/discontinuation-risk", map[string]any{"AGE": 30, "PARITY": 1})

	s.Equal(http.StatusBadRequest, rec.Code)
	var resp remote.ErrorResponse
	s.decode(rec, &resp)
	s.Equal("Missing required features", resp.Error)
	s.Contains(resp.MissingFeatures, "REGION")
	s.NotContains(resp.MissingFeatures, "AGE")
	s.Equal(len(features.RequiredKeys), resp.RequiredCount)
	s.Equal(2, resp.ProvidedCount)
	s.Zero(s.model.calls)
}

func (s *HandlersSuite) TestRisk_BadScenarios_OutOfRangeValue() {
	payload := intakePayload()
	payload["AGE"] = 500

	rec := s.do(http.MethodPost, "/api/v1/discontinuation-risk", payload)

	s.Equal(http.StatusBadRequest, rec.Code)
	var resp remote.ErrorResponse
	s.decode(rec, &resp)
	s.Require().NotEmpty(resp.ValidationErrors)
	s.Contains(resp.ValidationErrors[0], "AGE")
}

func (s *HandlersSuite) TestRisk_BadScenarios_EmptyBody() {
	rec := s.do(http.MethodPost, "/api/v1/discontinuation-risk", nil)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "No data provided")
}

func (s *HandlersSuite) TestRisk_BadScenarios_MalformedJSON() {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discontinuation-risk", strings.NewReader(`{"AGE":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.srv.Handler().ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlersSuite) TestRisk_BadScenarios_WrongContentType() {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discontinuation-risk", strings.NewReader(`AGE=30`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.srv.Handler().ServeHTTP(rec, req)

	s.Equal(http.StatusUnsupportedMediaType, rec.Code)
}

func (s *HandlersSuite) TestRisk_BadScenarios_PredictionErrors() {
	cases := []struct {
		err    error
		status int
	}{
		{apperr.New(apperr.KindModelLoad, "riskmodel.Load", "missing artifact", nil), http.StatusServiceUnavailable},
		{apperr.New(apperr.KindInference, "riskmodel.Predict", "primary model", nil), http.StatusInternalServerError},
		{apperr.New(apperr.KindValidation, "riskmodel.Predict", "width", nil), http.StatusBadRequest},
		{apperr.New(apperr.KindTimeout, "riskmodel.Predict", "deadline", nil), http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		s.model.err = tc.err

		rec := s.do(http.MethodPost, "/api/v1/discontinuation-risk", intakePayload())

		s.Equal(tc.status, rec.Code, tc.err.Error())
		var resp remote.ErrorResponse
		s.decode(rec, &resp)
		s.Equal(apperr.UserMessage(tc.err), resp.Message)
	}
}

func (s *HandlersSuite) TestIntake_BadScenarios_UnknownAndMalformedCodes() {
	for _, code := range []string{"ZZZZZZ", "abc", "A7X-9P"} {
		rec := s.do(http.MethodGet, "/api/v1/patient-intake/"+code, nil)
		s.Equal(http.StatusNotFound, rec.Code, code)
		s.Contains(rec.Body.String(), "Invalid code or data expired")
	}
}

func (s *HandlersSuite) TestIntake_BadScenarios_EmptyPatientData() {
	rec := s.do(http.MethodPost, "/api/v1/patient-intake", map[string]any{"patient_data": map[string]any{}})

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlersSuite) TestIntake_BadScenarios_ClaimConflict() {
	code := s.createIntake()
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/api/v1/patient-intake/"+code+"/claim", claimRequest{OBID: "ob-1"}).Code)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPut, "/api/v1/patient-intake/"+code+"/risk", highRisk).Code)

	rec := s.do(http.MethodPost, "/api/v1/patient-intake/"+code+"/claim", claimRequest{OBID: "ob-2"})

	s.Equal(http.StatusConflict, rec.Code)
}

func (s *HandlersSuite) TestIntake_BadScenarios_ClaimWithoutClinician() {
	code := s.createIntake()

	rec := s.do(http.MethodPost, "/api/v1/patient-intake/"+code+"/claim", claimRequest{OBID: "  "})

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlersSuite) TestIntake_BadScenarios_InvalidRiskLevel() {
	code := s.createIntake()

	rec := s.do(http.MethodPut, "/api/v1/patient-intake/"+code+"/risk", map[string]any{"risk_level": "MEDIUM"})

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlersSuite) TestIntake_BadScenarios_AssessFailure() {
	code := s.createIntake()
	s.assessor.err = apperr.New(apperr.KindNetwork, "assess.AssessRisk", "risk assessment unavailable", nil)

	rec := s.do(http.MethodPost, "/api/v1/patient-intake/"+code+"/assess", map[string]any{})

	s.Equal(http.StatusBadGateway, rec.Code)
}

// =============================================================================
// EDGE CASES
// =============================================================================

func (s *HandlersSuite) TestRecommendations_EdgeCases_NoProfileKeepsDisplayOrder() {
	rec := s.do(http.MethodPost, "/api/v1/recommendations", map[string]any{})

	s.Require().Equal(http.StatusOK, rec.Code)
	var resp struct {
		Recommendations []struct {
			ID models.MethodID `json:"id"`
		} `json:"recommendations"`
	}
	s.decode(rec, &resp)
	s.Require().Len(resp.Recommendations, len(models.Methods))
	s.Equal(models.MethodImplant, resp.Recommendations[0].ID)
}

func (s *HandlersSuite) TestMEC_EdgeCases_OmittedAgeUsesDefault() {
	rec := s.do(http.MethodPost, "/api/v1/mec", map[string]any{"smoking_status": "never"})

	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Input mec.Input        `json:"input"`
		MEC   models.MECResult `json:"mec"`
	}
	s.decode(rec, &resp)
	s.Equal(mec.DefaultAge, resp.Input.Age)
	s.Equal(models.MECNoRestriction, resp.MEC.CuIUD)
	s.Equal(models.MECNoRestriction, resp.MEC.LNGIUD)
	s.Equal(models.MECNoRestriction, resp.MEC.DMPA)
}

func (s *HandlersSuite) TestMEC_EdgeCases_ExplicitAdolescentAge() {
	tests := []struct {
		name string
		age  int
	}{
		{name: "sixteen", age: 16},
		{name: "zero", age: 0},
	}
	for _, tc := range tests {
		s.Run(tc.name, func() {
			rec := s.do(http.MethodPost, "/api/v1/mec", map[string]any{"age": tc.age})

			s.Require().Equal(http.StatusOK, rec.Code)
			var resp struct {
				MEC models.MECResult `json:"mec"`
			}
			s.decode(rec, &resp)
			s.Equal(models.MECAdvantages, resp.MEC.CuIUD)
		})
	}
}

func (s *HandlersSuite) TestRecommendations_EdgeCases_SmokingOnlyProfile() {
	rec := s.do(http.MethodPost, "/api/v1/recommendations", map[string]any{
		"smoking_status": "current_daily", "cigarettes_per_day": 20,
	})

	s.Require().Equal(http.StatusOK, rec.Code)
	var resp struct {
		Recommendations []struct {
			ID       models.MethodID    `json:"id"`
			Category models.MECCategory `json:"mec_category"`
		} `json:"recommendations"`
	}
	s.decode(rec, &resp)
	s.Require().Len(resp.Recommendations, len(models.Methods))
	for _, r := range resp.Recommendations {
		s.NotEqual(models.MECUnacceptable, r.Category, "a %d-year-old smoker keeps every method", mec.DefaultAge)
	}
}

func (s *HandlersSuite) TestIntake_EdgeCases_AssessWithoutAssessor() {
	srv := New(Config{}, s.model, s.store)
	code := s.createIntake()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patient-intake/"+code+"/assess", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	s.Equal(http.StatusNotImplemented, rec.Code)
}

func (s *HandlersSuite) TestIntake_EdgeCases_NoStore() {
	srv := New(Config{}, s.model, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patient-intake/A7X29P", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *HandlersSuite) TestRisk_EdgeCases_OversizedBody() {
	srv := New(Config{MaxBodyBytes: 64}, s.model, s.store)
	data, err := json.Marshal(intakePayload())
	s.Require().NoError(err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discontinuation-risk", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	s.Equal(http.StatusRequestEntityTooLarge, rec.Code)
}

// TestClientRoundTrip drives the service through the remote client the app uses.
func TestClientRoundTrip(t *testing.T) {
	store, err := consultation.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	model := newFakeModel(highRisk)
	ts := httptest.NewServer(New(Config{}, model, store).Handler())
	defer ts.Close()

	client := remote.NewClient(remote.Config{BaseURL: ts.URL, MaxRetries: -1})
	ctx := context.Background()

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.ModelsLoaded)

	res, err := client.AssessRisk(ctx, intakePayload())
	require.NoError(t, err)
	assert.Equal(t, models.RiskHigh, res.RiskLevel)
	assert.Equal(t, models.SourceRemote, res.Source)
	assert.Equal(t, 0.15, res.Metadata.Threshold)

	_, err = client.AssessRisk(ctx, map[string]any{"AGE": 30})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "REGION")

	code, err := client.SubmitIntake(ctx, intakePayload())
	require.NoError(t, err)
	rec, err := client.FetchIntake(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, code, rec.Code)
	assert.Equal(t, models.StatusWaiting, rec.Status)

	_, err = client.FetchIntake(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	model.ready.Store(false)
	_, err = client.AssessRisk(ctx, intakePayload())
	assert.Equal(t, apperr.KindModelLoad, apperr.KindOf(err))
}
