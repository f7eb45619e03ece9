// Package remote provides the HTTP client for the remote risk inference service.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/contraceptiq/internal/apperr"
	"github.com/thebtf/contraceptiq/pkg/models"
)

const (
	// DefaultTimeout bounds a single request attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is how many times a retryable failure is repeated.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base of the linear backoff between attempts.
	DefaultRetryDelay = 1 * time.Second

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// ErrNotFound is wrapped by errors for resources the service does not have.
var ErrNotFound = errors.New("not found")

// API paths served by the remote inference service.
const (
	RiskPath   = "/api/v1/discontinuation-risk"
	HealthPath = "/api/health"
	IntakePath = "/api/v1/patient-intake"
)

// Config configures a Client.
type Config struct {
	HTTPClient *http.Client
	BaseURL    string
	Timeout    time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

// Client calls the remote inference service.
type Client struct {
	http       *http.Client
	sleep      func(context.Context, time.Duration) error
	baseURL    string
	timeout    time.Duration
	retryDelay time.Duration
	maxRetries int
}

// NewClient creates a client. Zero values in cfg take the package defaults;
// a negative MaxRetries disables retries.
func NewClient(cfg Config) *Client {
	c := &Client{
		http:       cfg.HTTPClient,
		sleep:      sleepContext,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		retryDelay: cfg.RetryDelay,
		maxRetries: cfg.MaxRetries,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.maxRetries == 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	return c
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ErrorResponse is the body the service returns with a 4xx/5xx status.
type ErrorResponse struct {
	Error            string   `json:"error"`
	Message          string   `json:"message,omitempty"`
	MissingFeatures  []string `json:"missing_features,omitempty"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	RequiredCount    int      `json:"required_features_count,omitempty"`
	ProvidedCount    int      `json:"provided_features_count,omitempty"`
	Status           int      `json:"status,omitempty"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelVersion string `json:"model_version,omitempty"`
	ModelsLoaded bool   `json:"models_loaded"`
}

// AssessRisk posts the payload to the risk endpoint and returns the decoded result.
// 503 responses and network failures are retried with linear backoff; a 400 is
// returned at once as a validation error.
func (c *Client) AssessRisk(ctx context.Context, payload map[string]any) (models.RiskAssessment, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.RiskAssessment{}, apperr.New(apperr.KindValidation, "remote.AssessRisk", "encode payload", err)
	}

	var result models.RiskAssessment
	err = c.withRetry(ctx, "remote.AssessRisk", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, RiskPath, body, &result)
	})
	if err != nil {
		return models.RiskAssessment{}, err
	}
	if !result.RiskLevel.Valid() {
		return models.RiskAssessment{}, apperr.New(apperr.KindUnknown, "remote.AssessRisk",
			fmt.Sprintf("unexpected risk level %q", result.RiskLevel), nil)
	}
	if math.IsNaN(result.Confidence) || result.Confidence < 0 || result.Confidence > 1 {
		return models.RiskAssessment{}, apperr.New(apperr.KindUnknown, "remote.AssessRisk",
			fmt.Sprintf("confidence %v outside [0, 1]", result.Confidence), nil)
	}
	result.Source = models.SourceRemote
	return result, nil
}

// Health queries the service health endpoint. A degraded service answers 503
// with a body; that body is returned together with the error.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var health HealthResponse
	err := c.do(ctx, http.MethodGet, HealthPath, nil, &health)
	return health, err
}

// SubmitIntake stores patient answers and returns the consultation code.
func (c *Client) SubmitIntake(ctx context.Context, patientData map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{"patient_data": patientData})
	if err != nil {
		return "", apperr.New(apperr.KindValidation, "remote.SubmitIntake", "encode payload", err)
	}

	var resp struct {
		Code string `json:"code"`
	}
	err = c.withRetry(ctx, "remote.SubmitIntake", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, IntakePath, body, &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.Code, nil
}

// FetchIntake retrieves the consultation record for code.
func (c *Client) FetchIntake(ctx context.Context, code string) (*models.ConsultationRecord, error) {
	var record models.ConsultationRecord
	err := c.withRetry(ctx, "remote.FetchIntake", func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, IntakePath+"/"+code, nil, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// withRetry runs fn, repeating retryable failures up to maxRetries times.
// The wait before retry n is retryDelay*n.
func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.baseURL == "" {
		return apperr.New(apperr.KindNetwork, op, "remote service URL is not configured", nil)
	}
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= c.maxRetries || ctx.Err() != nil {
			if attempt > 0 {
				log.Error().Err(err).Str("op", op).Int("retries", attempt).Msg("Remote call failed after retries")
			}
			return err
		}

		delay := c.retryDelay * time.Duration(attempt+1)
		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt+1).
			Int("max_retries", c.maxRetries).
			Dur("delay", delay).
			Msg("Remote call failed, retrying")

		if serr := c.sleep(ctx, delay); serr != nil {
			return apperr.Wrap(apperr.KindTimeout, op, serr)
		}
	}
}

// retryable reports whether a failure from the service may succeed on retry:
// transport failures and 503 (models not loaded yet).
func retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindNetwork, apperr.KindTimeout, apperr.KindModelLoad:
		return true
	default:
		return false
	}
}

// do performs a single attempt bounded by the client timeout and decodes a
// 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	op := "remote " + method + " " + path
	if c.baseURL == "" {
		return apperr.New(apperr.KindNetwork, op, "remote service URL is not configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.New(apperr.KindNetwork, op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || apperr.KindOf(err) == apperr.KindTimeout {
			return apperr.New(apperr.KindTimeout, op, fmt.Sprintf("no response within %s", c.timeout), err)
		}
		return apperr.New(apperr.KindNetwork, op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.New(apperr.KindUnknown, op, "decode response", err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return statusError(op, resp.StatusCode, raw, out)
}

// statusError classifies a non-2xx response.
func statusError(op string, status int, raw []byte, out any) error {
	var body ErrorResponse
	_ = json.Unmarshal(raw, &body)

	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusBadRequest:
		details := append(append([]string{}, body.MissingFeatures...), body.ValidationErrors...)
		if len(details) > 0 {
			msg = msg + ": " + strings.Join(details, "; ")
		}
		return apperr.New(apperr.KindValidation, op, msg, nil)
	case http.StatusServiceUnavailable:
		if out != nil {
			_ = json.Unmarshal(raw, out)
		}
		return apperr.New(apperr.KindModelLoad, op, "remote models not loaded: "+msg, nil)
	case http.StatusNotFound:
		return apperr.New(apperr.KindValidation, op, msg, ErrNotFound)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return apperr.New(apperr.KindTimeout, op, msg, nil)
	default:
		return apperr.New(apperr.KindUnknown, op, fmt.Sprintf("status %d: %s", status, msg), nil)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
