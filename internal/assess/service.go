// Package assess is the single entry point for discontinuation risk assessment.
// It runs the on-device models first and falls back to the remote service.
package assess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/contraceptiq/internal/apperr"
	"github.com/thebtf/contraceptiq/internal/features"
	"github.com/thebtf/contraceptiq/pkg/models"
)

// DefaultSweepInterval is how often the janitor evicts stale pending requests.
const DefaultSweepInterval = 10 * time.Second

// ErrUnavailable is matched by the error returned when every path failed.
// Callers should continue without a risk score.
var ErrUnavailable = errors.New("risk assessment unavailable")

// Predictor runs the on-device models.
type Predictor interface {
	Predict(ctx context.Context, vec models.FeatureVector) (models.RiskAssessment, error)
}

// RemoteAssessor calls the remote inference service.
type RemoteAssessor interface {
	AssessRisk(ctx context.Context, payload map[string]any) (models.RiskAssessment, error)
}

// RiskResultWriter stores a risk result on a consultation record.
type RiskResultWriter interface {
	SaveRiskResult(ctx context.Context, code string, result models.RiskAssessment) error
}

// UnavailableError carries the failure of each path that was attempted.
type UnavailableError struct {
	OnDevice error
	Remote   error
}

func (e *UnavailableError) Error() string {
	var parts []string
	if e.OnDevice != nil {
		parts = append(parts, "on-device: "+e.OnDevice.Error())
	}
	if e.Remote != nil {
		parts = append(parts, "remote: "+e.Remote.Error())
	}
	return strings.Join(parts, "; ")
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func (e *UnavailableError) Unwrap() []error {
	var errs []error
	if e.OnDevice != nil {
		errs = append(errs, e.OnDevice)
	}
	if e.Remote != nil {
		errs = append(errs, e.Remote)
	}
	return errs
}

// Service orchestrates encoder, on-device runner and remote fallback, and
// collapses concurrent identical requests.
type Service struct {
	predictor Predictor
	remote    RemoteAssessor
	writer    RiskResultWriter
	meter     metric.Meter
	clock     Clock
	dedup     *Deduplicator
	metrics   *serviceMetrics
	stopCh    chan struct{}
	doneCh    chan struct{}
	dedupTTL  time.Duration
	sweep     time.Duration
	mu        sync.Mutex
	onDevice  bool
	running   bool
}

// Option configures a Service.
type Option func(*Service)

// WithRemote sets the fallback remote service.
func WithRemote(remote RemoteAssessor) Option {
	return func(s *Service) {
		s.remote = remote
	}
}

// WithResultWriter sets where AssessAndRecord stores results.
func WithResultWriter(w RiskResultWriter) Option {
	return func(s *Service) {
		s.writer = w
	}
}

// WithOnDevice enables or disables the on-device path.
func WithOnDevice(enabled bool) Option {
	return func(s *Service) {
		s.onDevice = enabled
	}
}

// WithClock sets the time source used for deduplication.
func WithClock(c Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithDedupTTL sets how long a pending request may be joined.
func WithDedupTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.dedupTTL = ttl
	}
}

// WithSweepInterval sets how often the janitor runs.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		s.sweep = d
	}
}

// WithMeter sets the meter for the service's instruments.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		s.meter = m
	}
}

// NewService creates a service. predictor may be nil when on-device inference
// is not supported on this host.
func NewService(predictor Predictor, opts ...Option) *Service {
	s := &Service{
		predictor: predictor,
		onDevice:  true,
		dedupTTL:  DefaultDedupTTL,
		sweep:     DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweep <= 0 {
		s.sweep = DefaultSweepInterval
	}
	s.dedup = NewDeduplicator(s.dedupTTL, s.clock)
	s.metrics = newServiceMetrics(s.meter)
	return s
}

// Start launches the janitor that evicts stale pending requests.
// Calling Start on a running service is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.janitor(s.sweep, s.stopCh, s.doneCh)
}

// Close stops the janitor and waits for it to exit.
func (s *Service) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
	return nil
}

func (s *Service) janitor(interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if n := s.dedup.Sweep(); n > 0 {
				log.Debug().Int("evicted", n).Msg("Evicted stale pending assessments")
			}
		}
	}
}

// Preload loads the on-device models ahead of the first request when the
// predictor supports it.
func (s *Service) Preload(ctx context.Context) error {
	loader, ok := s.predictor.(interface{ Load(context.Context) error })
	if !ok || !s.onDevice {
		return nil
	}
	return loader.Load(ctx)
}

// OnDeviceReady reports whether the on-device models are loaded.
func (s *Service) OnDeviceReady() bool {
	if s.predictor == nil || !s.onDevice {
		return false
	}
	if r, ok := s.predictor.(interface{ Ready() bool }); ok {
		return r.Ready()
	}
	return true
}

// AssessRisk returns the risk assessment for answers. Concurrent calls with
// equal answers share one execution and receive equal results.
func (s *Service) AssessRisk(ctx context.Context, answers models.PatientAnswers) (models.RiskAssessment, error) {
	key := RequestKey(answers)
	res, shared, err := s.dedup.Do(ctx, key, func(ctx context.Context) (models.RiskAssessment, error) {
		return s.assess(ctx, answers)
	})
	if shared {
		s.metrics.recordCoalesced(ctx)
		log.Debug().Str("key", key).Msg("Joined in-flight assessment")
	}
	return res, err
}

// AssessAndRecord assesses answers and stores the result on the consultation
// record identified by code.
func (s *Service) AssessAndRecord(ctx context.Context, code string, answers models.PatientAnswers) (models.RiskAssessment, error) {
	const op = "assess.AssessAndRecord"
	if s.writer == nil {
		return models.RiskAssessment{}, apperr.New(apperr.KindUnknown, op, "no result writer configured", nil)
	}

	res, err := s.AssessRisk(ctx, answers)
	if err != nil {
		return models.RiskAssessment{}, err
	}
	if err := s.writer.SaveRiskResult(ctx, code, res); err != nil {
		return models.RiskAssessment{}, apperr.Wrap(apperr.KindUnknown, op, fmt.Errorf("save risk result for %s: %w", code, err))
	}
	return res, nil
}

func (s *Service) assess(ctx context.Context, answers models.PatientAnswers) (models.RiskAssessment, error) {
	start := time.Now()

	var deviceErr error
	if s.predictor != nil && s.onDevice {
		res, err := s.assessOnDevice(ctx, answers)
		if err == nil {
			s.metrics.recordSuccess(ctx, models.SourceOnDevice, time.Since(start))
			return res, nil
		}
		deviceErr = err
		log.Warn().
			Err(err).
			Str("kind", string(apperr.KindOf(err))).
			Msg("On-device assessment failed, falling back to remote")
	}

	if s.remote == nil {
		return models.RiskAssessment{}, s.unavailable(ctx, deviceErr,
			apperr.New(apperr.KindNetwork, "assess.remote", "no remote service configured", nil))
	}
	if deviceErr != nil {
		s.metrics.recordFallback(ctx, deviceErr)
	}

	res, err := s.remote.AssessRisk(ctx, answers.Payload())
	if err != nil {
		return models.RiskAssessment{}, s.unavailable(ctx, deviceErr, err)
	}
	res.Source = models.SourceRemote
	s.metrics.recordSuccess(ctx, models.SourceRemote, time.Since(start))
	return res, nil
}

func (s *Service) assessOnDevice(ctx context.Context, answers models.PatientAnswers) (models.RiskAssessment, error) {
	vec, defaulted := features.EncodeDetailed(answers)
	if len(defaulted) > 0 {
		log.Debug().Int("defaulted", len(defaulted)).Msg("Encoded answers with defaults")
	}
	if v := features.Validate(vec); !v.Valid {
		return models.RiskAssessment{}, apperr.New(apperr.KindValidation, "assess.onDevice", v.Error(), nil)
	}
	return s.predictor.Predict(ctx, vec)
}

// unavailable builds the normalized failure. Its kind is the on-device
// failure's kind when that path ran, otherwise the remote failure's kind.
func (s *Service) unavailable(ctx context.Context, deviceErr, remoteErr error) error {
	kind := apperr.KindOf(remoteErr)
	if deviceErr != nil {
		kind = apperr.KindOf(deviceErr)
	}
	s.metrics.recordFailure(ctx, kind)
	log.Error().
		AnErr("on_device", deviceErr).
		AnErr("remote", remoteErr).
		Str("kind", string(kind)).
		Msg("Risk assessment unavailable")

	return &apperr.Error{
		Kind:    kind,
		Op:      "assess.AssessRisk",
		Message: ErrUnavailable.Error(),
		Err:     &UnavailableError{OnDevice: deviceErr, Remote: remoteErr},
	}
}
