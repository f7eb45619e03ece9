package riskmodel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/contraceptiq/internal/apperr"
	"github.com/thebtf/contraceptiq/pkg/models"
)

// State is the lifecycle state of a Runner.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// loadAttempt is one in-flight load shared by every caller that arrives while it runs.
type loadAttempt struct {
	done chan struct{}
	err  error
}

// Runner owns the two classifier sessions and the hybrid decision constants.
// It loads lazily on first use; concurrent callers share a single load. A
// failed load leaves the runner in StateError and the next call retries.
type Runner struct {
	loader  Loader
	attempt *loadAttempt
	primary Session
	// override is the decision tree consulted for low-confidence negatives.
	override Session
	bundle   Bundle
	version  string
	config   HybridConfig
	loads    int
	state    State
	mu       sync.Mutex
	// runMu keeps Close from destroying sessions under an in-flight Predict.
	runMu sync.RWMutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithModelVersion overrides the model version reported in results.
func WithModelVersion(version string) Option {
	return func(r *Runner) {
		r.version = version
	}
}

// NewRunner creates a runner for bundle. Nothing is loaded until Load or Predict.
func NewRunner(loader Loader, bundle Bundle, opts ...Option) *Runner {
	r := &Runner{
		loader: loader,
		bundle: bundle,
		config: DefaultHybridConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Ready reports whether both sessions are loaded.
func (r *Runner) Ready() bool {
	return r.State() == StateReady
}

// Config returns the decision constants in effect.
func (r *Runner) Config() HybridConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// LoadCount returns how many loads have been started.
func (r *Runner) LoadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

// Load loads the bundle if it is not loaded yet. Callers arriving during a
// load wait for its outcome; ctx only bounds the wait, not the shared load.
func (r *Runner) Load(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateReady:
		r.mu.Unlock()
		return nil
	case StateLoading:
		attempt := r.attempt
		r.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return apperr.New(apperr.KindModelLoad, "riskmodel.Load", "waiting for model load", ctx.Err())
		}
	}

	attempt := &loadAttempt{done: make(chan struct{})}
	r.attempt = attempt
	r.state = StateLoading
	r.loads++
	r.mu.Unlock()

	start := time.Now()
	primary, override, cfg, err := r.loadBundle(context.WithoutCancel(ctx))

	r.mu.Lock()
	if err != nil {
		r.state = StateError
		attempt.err = apperr.New(apperr.KindModelLoad, "riskmodel.Load", "load model bundle", err)
		log.Error().Err(err).Msg("Risk model load failed")
	} else {
		if r.version != "" {
			cfg.ModelVersion = r.version
		}
		r.primary, r.override, r.config = primary, override, cfg
		r.state = StateReady
		log.Info().
			Str("version", cfg.ModelVersion).
			Float64("threshold", cfg.Threshold).
			Float64("confidence_margin", cfg.ConfidenceMargin).
			Dur("took", time.Since(start)).
			Msg("Risk models loaded")
	}
	r.attempt = nil
	close(attempt.done)
	r.mu.Unlock()

	return attempt.err
}

// loadBundle opens both sessions and reads the config in parallel.
func (r *Runner) loadBundle(ctx context.Context) (Session, Session, HybridConfig, error) {
	var (
		primary, override Session
		cfg               HybridConfig
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := r.loader.Load(gctx, r.bundle.PrimaryPath)
		if err != nil {
			return fmt.Errorf("primary model: %w", err)
		}
		primary = s
		return nil
	})
	g.Go(func() error {
		s, err := r.loader.Load(gctx, r.bundle.OverridePath)
		if err != nil {
			return fmt.Errorf("override model: %w", err)
		}
		override = s
		return nil
	})
	g.Go(func() error {
		c, err := LoadHybridConfig(r.bundle.ConfigPath)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	})

	if err := g.Wait(); err != nil {
		closeSessions(primary, override)
		return nil, nil, HybridConfig{}, err
	}
	return primary, override, cfg, nil
}

// Predict scores one feature vector. It loads the models on first use.
// Execution failures return an inference error and no partial result.
func (r *Runner) Predict(ctx context.Context, vec models.FeatureVector) (models.RiskAssessment, error) {
	if err := r.Load(ctx); err != nil {
		return models.RiskAssessment{}, err
	}

	r.runMu.RLock()
	defer r.runMu.RUnlock()

	r.mu.Lock()
	primary, override, cfg := r.primary, r.override, r.config
	r.mu.Unlock()
	if primary == nil || override == nil {
		return models.RiskAssessment{}, apperr.New(apperr.KindModelLoad, "riskmodel.Predict", "models closed", nil)
	}

	if w := primary.InputWidth(); w > 0 && len(vec) != w {
		return models.RiskAssessment{}, apperr.New(apperr.KindValidation, "riskmodel.Predict",
			fmt.Sprintf("feature vector has %d values, model expects %d", len(vec), w), nil)
	}
	if err := ctx.Err(); err != nil {
		return models.RiskAssessment{}, apperr.Wrap(apperr.KindTimeout, "riskmodel.Predict", err)
	}

	out, err := primary.Run(vec)
	if err != nil {
		return models.RiskAssessment{}, apperr.New(apperr.KindInference, "riskmodel.Predict", "primary model", err)
	}
	p, err := out.PositiveProbability()
	if err != nil {
		return models.RiskAssessment{}, apperr.New(apperr.KindInference, "riskmodel.Predict", "primary model", err)
	}

	tree, err := override.Run(vec)
	if err != nil {
		return models.RiskAssessment{}, apperr.New(apperr.KindInference, "riskmodel.Predict", "override model", err)
	}

	result := Decide(p, tree.Label, cfg)
	result.Source = models.SourceOnDevice
	return result, nil
}

// Close releases both sessions and returns the runner to StateUnloaded.
// A later Predict loads again.
func (r *Runner) Close() error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.mu.Lock()
	primary, override := r.primary, r.override
	r.primary, r.override = nil, nil
	if r.state != StateLoading {
		r.state = StateUnloaded
	}
	r.mu.Unlock()

	return closeSessions(primary, override)
}

func closeSessions(sessions ...Session) error {
	var firstErr error
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
