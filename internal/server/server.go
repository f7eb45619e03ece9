// Package server exposes risk assessment, eligibility and the consultation
// code handoff over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/contraceptiq/internal/consultation"
	"github.com/thebtf/contraceptiq/internal/riskmodel"
	"github.com/thebtf/contraceptiq/pkg/models"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout bounds one request.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMaxBodyBytes caps request bodies.
	DefaultMaxBodyBytes = 1 << 20
)

// RiskModel scores encoded answers. *riskmodel.Runner implements it.
type RiskModel interface {
	Predict(ctx context.Context, vec models.FeatureVector) (models.RiskAssessment, error)
	Ready() bool
	Config() riskmodel.HybridConfig
}

// Assessor produces and records a risk result for a consultation.
// *assess.Service implements it.
type Assessor interface {
	AssessAndRecord(ctx context.Context, code string, answers models.PatientAnswers) (models.RiskAssessment, error)
}

// Config holds HTTP service settings.
type Config struct {
	Addr         string
	ModelDir     string  // reported by the health endpoint
	RateLimit    float64 // requests per second per client, 0 disables
	RateBurst    int
	MaxBodyBytes int64
}

// Option configures a Server.
type Option func(*Server)

// WithAssessor enables the consultation assess endpoint.
func WithAssessor(a Assessor) Option {
	return func(s *Server) { s.assessor = a }
}

// Server is the HTTP front of the risk service.
type Server struct {
	model     RiskModel
	store     consultation.Store
	assessor  Assessor
	limiter   *ClientLimiter
	router    *chi.Mux
	server    *http.Server
	startTime time.Time
	cfg       Config
	wg        sync.WaitGroup
}

// New builds the router. store may be nil, in which case the intake routes
// answer 503.
func New(cfg Config, model RiskModel, store consultation.Store, opts ...Option) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{
		model:     model,
		store:     store,
		cfg:       cfg,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = NewClientLimiter(cfg.RateLimit, burst)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures HTTP middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(SecurityHeaders)
	s.router.Use(MaxBodySize(s.cfg.MaxBodyBytes))
	if s.limiter != nil {
		s.router.Use(LimitByClient(s.limiter))
	}
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/v1/features", s.handleFeatures)

	s.router.Group(func(r chi.Router) {
		r.Use(RequireJSONContentType)

		r.Post("/api/v1/discontinuation-risk", s.handleRisk)
		r.Post("/api/v1/mec", s.handleMEC)
		r.Post("/api/v1/recommendations", s.handleRecommendations)

		// Consultation code handoff
		r.Post("/api/v1/patient-intake", s.handleCreateIntake)
		r.Get("/api/v1/patient-intake/{code}", s.handleGetIntake)
		r.Delete("/api/v1/patient-intake/{code}", s.handleCancelIntake)
		r.Put("/api/v1/patient-intake/{code}/risk", s.handleSaveRisk)
		r.Post("/api/v1/patient-intake/{code}/claim", s.handleClaimIntake)
		r.Post("/api/v1/patient-intake/{code}/assess", s.handleAssessIntake)
		r.Get("/api/v1/clinicians/{obID}/queue", s.handleQueue)
		r.Get("/api/v1/clinicians/{obID}/history", s.handleHistory)
	})
}

// Start listens on cfg.Addr in the background.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Str("addr", s.cfg.Addr).Msg("Risk service HTTP server started")
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		if err = s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}
	s.wg.Wait()
	log.Info().Msg("Risk service shutdown complete")
	return err
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", GetRequestID(r.Context())).
				Msg("HTTP request")
		}()
		next.ServeHTTP(ww, r)
	})
}
