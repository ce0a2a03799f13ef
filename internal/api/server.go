// Package api exposes the scene to renderers over HTTP and websockets. It is
// read-mostly: the only writes are renderer state such as the viewpoint, the
// timeline transport and the spark preset.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/420247jake/the-mind/internal/config"
	"github.com/420247jake/the-mind/internal/loader"
	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/scene"
	"github.com/420247jake/the-mind/internal/validation"
	"github.com/420247jake/the-mind/pkg/errors"
)

// Config holds the HTTP surface settings.
type Config struct {
	AllowedOrigins []string
	StreamInterval time.Duration
	ReloadRate     float64
	ReloadBurst    int
}

// DefaultConfig returns permissive local settings.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		StreamInterval: 100 * time.Millisecond,
		ReloadRate:     1,
		ReloadBurst:    3,
	}
}

// TuningSource reports the tuning currently applied.
type TuningSource interface {
	Current() config.Tuning
}

// Server wires handlers to the scene and the load pipeline.
type Server struct {
	config       Config
	scene        *scene.Scene
	pipeline     *loader.Pipeline
	metrics      *observability.Collector
	tuning       TuningSource
	validator    *validation.Validator
	errorHandler *errors.ErrorHandler
	limiter      *rate.Limiter
	hub          *Hub
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves /metrics and records request metrics.
func WithMetrics(collector *observability.Collector) Option {
	return func(s *Server) { s.metrics = collector }
}

// WithTuning serves the applied tuning under /api/tuning.
func WithTuning(src TuningSource) Option {
	return func(s *Server) { s.tuning = src }
}

// WithClock overrides the clock used to render frames.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates the HTTP surface.
func NewServer(cfg Config, sc *scene.Scene, pipeline *loader.Pipeline, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = defaults.StreamInterval
	}
	if cfg.ReloadRate <= 0 {
		cfg.ReloadRate = defaults.ReloadRate
	}
	if cfg.ReloadBurst <= 0 {
		cfg.ReloadBurst = defaults.ReloadBurst
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = defaults.AllowedOrigins
	}

	s := &Server{
		config:       cfg,
		scene:        sc,
		pipeline:     pipeline,
		validator:    validation.Get(),
		errorHandler: errors.NewErrorHandler(logger, false),
		limiter:      rate.NewLimiter(rate.Limit(cfg.ReloadRate), cfg.ReloadBurst),
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.renderFrame, s.metrics, logger)
	return s
}

// Hub returns the frame stream hub.
func (s *Server) Hub() *Hub { return s.hub }

// Run streams frames to websocket clients until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.hub.Run(ctx, s.config.StreamInterval)
}

func (s *Server) renderFrame() scene.Frame {
	return s.scene.Frame(s.now())
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger))
	if s.metrics != nil {
		router.Use(requestMetrics(s.metrics))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/healthz", s.health)
	if s.metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	router.Get("/ws/frames", s.hub.ServeWS)

	router.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.getSnapshot)
		r.Get("/frame", s.getFrame)

		r.Route("/thoughts/{id}", func(r chi.Router) {
			r.Get("/", s.getThought)
			r.Get("/connections", s.getConnections)
		})
		r.Get("/clusters", s.listClusters)
		r.Get("/clusters/{category}", s.getCluster)

		r.Put("/viewpoint", s.putViewpoint)
		r.Get("/viewpoint", s.getViewpoint)

		r.Get("/timeline", s.getTimeline)
		r.Post("/timeline", s.postTimeline)

		r.Get("/spark", s.getSpark)
		r.Put("/spark", s.putSpark)

		r.Get("/tuning", s.getTuning)
		r.Post("/reload", s.postReload)
	})

	return router
}
