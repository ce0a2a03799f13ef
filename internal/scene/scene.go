// Package scene combines the graph store with the overlay engines. It turns
// reload diffs into activation events, drives the engines once per frame and
// renders frames for the HTTP surface.
package scene

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/graph"
	"github.com/420247jake/the-mind/internal/loader"
	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/overlay/activation"
	"github.com/420247jake/the-mind/internal/overlay/reasoning"
	"github.com/420247jake/the-mind/internal/overlay/spark"
	"github.com/420247jake/the-mind/internal/overlay/timeline"
)

// Engines groups the overlay engines a scene drives.
type Engines struct {
	Activation *activation.Engine
	Reasoning  *reasoning.Engine
	Timeline   *timeline.Engine
	Spark      *spark.Engine
}

// Scene is safe for concurrent use.
type Scene struct {
	graph   *graph.Store
	window  *loader.WindowManager
	engines Engines
	logger  *zap.Logger
	metrics *observability.Collector
	now     func() time.Time

	mu       sync.Mutex
	lastTick time.Time
}

// Option configures a Scene.
type Option func(*Scene)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scene) { s.now = now }
}

// WithMetrics records overlay activity in collector.
func WithMetrics(collector *observability.Collector) Option {
	return func(s *Scene) { s.metrics = collector }
}

// New creates a scene over g. window supplies the viewpoint.
func New(g *graph.Store, window *loader.WindowManager, engines Engines, logger *zap.Logger, opts ...Option) *Scene {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scene{
		graph:   g,
		window:  window,
		engines: engines,
		logger:  logger.Named("scene"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engines returns the overlay engines.
func (s *Scene) Engines() Engines { return s.engines }

// Graph returns the graph store.
func (s *Scene) Graph() *graph.Store { return s.graph }

// SetViewpoint records the camera position.
func (s *Scene) SetViewpoint(p domain.Position) {
	s.window.SetViewpoint(p)
}

// Viewpoint returns the camera position.
func (s *Scene) Viewpoint() domain.Position {
	return s.window.Viewpoint()
}

// HandleReload reacts to a newly published snapshot. New thoughts light up in
// a staggered cascade and the newest one starts a reasoning path. New
// connections light both endpoints.
func (s *Scene) HandleReload(prev, next *graph.Snapshot) {
	now := s.now()
	s.engines.Timeline.Refresh(next, now)

	changes := graph.Diff(prev, next)
	if changes.Empty() {
		return
	}

	if n := len(changes.NewThoughts); n > 0 {
		ids := make([]string, n)
		for i, t := range changes.NewThoughts {
			ids[i] = t.ID
		}
		s.engines.Activation.ActivateBatch(ids, 1.0, now)

		newest := changes.NewThoughts[n-1]
		if s.engines.Reasoning.Start(newest.ID, next, now) && s.metrics != nil {
			s.metrics.ReasoningPaths.Inc()
		}
	}
	for _, c := range changes.NewConnections {
		s.engines.Activation.ActivateConnection(c, now)
	}

	s.logger.Debug("Applied graph changes",
		zap.Int("new_thoughts", len(changes.NewThoughts)),
		zap.Int("new_connections", len(changes.NewConnections)),
	)
}

// Tick advances every engine to now.
func (s *Scene) Tick(now time.Time) {
	s.mu.Lock()
	var delta time.Duration
	if !s.lastTick.IsZero() {
		delta = now.Sub(s.lastTick)
	}
	s.lastTick = now
	s.mu.Unlock()

	snap := s.graph.Current()
	s.engines.Timeline.Refresh(snap, now)
	s.engines.Timeline.Advance(delta)
	s.engines.Activation.Tick(now)
	s.engines.Reasoning.Tick(now)

	if ids := s.engines.Spark.Tick(now, snap); len(ids) > 0 && s.metrics != nil {
		s.metrics.Sparks.WithLabelValues(s.engines.Spark.Preset().Name).Inc()
	}

	s.applyProximity(snap, now)

	if s.metrics != nil {
		s.metrics.ActiveActivations.Set(float64(s.engines.Activation.ActiveCount()))
	}
}

func (s *Scene) applyProximity(snap *graph.Snapshot, now time.Time) {
	radius := s.engines.Activation.Config().ProximityRadius
	if radius <= 0 {
		return
	}
	viewpoint := s.window.Viewpoint()
	radiusSq := radius * radius
	for _, t := range snap.Thoughts() {
		if t.Position.DistanceSquaredTo(viewpoint) >= radiusSq {
			continue
		}
		s.engines.Activation.ApplyProximity(t.ID, t.Position.DistanceTo(viewpoint), now)
	}
}

// Run ticks every interval until ctx is done.
func (s *Scene) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}
