package loader

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/graph"
	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/store"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// Reason says what triggered a reload.
type Reason string

const (
	ReasonInitial  Reason = "initial"
	ReasonVersion  Reason = "version"
	ReasonMovement Reason = "movement"
	ReasonManual   Reason = "manual"
)

// Config tunes the pipeline.
type Config struct {
	PollInterval time.Duration
	// FailureThreshold is the number of consecutive failed reloads after
	// which the pipeline reports itself degraded.
	FailureThreshold int
	Window           WindowConfig
}

// DefaultConfig returns the stock pipeline values.
func DefaultConfig() Config {
	return Config{
		PollInterval:     500 * time.Millisecond,
		FailureThreshold: 5,
		Window:           DefaultWindowConfig(),
	}
}

// Status summarizes the health of the load path.
type Status struct {
	LastAttemptAt       time.Time           `json:"last_attempt_at"`
	LastSuccessAt       time.Time           `json:"last_success_at"`
	LastMode            graph.Mode          `json:"last_mode,omitempty"`
	LastReason          Reason              `json:"last_reason,omitempty"`
	LastError           string              `json:"last_error,omitempty"`
	Fallbacks           int                 `json:"fallbacks"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	Degraded            bool                `json:"degraded"`
	VersionDegraded     bool                `json:"version_degraded"`
	SpatialDegraded     bool                `json:"spatial_degraded"`
	Version             domain.VersionToken `json:"version"`
}

// ReloadListener is told about every published snapshot.
type ReloadListener func(prev, next *graph.Snapshot)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics records reloads in collector.
func WithMetrics(collector *observability.Collector) Option {
	return func(p *Pipeline) { p.metrics = collector }
}

// WithTracer wraps each reload in a span.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = tracer }
}

// Pipeline loads snapshots from the backing store into the graph store.
type Pipeline struct {
	cfg      Config
	source   store.BackingStore
	graph    *graph.Store
	detector *ChangeDetector
	window   *WindowManager

	logger  *zap.Logger
	metrics *observability.Collector
	tracer  trace.Tracer
	now     func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	status    Status
	listeners []ReloadListener
}

// NewPipeline creates a pipeline reading from source and publishing into g.
func NewPipeline(cfg Config, source store.BackingStore, g *graph.Store, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	p := &Pipeline{
		cfg:    cfg,
		source: source,
		graph:  g,
		window: NewWindowManager(cfg.Window),
		logger: logger.Named("loader"),
		tracer: noop.NewTracerProvider().Tracer("loader"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.detector = NewChangeDetector(source, logger, p.metrics)
	return p
}

// Window exposes the window manager so callers can report the viewpoint.
func (p *Pipeline) Window() *WindowManager { return p.window }

// Detector exposes the change detector.
func (p *Pipeline) Detector() *ChangeDetector { return p.detector }

// Graph returns the store snapshots are published into.
func (p *Pipeline) Graph() *graph.Store { return p.graph }

// OnReload registers a listener called after each published snapshot.
func (p *Pipeline) OnReload(l ReloadListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Status returns the current health summary.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.status
	s.VersionDegraded = p.detector.Degraded()
	s.SpatialDegraded = p.window.SpatialDisabled()
	return s
}

// Run loads once and then polls every PollInterval until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	if _, err := p.Reload(ctx, ReasonInitial); err != nil {
		p.logger.Warn("Initial load failed", zap.Error(err))
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one poll: a version change reloads, otherwise enough camera
// movement does. Failures are logged and reflected in Status.
func (p *Pipeline) Tick(ctx context.Context) {
	_, changed, err := p.detector.Poll(ctx)
	if err != nil {
		p.logger.Debug("Version poll failed, skipping tick", zap.Error(err))
	}

	var reason Reason
	switch {
	case changed:
		reason = ReasonVersion
	case p.window.ShouldReload(p.now()):
		reason = ReasonMovement
	default:
		return
	}

	if _, err := p.Reload(ctx, reason); err != nil {
		p.logger.Debug("Reload failed", zap.String("reason", string(reason)), zap.Error(err))
	}
}

// Reload loads a fresh snapshot and publishes it. Concurrent callers share a
// single round trip. On failure the previous snapshot stays published.
func (p *Pipeline) Reload(ctx context.Context, reason Reason) (*graph.Snapshot, error) {
	v, err, _ := p.group.Do("reload", func() (any, error) {
		return p.reload(ctx, reason)
	})
	if err != nil {
		return p.graph.Current(), err
	}
	return v.(*graph.Snapshot), nil
}

func (p *Pipeline) reload(ctx context.Context, reason Reason) (*graph.Snapshot, error) {
	if !p.window.TryBegin() {
		return p.graph.Current(), nil
	}
	defer p.window.End()

	ctx, span := p.tracer.Start(ctx, "loader.reload",
		trace.WithAttributes(attribute.String("reload.reason", string(reason))),
	)
	defer span.End()

	start := p.now()
	token, tokenOK := p.detector.Current(ctx)

	total, err := p.source.GetThoughtCount(ctx)
	if err != nil {
		p.logger.Warn("Thought count failed, loading full graph", zap.Error(err))
	}
	mode := LoadMode{Mode: graph.ModeFull}
	if err == nil {
		mode = p.window.Decide(total)
	}
	span.SetAttributes(attribute.String("reload.mode", string(mode.Mode)))

	var in graph.Input
	fellBack := false
	if mode.Windowed() {
		in, err = p.loadWindowed(ctx, mode.Window)
		p.recordAttempt(mode, err, p.now().Sub(start))
		if err != nil {
			if pkgerrors.IsSchemaMismatch(err) {
				p.window.DisableSpatial()
				p.logger.Warn("Backing store has no spatial queries, loading in full from now on", zap.Error(err))
			} else {
				p.logger.Warn("Windowed load failed, falling back to full load", zap.Error(err))
			}
			span.AddEvent("fallback_full")
			fellBack = true
			mode = LoadMode{Mode: graph.ModeFull}
		}
	}
	if !mode.Windowed() {
		fullStart := p.now()
		in, err = p.loadFull(ctx)
		p.recordAttempt(mode, err, p.now().Sub(fullStart))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reload failed")
		p.recordFailure(reason, mode, err, fellBack)
		return nil, err
	}

	loadedAt := p.now()
	in.Mode = mode.Mode
	if mode.Windowed() {
		w := mode.Window
		in.Window = &w
	}
	in.TotalCount = total
	in.Version = token
	in.LoadedAt = loadedAt

	prev, next := p.graph.Replace(in)
	p.window.MarkLoaded(mode, loadedAt)
	if tokenOK {
		p.detector.Accept(token)
	}
	p.recordSuccess(reason, mode, next, fellBack, loadedAt)

	span.SetAttributes(
		attribute.Int("snapshot.thoughts", len(next.Thoughts())),
		attribute.Int("snapshot.connections", len(next.Connections())),
	)
	p.logger.Debug("Snapshot published",
		zap.String("reason", string(reason)),
		zap.String("mode", string(mode.Mode)),
		zap.Int("thoughts", len(next.Thoughts())),
		zap.Int("connections", len(next.Connections())),
		zap.Int("dangling_dropped", next.Stats().DanglingDropped),
		zap.Stringer("version", token),
	)

	p.mu.RLock()
	listeners := make([]ReloadListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()
	for _, l := range listeners {
		l(prev, next)
	}
	return next, nil
}

func (p *Pipeline) loadFull(ctx context.Context) (graph.Input, error) {
	var in graph.Input
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Thoughts, err = p.source.GetAllThoughts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		in.Connections, err = p.source.GetAllConnections(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		in.Clusters, err = p.source.GetAllClusters(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return graph.Input{}, pkgerrors.Wrap(err, "full load")
	}
	return in, nil
}

func (p *Pipeline) loadWindowed(ctx context.Context, w graph.Window) (graph.Input, error) {
	var in graph.Input
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		thoughts, err := p.source.GetThoughtsNear(gctx, w.Center, w.Radius, w.Limit)
		if err != nil {
			return err
		}
		ids := make([]string, len(thoughts))
		for i, t := range thoughts {
			ids[i] = t.ID
		}
		connections, err := p.source.GetConnectionsForThoughts(gctx, ids)
		if err != nil {
			return err
		}
		in.Thoughts, in.Connections = thoughts, connections
		return nil
	})
	g.Go(func() error {
		var err error
		in.Clusters, err = p.source.GetAllClusters(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return graph.Input{}, pkgerrors.Wrap(err, "windowed load")
	}
	return in, nil
}

func (p *Pipeline) recordAttempt(mode LoadMode, err error, d time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordReload(string(mode.Mode), err, d)
	}
}

func (p *Pipeline) recordSuccess(reason Reason, mode LoadMode, next *graph.Snapshot, fellBack bool, at time.Time) {
	p.mu.Lock()
	recovered := p.status.Degraded
	p.status.LastAttemptAt = at
	p.status.LastSuccessAt = at
	p.status.LastMode = mode.Mode
	p.status.LastReason = reason
	p.status.LastError = ""
	p.status.ConsecutiveFailures = 0
	p.status.Degraded = false
	p.status.Version = next.Version()
	if fellBack {
		p.status.Fallbacks++
	}
	p.mu.Unlock()

	if recovered {
		p.logger.Info("Backing store recovered")
	}
	if p.metrics != nil {
		p.metrics.ConsecutiveFailures.Set(0)
		p.metrics.SnapshotThoughts.Set(float64(len(next.Thoughts())))
		p.metrics.SnapshotConnections.Set(float64(len(next.Connections())))
	}
}

func (p *Pipeline) recordFailure(reason Reason, mode LoadMode, err error, fellBack bool) {
	p.mu.Lock()
	p.status.LastAttemptAt = p.now()
	p.status.LastMode = mode.Mode
	p.status.LastReason = reason
	p.status.LastError = err.Error()
	p.status.ConsecutiveFailures++
	if fellBack {
		p.status.Fallbacks++
	}
	failures := p.status.ConsecutiveFailures
	crossed := failures == p.cfg.FailureThreshold
	if failures >= p.cfg.FailureThreshold {
		p.status.Degraded = true
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ConsecutiveFailures.Set(float64(failures))
	}
	if crossed {
		p.logger.Error("Backing store keeps failing, serving the last snapshot",
			zap.Int("consecutive_failures", failures),
			zap.Error(err),
		)
		return
	}
	p.logger.Warn("Reload failed, keeping previous snapshot",
		zap.String("reason", string(reason)),
		zap.Int("consecutive_failures", failures),
		zap.Error(err),
	)
}
