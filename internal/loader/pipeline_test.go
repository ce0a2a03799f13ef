package loader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/fixtures"
	"github.com/420247jake/the-mind/internal/graph"
	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/store"
	"github.com/420247jake/the-mind/internal/store/memory"
	"github.com/420247jake/the-mind/internal/store/mocks"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seededStore(t *testing.T, n int, spacing float64, opts ...memory.Option) *memory.Store {
	t.Helper()
	s := memory.New(opts...)
	for _, th := range fixtures.Grid(n, spacing) {
		require.NoError(t, s.AddThought(context.Background(), th))
	}
	return s
}

func transient(op string) error {
	return pkgerrors.NewTransientQueryError(op, errors.New("database is locked"))
}

func newPipeline(t *testing.T, source store.BackingStore, opts ...Option) (*Pipeline, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: fixtures.Epoch.Add(time.Hour)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewPipeline(DefaultConfig(), source, graph.NewStore(), zaptest.NewLogger(t), opts...), clock
}

func TestPipelineFullLoad(t *testing.T) {
	ctx := context.Background()
	src := seededStore(t, 10, 1)
	require.NoError(t, src.AddConnection(ctx, fixtures.NewConnectionBuilder("t0", "t1").WithID("c1").Build()))
	p, _ := newPipeline(t, src)

	snap, err := p.Reload(ctx, ReasonInitial)
	require.NoError(t, err)

	assert.Equal(t, graph.ModeFull, snap.Mode())
	assert.Len(t, snap.Thoughts(), 10)
	assert.Len(t, snap.Connections(), 1)
	assert.Same(t, snap, p.Graph().Current())
	assert.Equal(t, domain.VersionToken{MaxThoughtID: 10, MaxConnectionID: 1}, snap.Version())

	accepted, ok := p.Detector().Accepted()
	require.True(t, ok)
	assert.Equal(t, snap.Version(), accepted)

	status := p.Status()
	assert.Equal(t, ReasonInitial, status.LastReason)
	assert.Zero(t, status.ConsecutiveFailures)
	assert.False(t, status.Degraded)
}

func TestPipelineWindowedLoadForLargeGraph(t *testing.T) {
	p, _ := newPipeline(t, seededStore(t, 600, 0.1))

	snap, err := p.Reload(context.Background(), ReasonInitial)
	require.NoError(t, err)

	assert.Equal(t, graph.ModeWindowed, snap.Mode())
	require.NotNil(t, snap.Window())
	assert.Equal(t, 80.0, snap.Window().Radius)
	assert.Equal(t, 300, snap.Window().Limit)
	assert.LessOrEqual(t, len(snap.Thoughts()), 300)
	assert.Equal(t, 600, snap.TotalCount())
}

func TestPipelineWindowedFailureFallsBackToFull(t *testing.T) {
	faulty := mocks.NewFaultyStore(seededStore(t, 600, 0.1))
	faulty.SetError(store.OpGetThoughtsNear, transient(store.OpGetThoughtsNear))
	metrics := observability.NewCollector("test")
	p, _ := newPipeline(t, faulty, WithMetrics(metrics))

	snap, err := p.Reload(context.Background(), ReasonInitial)
	require.NoError(t, err)

	assert.Equal(t, graph.ModeFull, snap.Mode())
	assert.Len(t, snap.Thoughts(), 600)
	assert.Equal(t, 1, faulty.Calls(store.OpGetThoughtsNear))
	assert.Equal(t, 1, p.Status().Fallbacks)
	assert.False(t, p.Status().SpatialDegraded, "transient failure keeps windowing enabled")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Reloads.WithLabelValues("windowed", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Reloads.WithLabelValues("full", "success")))
}

func TestPipelineKeepsPreviousSnapshotWhenFallbackFails(t *testing.T) {
	ctx := context.Background()
	src := seededStore(t, 600, 0.1)
	faulty := mocks.NewFaultyStore(src)
	p, _ := newPipeline(t, faulty)

	prev, err := p.Reload(ctx, ReasonInitial)
	require.NoError(t, err)

	require.NoError(t, src.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("late").Build()))
	faulty.SetError(store.OpGetThoughtsNear, transient(store.OpGetThoughtsNear))
	faulty.SetError(store.OpGetAllThoughts, transient(store.OpGetAllThoughts))

	got, err := p.Reload(ctx, ReasonVersion)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsTransient(err))
	assert.Same(t, prev, got)
	assert.Same(t, prev, p.Graph().Current())
	assert.Equal(t, 1, p.Status().ConsecutiveFailures)
	assert.NotEmpty(t, p.Status().LastError)

	_, changed, err := p.Detector().Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed, "failed reload must not accept the new token")

	faulty.ClearErrors()
	p.Tick(ctx)
	_, ok := p.Graph().GetThought("late")
	assert.True(t, ok)
	assert.Zero(t, p.Status().ConsecutiveFailures)
}

func TestPipelineWithoutSpatialSupportLoadsFull(t *testing.T) {
	p, _ := newPipeline(t, seededStore(t, 600, 0.1, memory.WithoutSpatial()))

	snap, err := p.Reload(context.Background(), ReasonInitial)
	require.NoError(t, err)
	assert.Equal(t, graph.ModeFull, snap.Mode())
	assert.True(t, p.Status().SpatialDegraded)

	mode := p.Window().Decide(600)
	assert.False(t, mode.Windowed())
}

func TestPipelineTickReloadsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	src := seededStore(t, 5, 1)
	faulty := mocks.NewFaultyStore(src)
	p, _ := newPipeline(t, faulty)

	p.Tick(ctx)
	require.Equal(t, 1, faulty.Calls(store.OpGetAllThoughts))

	p.Tick(ctx)
	p.Tick(ctx)
	assert.Equal(t, 1, faulty.Calls(store.OpGetAllThoughts), "unchanged version does not reload")

	require.NoError(t, src.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("new").Build()))
	p.Tick(ctx)
	assert.Equal(t, 2, faulty.Calls(store.OpGetAllThoughts))
	_, ok := p.Graph().GetThought("new")
	assert.True(t, ok)

	faulty.SetError(store.OpGetVersion, transient(store.OpGetVersion))
	require.NoError(t, src.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("newer").Build()))
	p.Tick(ctx)
	assert.Equal(t, 2, faulty.Calls(store.OpGetAllThoughts), "failed poll skips the tick")
}

func TestPipelineWithoutVersionReloadsEveryTick(t *testing.T) {
	ctx := context.Background()
	faulty := mocks.NewFaultyStore(seededStore(t, 5, 1, memory.WithoutVersion()))
	p, _ := newPipeline(t, faulty)

	for i := 0; i < 3; i++ {
		p.Tick(ctx)
	}
	assert.Equal(t, 3, faulty.Calls(store.OpGetAllThoughts))
	assert.True(t, p.Status().VersionDegraded)
}

func TestPipelineMovementTriggersWindowedReload(t *testing.T) {
	ctx := context.Background()
	p, clock := newPipeline(t, seededStore(t, 600, 0.1))

	_, err := p.Reload(ctx, ReasonInitial)
	require.NoError(t, err)

	p.Window().SetViewpoint(domain.Position{X: 50})
	p.Tick(ctx)
	assert.Equal(t, 0.0, p.Graph().Current().Window().Center.X, "cooldown has not elapsed")

	clock.Advance(2 * time.Second)
	p.Tick(ctx)
	snap := p.Graph().Current()
	require.NotNil(t, snap.Window())
	assert.Equal(t, 50.0, snap.Window().Center.X)
	assert.Equal(t, ReasonMovement, p.Status().LastReason)
}

func TestPipelineReportsDegradedAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	faulty := mocks.NewFaultyStore(seededStore(t, 5, 1))
	faulty.SetError(store.OpGetAllThoughts, transient(store.OpGetAllThoughts))
	p := NewPipeline(DefaultConfig(), faulty, graph.NewStore(), zap.New(core))

	for i := 0; i < 6; i++ {
		_, err := p.Reload(ctx, ReasonManual)
		require.Error(t, err)
	}

	status := p.Status()
	assert.Equal(t, 6, status.ConsecutiveFailures)
	assert.True(t, status.Degraded)
	assert.Equal(t, 1, logs.FilterMessage("Backing store keeps failing, serving the last snapshot").Len())
	assert.Empty(t, p.Graph().Current().Thoughts())

	faulty.ClearErrors()
	_, err := p.Reload(ctx, ReasonManual)
	require.NoError(t, err)
	assert.False(t, p.Status().Degraded)
	assert.Equal(t, 1, logs.FilterMessage("Backing store recovered").Len())
}

func TestPipelineNotifiesListeners(t *testing.T) {
	ctx := context.Background()
	src := seededStore(t, 3, 1)
	p, _ := newPipeline(t, src)

	var calls []graph.Changes
	p.OnReload(func(prev, next *graph.Snapshot) {
		calls = append(calls, graph.Diff(prev, next))
	})

	_, err := p.Reload(ctx, ReasonInitial)
	require.NoError(t, err)
	require.NoError(t, src.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("fresh").Build()))
	_, err = p.Reload(ctx, ReasonVersion)
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.True(t, calls[0].Empty())
	require.Len(t, calls[1].NewThoughts, 1)
	assert.Equal(t, "fresh", calls[1].NewThoughts[0].ID)
}

func TestPipelineRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	p := NewPipeline(cfg, seededStore(t, 3, 1), graph.NewStore(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(p.Graph().Current().Thoughts()) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
