package scene

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/fixtures"
	"github.com/420247jake/the-mind/internal/graph"
	"github.com/420247jake/the-mind/internal/loader"
	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/overlay/activation"
	"github.com/420247jake/the-mind/internal/overlay/reasoning"
	"github.com/420247jake/the-mind/internal/overlay/spark"
	"github.com/420247jake/the-mind/internal/overlay/timeline"
	"github.com/420247jake/the-mind/internal/store/memory"
)

type harness struct {
	store    *memory.Store
	pipeline *loader.Pipeline
	scene    *Scene
	metrics  *observability.Collector
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: memory.New(), metrics: observability.NewCollector("test"), now: fixtures.Epoch.Add(time.Minute)}
	clock := func() time.Time { return h.now }
	logger := zaptest.NewLogger(t)

	act := activation.NewEngine(activation.DefaultConfig())
	sp, err := spark.NewEngine(spark.Calm, act, 1)
	require.NoError(t, err)
	engines := Engines{
		Activation: act,
		Reasoning:  reasoning.NewEngine(reasoning.DefaultConfig()),
		Timeline:   timeline.NewEngine(timeline.DefaultConfig()),
		Spark:      sp,
	}

	g := graph.NewStore()
	h.pipeline = loader.NewPipeline(loader.DefaultConfig(), h.store, g, logger, loader.WithClock(clock))
	h.scene = New(g, h.pipeline.Window(), engines, logger, WithClock(clock), WithMetrics(h.metrics))
	h.pipeline.OnReload(h.scene.HandleReload)
	return h
}

func (h *harness) add(t *testing.T, items ...any) {
	t.Helper()
	ctx := context.Background()
	for _, item := range items {
		switch v := item.(type) {
		case domain.Thought:
			require.NoError(t, h.store.AddThought(ctx, v))
		case domain.Connection:
			require.NoError(t, h.store.AddConnection(ctx, v))
		}
	}
}

func (h *harness) reload(t *testing.T) {
	t.Helper()
	_, err := h.pipeline.Reload(context.Background(), loader.ReasonVersion)
	require.NoError(t, err)
}

func thoughtAt(id string, x float64) domain.Thought {
	return fixtures.NewThoughtBuilder().WithID(id).WithPosition(x, 0, 0).Build()
}

func TestFirstLoadIsQuiet(t *testing.T) {
	h := newHarness(t)
	h.add(t, thoughtAt("t1", 50), thoughtAt("t2", 60))
	h.reload(t)

	assert.Empty(t, h.scene.Engines().Activation.Levels(h.now))
	assert.Empty(t, h.scene.Engines().Reasoning.State(h.now).Path)
}

func TestNewThoughtStartsCascadeAndPath(t *testing.T) {
	h := newHarness(t)
	h.add(t, thoughtAt("t1", 50), thoughtAt("t2", 60))
	h.reload(t)

	h.add(t,
		thoughtAt("t9", 70),
		fixtures.NewConnectionBuilder("t1", "t9").WithID("c1").WithStrength(0.9).Build(),
		fixtures.NewConnectionBuilder("t9", "t2").WithID("c2").WithStrength(0.3).Build(),
	)
	h.reload(t)

	act := h.scene.Engines().Activation
	assert.Equal(t, 1.0, act.LevelOf("t9", h.now))
	assert.Equal(t, 0.9, act.LevelOf("t1", h.now))
	assert.Equal(t, 0.5, act.LevelOf("t2", h.now))

	state := h.scene.Engines().Reasoning.State(h.now)
	assert.Equal(t, []string{"t1", "t2", "t9"}, state.Path)
	assert.Equal(t, "t9", state.Synthesis)
	assert.True(t, state.Thinking)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ReasoningPaths))

	assert.Equal(t, 1.0, h.scene.BrightnessOf("t1", h.now), "path outshines the connection glow")
	assert.Equal(t, 0.5, h.scene.BrightnessOf("t2", h.now))
}

func TestTickAppliesProximity(t *testing.T) {
	h := newHarness(t)
	h.add(t, thoughtAt("near", 10), thoughtAt("far", 45))
	h.reload(t)

	h.scene.Tick(h.now)
	act := h.scene.Engines().Activation
	assert.InDelta(t, 0.15, act.LevelOf("near", h.now), 1e-9)
	assert.Zero(t, act.LevelOf("far", h.now))

	h.scene.SetViewpoint(domain.Position{X: 45})
	h.now = h.now.Add(100 * time.Millisecond)
	h.scene.Tick(h.now)
	assert.InDelta(t, 0.3, act.LevelOf("far", h.now), 1e-9)
	assert.Equal(t, domain.Position{X: 45}, h.pipeline.Window().Viewpoint())
}

func TestTickRunsSparks(t *testing.T) {
	h := newHarness(t)
	h.add(t, thoughtAt("a", 100), thoughtAt("b", 200), thoughtAt("c", 300))
	h.reload(t)

	h.scene.Tick(h.now)
	h.now = h.now.Add(8 * time.Second)
	h.scene.Tick(h.now)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Sparks.WithLabelValues(spark.Calm)))
	assert.Equal(t, 1, h.scene.Engines().Spark.State().Sparks)
	assert.Positive(t, testutil.ToFloat64(h.metrics.ActiveActivations))
}

func TestFrameHonoursTimeline(t *testing.T) {
	h := newHarness(t)
	early := fixtures.NewThoughtBuilder().WithID("early").CreatedAt(fixtures.Epoch).Build()
	late := fixtures.NewThoughtBuilder().WithID("late").CreatedAt(fixtures.Epoch.Add(10 * time.Second)).Build()
	h.add(t, early, late,
		fixtures.NewConnectionBuilder("early", "late").WithID("c").CreatedAt(fixtures.Epoch.Add(10*time.Second)).Build(),
	)
	h.reload(t)

	f := h.scene.Frame(h.now)
	require.Len(t, f.Thoughts, 2)
	require.Len(t, f.Connections, 1)
	assert.Equal(t, 1.0, f.Connections[0].Visibility)
	assert.Equal(t, graph.ModeFull, f.Mode)

	tl := h.scene.Engines().Timeline
	tl.Enable()
	tl.Seek(fixtures.Epoch.Add(time.Second))

	f = h.scene.Frame(h.now)
	require.Len(t, f.Thoughts, 1)
	assert.Equal(t, "early", f.Thoughts[0].ID)
	assert.InDelta(t, 0.5, f.Thoughts[0].Visibility, 1e-9)
	assert.Empty(t, f.Connections)
	assert.True(t, f.Timeline.Enabled)
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.scene.Run(ctx, time.Millisecond) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
