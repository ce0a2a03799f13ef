package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/420247jake/the-mind/internal/config"
	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/fixtures"
	"github.com/420247jake/the-mind/internal/graph"
	"github.com/420247jake/the-mind/internal/loader"
	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/overlay/activation"
	"github.com/420247jake/the-mind/internal/overlay/reasoning"
	"github.com/420247jake/the-mind/internal/overlay/spark"
	"github.com/420247jake/the-mind/internal/overlay/timeline"
	"github.com/420247jake/the-mind/internal/scene"
	"github.com/420247jake/the-mind/internal/store/memory"
	"github.com/420247jake/the-mind/pkg/errors"
)

type staticTuning struct{ t config.Tuning }

func (s staticTuning) Current() config.Tuning { return s.t }

type testEnv struct {
	store    *memory.Store
	pipeline *loader.Pipeline
	scene    *scene.Scene
	server   *Server
	handler  http.Handler
	metrics  *observability.Collector
	now      time.Time
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   memory.New(),
		metrics: observability.NewCollector("test"),
		now:     fixtures.Epoch.Add(time.Minute),
	}
	clock := func() time.Time { return env.now }
	logger := zaptest.NewLogger(t)

	act := activation.NewEngine(activation.DefaultConfig())
	sp, err := spark.NewEngine(spark.Calm, act, 7)
	require.NoError(t, err)
	engines := scene.Engines{
		Activation: act,
		Reasoning:  reasoning.NewEngine(reasoning.DefaultConfig()),
		Timeline:   timeline.NewEngine(timeline.DefaultConfig()),
		Spark:      sp,
	}

	g := graph.NewStore()
	env.pipeline = loader.NewPipeline(loader.DefaultConfig(), env.store, g, logger, loader.WithClock(clock))
	env.scene = scene.New(g, env.pipeline.Window(), engines, logger, scene.WithClock(clock))
	env.pipeline.OnReload(env.scene.HandleReload)

	ctx := context.Background()
	for _, th := range []domain.Thought{
		fixtures.NewThoughtBuilder().WithID("t1").WithPosition(0, 0, 0).Build(),
		fixtures.NewThoughtBuilder().WithID("t2").WithPosition(10, 0, 0).Build(),
	} {
		require.NoError(t, env.store.AddThought(ctx, th))
	}
	require.NoError(t, env.store.AddConnection(ctx,
		fixtures.NewConnectionBuilder("t1", "t2").WithID("c1").WithStrength(0.8).Build()))
	_, err = env.store.RecomputeClusters(ctx)
	require.NoError(t, err)
	_, err = env.pipeline.Reload(ctx, loader.ReasonInitial)
	require.NoError(t, err)

	env.server = NewServer(cfg, env.scene, env.pipeline, logger,
		WithMetrics(env.metrics),
		WithClock(clock),
		WithTuning(staticTuning{t: config.DefaultTuning()}),
	)
	env.handler = env.server.Routes()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGetSnapshot(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	rec := env.do(t, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decodeBody[SnapshotResponse](t, rec)
	assert.Len(t, snap.Thoughts, 2)
	assert.Len(t, snap.Connections, 1)
	assert.Equal(t, graph.ModeFull, snap.Mode)
	assert.False(t, snap.Windowed)
	assert.Equal(t, 2, snap.TotalCount)
}

func TestThoughtRoutes(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantType errors.ErrorType
	}{
		{name: "thought", path: "/api/thoughts/t1", wantCode: http.StatusOK},
		{name: "missing thought", path: "/api/thoughts/nope", wantCode: http.StatusNotFound, wantType: errors.ErrorTypeNotFound},
		{name: "connections", path: "/api/thoughts/t2/connections", wantCode: http.StatusOK},
		{name: "connections of missing thought", path: "/api/thoughts/nope/connections", wantCode: http.StatusNotFound, wantType: errors.ErrorTypeNotFound},
		{name: "cluster", path: "/api/clusters/technical", wantCode: http.StatusOK},
		{name: "unknown category", path: "/api/clusters/astrology", wantCode: http.StatusBadRequest, wantType: errors.ErrorTypeValidation},
		{name: "category without cluster", path: "/api/clusters/creative", wantCode: http.StatusNotFound, wantType: errors.ErrorTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, "")
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantType != "" {
				resp := decodeBody[errors.ErrorResponse](t, rec)
				assert.Equal(t, string(tt.wantType), resp.Type)
			}
		})
	}

	conns := decodeBody[[]domain.Connection](t, env.do(t, http.MethodGet, "/api/thoughts/t2/connections", ""))
	require.Len(t, conns, 1)
	assert.Equal(t, "c1", conns[0].ID)
}

func TestPutViewpoint(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	rec := env.do(t, http.MethodPut, "/api/viewpoint", `{"x": 1, "y": 2, "z": 3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.Position{X: 1, Y: 2, Z: 3}, env.scene.Viewpoint())

	rec = env.do(t, http.MethodPut, "/api/viewpoint", `{"x": 1, "y": 2}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[errors.ErrorResponse](t, rec)
	assert.Contains(t, resp.Details, "z")

	rec = env.do(t, http.MethodPut, "/api/viewpoint", `{"x": 1, "y": 2, "z": 3, "w": 4}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, domain.Position{X: 1, Y: 2, Z: 3}, env.scene.Viewpoint())
}

func TestTimelineRoutes(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	state := decodeBody[timeline.State](t, env.do(t, http.MethodGet, "/api/timeline", ""))
	assert.False(t, state.Enabled)

	rec := env.do(t, http.MethodPost, "/api/timeline", `{"enabled": true, "progress": 0.5, "speed": 60}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state = decodeBody[timeline.State](t, rec)
	assert.True(t, state.Enabled)
	assert.InDelta(t, 0.5, state.Progress, 1e-9)
	assert.Equal(t, 60.0, state.Speed)
	assert.True(t, state.Current.Equal(fixtures.Epoch.Add(30*time.Second)))

	rec = env.do(t, http.MethodPost, "/api/timeline", `{"progress": 1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/timeline", `{"playing": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[timeline.State](t, rec).Playing)
}

func TestSparkRoutes(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	resp := decodeBody[SparkResponse](t, env.do(t, http.MethodGet, "/api/spark", ""))
	assert.Equal(t, spark.Calm, resp.Preset.Name)
	assert.ElementsMatch(t, []string{spark.Calm, spark.Vivid, spark.Nightmare}, resp.Presets)

	rec := env.do(t, http.MethodPut, "/api/spark", `{"preset": "nightmare", "enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decodeBody[SparkResponse](t, rec)
	assert.Equal(t, spark.Nightmare, resp.Preset.Name)
	assert.False(t, resp.Enabled)

	rec = env.do(t, http.MethodPut, "/api/spark", `{"preset": "fever"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, spark.Nightmare, env.scene.Engines().Spark.Preset().Name)
}

func TestGetFrameAndTuning(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	frame := decodeBody[scene.Frame](t, env.do(t, http.MethodGet, "/api/frame", ""))
	assert.Len(t, frame.Thoughts, 2)
	assert.Len(t, frame.Connections, 1)
	assert.True(t, frame.At.Equal(env.now))

	tuning := decodeBody[config.Tuning](t, env.do(t, http.MethodGet, "/api/tuning", ""))
	assert.Equal(t, config.DefaultTuning().Reasoning.MaxPathLength, tuning.Reasoning.MaxPathLength)
}

func TestReloadIsRateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReloadRate = 0.001
	cfg.ReloadBurst = 1
	env := newTestEnv(t, cfg)

	require.NoError(t, env.store.AddThought(context.Background(),
		fixtures.NewThoughtBuilder().WithID("t3").Build()))

	rec := env.do(t, http.MethodPost, "/api/reload", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decodeBody[ReloadResponse](t, rec).Thoughts)

	rec = env.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, string(errors.ErrorTypeRateLimit), decodeBody[errors.ErrorResponse](t, rec).Type)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.Thoughts)
	assert.Equal(t, loader.ReasonInitial, health.Reload.LastReason)

	rec = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestFrameStream(t *testing.T) {
	env := newTestEnv(t, Config{StreamInterval: 10 * time.Millisecond})
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/frames"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg FrameMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "frame", msg.Type)
		assert.Len(t, msg.Frame.Thoughts, 2)
	}
	assert.Eventually(t, func() bool { return env.server.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, env.server.Hub().ClientCount())

	// after shutdown the stream refuses new clients
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
}
