package decorator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/fixtures"
	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/store"
	"github.com/420247jake/the-mind/internal/store/memory"
	"github.com/420247jake/the-mind/internal/store/mocks"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	for _, th := range fixtures.Grid(3, 1) {
		require.NoError(t, s.AddThought(context.Background(), th))
	}
	return s
}

func TestWrapPassesResultsThrough(t *testing.T) {
	ctx := context.Background()
	var ops []string
	s := Wrap(seeded(t), func(ctx context.Context, op string, next func(context.Context) error) error {
		ops = append(ops, op)
		return next(ctx)
	})

	v, err := s.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.MaxThoughtID)

	near, err := s.GetThoughtsNear(ctx, domain.Position{}, 1.5, 10)
	require.NoError(t, err)
	assert.Len(t, near, 2)

	require.NoError(t, s.AddConnection(ctx, fixtures.NewConnectionBuilder("t0", "t1").Build()))
	conns, err := s.GetConnectionsForThoughts(ctx, []string{"t0", "t1"})
	require.NoError(t, err)
	assert.Len(t, conns, 1)

	assert.Equal(t, []string{
		store.OpGetVersion,
		store.OpGetThoughtsNear,
		store.OpAddConnection,
		store.OpGetConnectionsForThoughts,
	}, ops)
}

func TestCircuitBreakerOpensOnTransientFailures(t *testing.T) {
	ctx := context.Background()
	faulty := mocks.NewFaultyStore(seeded(t))
	faulty.SetError(store.OpGetVersion, pkgerrors.NewTransientQueryError(store.OpGetVersion, errors.New("locked")))

	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 3
	cfg.FailureThreshold = 0.5
	cfg.Timeout = time.Hour
	metrics := observability.NewCollector("test")
	s := Wrap(faulty, CircuitBreaker(cfg, zap.NewNop(), metrics))

	for i := 0; i < 3; i++ {
		_, err := s.GetVersion(ctx)
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeTransientQuery))
	}

	_, err := s.GetVersion(ctx)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeUnavailable))
	assert.True(t, pkgerrors.IsTransient(err))
	assert.Equal(t, 3, faulty.Calls(store.OpGetVersion))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BreakerState.WithLabelValues("test")))
}

func TestCircuitBreakerIgnoresSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultBreakerConfig("legacy")
	cfg.MinRequests = 1
	s := Wrap(memory.New(memory.WithoutVersion()), CircuitBreaker(cfg, nil, nil))

	for i := 0; i < 10; i++ {
		_, err := s.GetVersion(ctx)
		require.True(t, pkgerrors.IsSchemaMismatch(err), "call %d: %v", i, err)
	}
}

func TestMetricsDecorator(t *testing.T) {
	ctx := context.Background()
	collector := observability.NewCollector("test")
	s := Wrap(memory.New(memory.WithoutSpatial()), Metrics(collector))

	_, _ = s.GetThoughtCount(ctx)
	_, _ = s.GetThoughtsNear(ctx, domain.Position{}, 1, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues(store.OpGetThoughtCount, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues(store.OpGetThoughtsNear, "SCHEMA_MISMATCH")))
}

func TestLoggingDecorator(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	faulty := mocks.NewFaultyStore(seeded(t))
	faulty.SetError(store.OpGetAllThoughts, pkgerrors.NewTransientQueryError(store.OpGetAllThoughts, errors.New("busy")))
	s := Wrap(faulty, Logging(zap.New(core)))

	_, _ = s.GetThoughtCount(ctx)
	_, _ = s.GetAllThoughts(ctx)

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, store.OpGetAllThoughts, entries[1].ContextMap()["operation"])
}

func TestTracingDecorator(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	s := Wrap(memory.New(memory.WithoutVersion()), Tracing(tp.Tracer("test")))

	_, err := s.GetVersion(context.Background())
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "store.get_version", spans[0].Name())
	assert.Len(t, spans[0].Events(), 1)
}

func TestChainAppliesConfiguredDecorators(t *testing.T) {
	collector := observability.NewCollector("test")
	chain := NewChain(ChainConfig{
		EnableBreaker: true,
		Breaker:       DefaultBreakerConfig("chain"),
		EnableMetrics: true,
		EnableLogging: true,
	}, nil, collector, nil)

	s := chain.Decorate(seeded(t))
	n, err := s.GetThoughtCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StoreOperations.WithLabelValues(store.OpGetThoughtCount, "ok")))

	// logging is outermost
	outer, ok := s.(*Store)
	require.True(t, ok)
	_, ok = outer.Unwrap().(*Store)
	assert.True(t, ok)

	plain := NewChain(ChainConfig{}, nil, nil, nil).Decorate(memory.New())
	_, isDecorated := plain.(*Store)
	assert.False(t, isDecorated)
}
