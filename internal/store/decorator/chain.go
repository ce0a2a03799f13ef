package decorator

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/420247jake/the-mind/internal/observability"
	"github.com/420247jake/the-mind/internal/store"
)

// ChainConfig selects which decorators are applied.
type ChainConfig struct {
	EnableBreaker bool
	Breaker       BreakerConfig
	EnableMetrics bool
	EnableTracing bool
	EnableLogging bool
}

// Chain builds decorated stores.
type Chain struct {
	config  ChainConfig
	logger  *zap.Logger
	metrics *observability.Collector
	tracer  trace.Tracer
}

// NewChain creates a decorator chain builder. metrics and tracer may be nil,
// which disables the matching decorator.
func NewChain(config ChainConfig, logger *zap.Logger, metrics *observability.Collector, tracer trace.Tracer) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{config: config, logger: logger, metrics: metrics, tracer: tracer}
}

// Decorate applies all configured decorators to base.
// Order: Base -> Circuit Breaker -> Metrics -> Tracing -> Logging
func (c *Chain) Decorate(base store.BackingStore) store.BackingStore {
	decorated := base

	if c.config.EnableBreaker {
		decorated = Wrap(decorated, CircuitBreaker(c.config.Breaker, c.logger, c.metrics))
		c.logger.Debug("Applied circuit breaker decorator to backing store")
	}
	if c.config.EnableMetrics && c.metrics != nil {
		decorated = Wrap(decorated, Metrics(c.metrics))
		c.logger.Debug("Applied metrics decorator to backing store")
	}
	if c.config.EnableTracing && c.tracer != nil {
		decorated = Wrap(decorated, Tracing(c.tracer))
		c.logger.Debug("Applied tracing decorator to backing store")
	}
	if c.config.EnableLogging {
		decorated = Wrap(decorated, Logging(c.logger))
		c.logger.Debug("Applied logging decorator to backing store")
	}
	return decorated
}
