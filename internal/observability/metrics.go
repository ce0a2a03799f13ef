package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// Collector holds all Prometheus metrics for the application. Each collector
// owns a private registry, so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// Backing store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec

	// Load metrics
	Reloads             *prometheus.CounterVec
	ReloadDuration      *prometheus.HistogramVec
	VersionPolls        *prometheus.CounterVec
	ConsecutiveFailures prometheus.Gauge
	SnapshotThoughts    prometheus.Gauge
	SnapshotConnections prometheus.Gauge

	// Overlay metrics
	ActiveActivations prometheus.Gauge
	ReasoningPaths    prometheus.Counter
	Sparks            *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	StreamClients prometheus.Gauge
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "mind"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),

		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of backing store operations",
			},
			[]string{"operation", "status"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Backing store operation duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		Reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Graph reloads by load mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		ReloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reload_duration_seconds",
				Help:      "Graph reload duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		VersionPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "version_polls_total",
				Help:      "Version polls by result",
			},
			[]string{"result"},
		),
		ConsecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reload_consecutive_failures",
			Help:      "Reload failures since the last successful reload",
		}),
		SnapshotThoughts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_thoughts",
			Help:      "Thoughts in the current snapshot",
		}),
		SnapshotConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_connections",
			Help:      "Renderable connections in the current snapshot",
		}),
		ActiveActivations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_activations",
			Help:      "Live activation records",
		}),
		ReasoningPaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_paths_total",
			Help:      "Reasoning path traversals started",
		}),
		Sparks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sparks_total",
				Help:      "Ambient spark batches fired by preset",
			},
			[]string{"preset"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_stream_clients",
			Help:      "Connected frame stream clients",
		}),
	}

	c.registry.MustRegister(
		c.StoreOperations,
		c.StoreDuration,
		c.BreakerState,
		c.Reloads,
		c.ReloadDuration,
		c.VersionPolls,
		c.ConsecutiveFailures,
		c.SnapshotThoughts,
		c.SnapshotConnections,
		c.ActiveActivations,
		c.ReasoningPaths,
		c.Sparks,
		c.HTTPRequests,
		c.HTTPDuration,
		c.StreamClients,
	)
	return c
}

// Registry returns the Prometheus registry for this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordStoreOperation counts one store call and its latency.
func (c *Collector) RecordStoreOperation(op string, err error, d time.Duration) {
	c.StoreOperations.WithLabelValues(op, ErrorStatus(err)).Inc()
	c.StoreDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordReload counts one reload attempt.
func (c *Collector) RecordReload(mode string, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.Reloads.WithLabelValues(mode, outcome).Inc()
	c.ReloadDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ErrorStatus turns an error into a low-cardinality label value.
func ErrorStatus(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		return string(appErr.Type)
	}
	return "error"
}
