package decorator

import (
	"context"
	"time"

	"github.com/420247jake/the-mind/internal/observability"
)

// Metrics records a counter and a latency histogram per store operation.
func Metrics(collector *observability.Collector) Middleware {
	return func(ctx context.Context, op string, next func(context.Context) error) error {
		start := time.Now()
		err := next(ctx)
		collector.RecordStoreOperation(op, err, time.Since(start))
		return err
	}
}
