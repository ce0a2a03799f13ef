package decorator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/420247jake/the-mind/internal/observability"
)

// Tracing opens a client span per store operation.
func Tracing(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, op string, next func(context.Context) error) error {
		ctx, span := tracer.Start(ctx, "store."+op,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("store.operation", op)),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, observability.ErrorStatus(err))
		}
		return err
	}
}
