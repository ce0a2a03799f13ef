package decorator

import (
	"context"
	"time"

	"go.uber.org/zap"

	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// Logging logs every store operation at debug level and failures at warn.
// Schema mismatches are expected on older stores and stay at debug.
func Logging(logger *zap.Logger) Middleware {
	return func(ctx context.Context, op string, next func(context.Context) error) error {
		start := time.Now()
		err := next(ctx)
		fields := []zap.Field{
			zap.String("operation", op),
			zap.Duration("duration", time.Since(start)),
		}

		switch {
		case err == nil:
			logger.Debug("Store operation completed", fields...)
		case pkgerrors.IsSchemaMismatch(err):
			logger.Debug("Store operation unsupported", append(fields, zap.Error(err))...)
		default:
			logger.Warn("Store operation failed", append(fields, zap.Error(err))...)
		}
		return err
	}
}
