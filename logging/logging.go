// Package logging carries a request scoped zap logger through a context.
package logging

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

// WithRequestID returns a context whose logger is tagged with the request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, loggerKey{}, zap.S().With("requestId", requestID))
}

// FromContext returns the request logger, or the global sugared logger when
// none was attached
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return zap.S()
}
