package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a JSON production logger when env is "production" and a
// console development logger otherwise.
func NewLogger(level, env string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewDevelopmentConfig()
	if env == "production" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// LoggerWithTrace returns a child logger enriched with trace_id and span_id
// from the active span in ctx, plus the request id when present.
func LoggerWithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		logger = logger.With(zap.String("request_id", id))
	}

	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", span.TraceID().String()),
		zap.String("span_id", span.SpanID().String()),
	)
}
