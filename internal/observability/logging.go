package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/gridview/internal/config"
	"github.com/pitabwire/gridview/model"
)

type loggerKey struct{}

// NewLogger builds the process logger. Output is JSON on stdout unless the
// config asks for the console format. Every entry carries the service name
// and version.
//
// Level conventions:
//   - error: data source or cache outages, panics, 5xx responses
//   - warn:  4xx responses, open circuit breakers, rejected reloads
//   - info:  requests, view open/close, dataset loads, definition reloads
//   - debug: cache hits, pipeline row counts, individual view events
func NewLogger(cfg config.ObservabilityConfig, service, version string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	format := cfg.LogFormat
	if format == "" {
		format = "json"
	}
	encoder, err := encoderConfig(format)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         format,
		EncoderConfig:    encoder,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields: map[string]any{
			"service": service,
			"version": version,
		},
	}
	return zapCfg.Build()
}

func encoderConfig(format string) (zapcore.EncoderConfig, error) {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	switch format {
	case "json":
		enc.EncodeLevel = zapcore.LowercaseLevelEncoder
	case "console":
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.EncodeDuration = zapcore.StringDurationEncoder
	default:
		return zapcore.EncoderConfig{}, fmt.Errorf("unsupported log format %q", format)
	}
	return enc, nil
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, or fallback when there is none.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger tagged with the caller's
// identity: tenant, subject, correlation ID, and partition and trace IDs
// when set.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}
	return logger.With(identityFields(rctx)...)
}

func identityFields(rctx *model.RequestContext) []zap.Field {
	fields := make([]zap.Field, 0, 5)
	fields = append(fields,
		zap.String("tenant_id", rctx.TenantID),
		zap.String("subject_id", rctx.SubjectID),
		zap.String("correlation_id", rctx.CorrelationID),
	)
	if rctx.PartitionID != "" {
		fields = append(fields, zap.String("partition_id", rctx.PartitionID))
	}
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	return fields
}
