package logging

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/folio/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestConfigFrom(t *testing.T) {
	t.Run("maps observability settings", func(t *testing.T) {
		cfg, err := ConfigFrom(config.ObservabilityConfig{
			ServiceName: "folio-test",
			LogLevel:    "debug",
			LogFormat:   "console",
		})
		require.NoError(t, err)
		assert.Equal(t, zapcore.DebugLevel, cfg.Level)
		assert.Equal(t, "console", cfg.Format)
		assert.Equal(t, "folio-test", cfg.Fields["service"])
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := ConfigFrom(config.ObservabilityConfig{LogLevel: "loud"})
		assert.Error(t, err)
	})
}

func TestLogger_ContextFields(t *testing.T) {
	logger := NewTestLogger()

	ctx := WithUserID(context.Background(), "user_1")
	ctx = WithResumeID(ctx, "res_9")
	ctx = WithRequestID(ctx, "req-abc")

	logger.Info(ctx, "resume saved", zap.Int("work_experiences", 2))

	logger.AssertLogged(t, zapcore.InfoLevel, "resume saved")
	logger.AssertField(t, "resume saved", "user.id", "user_1")
	logger.AssertField(t, "resume saved", "resume.id", "res_9")
	logger.AssertField(t, "resume saved", "request.id", "req-abc")
}

func TestLogger_TraceCorrelation(t *testing.T) {
	logger := NewTestLogger()

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.Warn(ctx, "webhook rejected")
	logger.AssertField(t, "webhook rejected", "trace_id", traceID.String())
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	logger := NewTestLogger()
	ctx := WithLogger(context.Background(), logger.Logger)
	assert.Same(t, logger.Logger, FromContext(ctx))
}

func TestLogger_WithAndNamed(t *testing.T) {
	logger := NewTestLogger()
	child := logger.Named("autosave").With(zap.String("component", "reconciler"))

	child.Error(context.Background(), "save failed")

	entries := logger.Entries("save failed")
	require.Len(t, entries, 1)
	assert.Equal(t, "autosave", entries[0].LoggerName)
	logger.AssertNotLogged(t, zapcore.InfoLevel, "save failed")
}
