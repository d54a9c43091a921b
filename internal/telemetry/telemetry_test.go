package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fyrsmithlabs/folio/internal/config"
)

func TestFromObservability(t *testing.T) {
	cfg := FromObservability(config.ObservabilityConfig{
		EnableTelemetry: true,
		ServiceName:     "folio-api",
		OTLPEndpoint:    "otel.internal:4318",
		OTLPProtocol:    ProtocolHTTP,
		SampleRate:      0.25,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "folio-api", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.False(t, cfg.Insecure)
	assert.Equal(t, 0.25, cfg.SampleRate)
	require.NoError(t, cfg.Validate())

	def := FromObservability(config.ObservabilityConfig{}, "")
	assert.Equal(t, "folio", def.ServiceName)
	assert.Equal(t, "dev", def.ServiceVersion)
	assert.Equal(t, 1.0, def.SampleRate)
}

func TestConfig_Validate(t *testing.T) {
	enabled := func(mut func(*Config)) *Config {
		c := NewDefaultConfig()
		c.Enabled = true
		mut(c)
		return c
	}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{"disabled skips checks", &Config{}, ""},
		{"local insecure", enabled(func(*Config) {}), ""},
		{"missing endpoint", enabled(func(c *Config) { c.Endpoint = "" }), "endpoint is required"},
		{"missing service", enabled(func(c *Config) { c.ServiceName = "" }), "service_name is required"},
		{"bad protocol", enabled(func(c *Config) { c.Protocol = "udp" }), "unsupported otlp protocol"},
		{"remote insecure", enabled(func(c *Config) { c.Endpoint = "collector.example.com:4317" }), "insecure connections"},
		{"remote tls", enabled(func(c *Config) { c.Endpoint = "collector.example.com:4317"; c.Insecure = false }), ""},
		{"sample rate", enabled(func(c *Config) { c.SampleRate = 1.5 }), "sample rate"},
		{"zero interval", enabled(func(c *Config) { c.ExportInterval = 0 }), "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestIsLoopback(t *testing.T) {
	for endpoint, want := range map[string]bool{
		"localhost:4317":        true,
		"127.0.0.1:4317":        true,
		"127.0.3.1":             true,
		"[::1]:4317":            true,
		"http://localhost:4318": true,
		"10.0.0.5:4317":         false,
		"otel.example.com":      false,
	} {
		assert.Equal(t, want, isLoopback(endpoint), endpoint)
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Degraded())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), &Config{Enabled: true})
	assert.ErrorContains(t, err, "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry(t)

	_, span := otel.Tracer("folio/test").Start(context.Background(), "resume.save")
	span.SetAttributes(attribute.String("resume_id", "r1"))
	span.End()

	_, failed := tt.Tracer("folio/test").Start(context.Background(), "billing.webhook")
	failed.RecordError(errors.New("boom"))
	failed.SetStatus(codes.Error, "boom")
	failed.End()

	tt.AssertSpanExists(t, "resume.save")
	tt.AssertSpanAttribute(t, "resume.save", "resume_id", "r1")
	tt.AssertSpanError(t, "billing.webhook")
	assert.Nil(t, tt.SpanByName("missing"))
	assert.Len(t, tt.Spans(), 2)
}
