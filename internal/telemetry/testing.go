package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans in memory. It installs itself as the global
// tracer provider until the test ends, so packages that call otel.Tracer at
// construction time must be built after NewTestTelemetry.
type TestTelemetry struct {
	*Telemetry
	recorder *tracetest.SpanRecorder
}

// NewTestTelemetry installs an in-memory tracer provider for tb.
func NewTestTelemetry(tb testing.TB) *TestTelemetry {
	tb.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tb.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(tb.Context())
	})

	cfg := NewDefaultConfig()
	cfg.Enabled = true
	return &TestTelemetry{
		Telemetry: &Telemetry{config: cfg, tracerProvider: tp},
		recorder:  recorder,
	}
}

// Spans returns the ended spans.
func (t *TestTelemetry) Spans() []sdktrace.ReadOnlySpan {
	return t.recorder.Ended()
}

// SpanByName returns the first ended span called name, or nil.
func (t *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.Spans() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// AssertSpanExists fails tb unless a span called name has ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.SpanByName(name) == nil {
		names := make([]string, 0, len(t.Spans()))
		for _, s := range t.Spans() {
			names = append(names, s.Name())
		}
		tb.Errorf("expected span %q, got %v", name, names)
	}
}

// AssertSpanAttribute fails tb unless span name carries key=want.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, want any) {
	tb.Helper()
	span := t.SpanByName(name)
	if span == nil {
		tb.Fatalf("span %q not found", name)
	}
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			if got := kv.Value.AsInterface(); got != want {
				tb.Errorf("span %q attribute %q: got %v, want %v", name, key, got, want)
			}
			return
		}
	}
	tb.Errorf("span %q missing attribute %q", name, key)
}

// AssertSpanError fails tb unless span name ended with an error status.
func (t *TestTelemetry) AssertSpanError(tb testing.TB, name string) {
	tb.Helper()
	span := t.SpanByName(name)
	if span == nil {
		tb.Fatalf("span %q not found", name)
	}
	if span.Status().Code != codes.Error {
		tb.Errorf("span %q status: got %v, want Error", name, span.Status().Code)
	}
}
