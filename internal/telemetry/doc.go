// Package telemetry wires OpenTelemetry tracing and metrics for folio.
//
// Spans are exported over OTLP (gRPC or HTTP/protobuf) to a collector. When
// telemetry is disabled, Tracer and Meter fall back to the global no-op
// providers so instrumented code never branches on configuration.
//
// Usage:
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Tests use NewTestTelemetry, which records spans in memory:
//
//	tt := telemetry.NewTestTelemetry(t)
//	... exercise code ...
//	tt.AssertSpanExists(t, "billing.webhook")
package telemetry
