// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if userID := UserIDFromContext(ctx); userID != "" {
		fields = append(fields, zap.String("user.id", userID))
	}
	if resumeID := ResumeIDFromContext(ctx); resumeID != "" {
		fields = append(fields, zap.String("resume.id", resumeID))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type userCtxKey struct{}
type resumeCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// WithUserID tags the context with the authenticated user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userCtxKey{}, userID)
}

// UserIDFromContext extracts the user ID from context.
func UserIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(userCtxKey{}).(string)
	return s
}

// WithResumeID tags the context with the resume being operated on.
func WithResumeID(ctx context.Context, resumeID string) context.Context {
	return context.WithValue(ctx, resumeCtxKey{}, resumeID)
}

// ResumeIDFromContext extracts the resume ID from context.
func ResumeIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(resumeCtxKey{}).(string)
	return s
}

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
