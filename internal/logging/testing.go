// internal/logging/testing.go
package logging

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger that records every entry in memory.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger records entries at debug level and above.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(zapcore.DebugLevel)
	return &TestLogger{Logger: Wrap(zap.New(core)), logs: logs}
}

// Entries returns the entries whose message contains msg.
func (t *TestLogger) Entries(msg string) []observer.LoggedEntry {
	return t.logs.FilterMessageSnippet(msg).All()
}

func (t *TestLogger) find(level zapcore.Level, msg string) (observer.LoggedEntry, bool) {
	for _, e := range t.Entries(msg) {
		if e.Level == level {
			return e, true
		}
	}
	return observer.LoggedEntry{}, false
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if _, ok := t.find(level, msg); !ok {
		tb.Errorf("no %s entry containing %q; got %s", level, msg, t.dump())
	}
}

// AssertNotLogged fails tb if an entry at level contains msg.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if e, ok := t.find(level, msg); ok {
		tb.Errorf("unexpected %s entry %q", level, e.Message)
	}
}

// AssertField fails tb unless an entry containing msg carries key=want,
// comparing the field's rendered value.
func (t *TestLogger) AssertField(tb testing.TB, msg, key, want string) {
	tb.Helper()
	for _, e := range t.Entries(msg) {
		if v, ok := e.ContextMap()[key]; ok && fmt.Sprint(v) == want {
			return
		}
	}
	tb.Errorf("no entry containing %q with %s=%s; got %s", msg, key, want, t.dump())
}

func (t *TestLogger) dump() string {
	var b strings.Builder
	for _, e := range t.logs.All() {
		fmt.Fprintf(&b, "\n  %s %q %v", e.Level, e.Message, e.ContextMap())
	}
	if b.Len() == 0 {
		return "nothing"
	}
	return b.String()
}
