// internal/config/types.go
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that unmarshals from text. Bare integers are
// read as milliseconds so FOLIO_AUTOSAVE_DEBOUNCE=1500 works as expected.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	var parsed time.Duration
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		parsed = time.Duration(ms) * time.Millisecond
	} else {
		parsed, err = time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

const redacted = "[REDACTED]"

// Secret holds a credential: the JWT signing key, payment provider keys or
// the AI key. Every formatting and marshaling path prints it redacted; only
// Value returns the raw string.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return "Secret(" + redacted + ")"
}

// Value returns the raw secret.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether the secret is non-empty.
func (s Secret) IsSet() bool {
	return s != ""
}

// LiveMode reports whether a payment provider key is a production key
// (sk_live_ or rk_live_).
func (s Secret) LiveMode() bool {
	v := string(s)
	return strings.HasPrefix(v, "sk_live_") || strings.HasPrefix(v, "rk_live_")
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the raw secret value.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(strings.TrimSpace(string(text)))
	return nil
}
