package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/folio/internal/config"
)

// Protocols accepted by Config.Protocol.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config holds telemetry configuration. Insecure disables TLS and is only
// allowed for loopback endpoints.
type Config struct {
	Enabled         bool
	Endpoint        string
	Protocol        string
	ServiceName     string
	ServiceVersion  string
	Insecure        bool
	SampleRate      float64
	ExportInterval  time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns telemetry defaults. Telemetry is off until an
// endpoint is configured and enabled.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		ServiceName:     "folio",
		ServiceVersion:  "dev",
		Insecure:        true,
		SampleRate:      1.0,
		ExportInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromObservability derives a telemetry config from the observability section.
func FromObservability(obs config.ObservabilityConfig, version string) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = obs.EnableTelemetry
	if obs.OTLPEndpoint != "" {
		cfg.Endpoint = obs.OTLPEndpoint
	}
	if obs.OTLPProtocol != "" {
		cfg.Protocol = obs.OTLPProtocol
	}
	if obs.ServiceName != "" {
		cfg.ServiceName = obs.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Insecure = obs.OTLPInsecure
	if obs.SampleRate != 0 {
		cfg.SampleRate = obs.SampleRate
	}
	return cfg
}

// Validate checks the config. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return errors.New("service_name is required when telemetry is enabled")
	}
	if c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP {
		return fmt.Errorf("unsupported otlp protocol %q", c.Protocol)
	}
	if c.Insecure && !isLoopback(c.Endpoint) {
		return errors.New("insecure connections to remote endpoints are not allowed; use TLS or a loopback endpoint")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %g", c.SampleRate)
	}
	if c.ExportInterval <= 0 || c.ShutdownTimeout <= 0 {
		return errors.New("export interval and shutdown timeout must be positive")
	}
	return nil
}

// isLoopback reports whether endpoint (host, host:port or URL) names the
// local machine.
func isLoopback(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
