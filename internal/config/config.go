// Package config provides configuration loading for folio.
//
// Configuration is read from an optional YAML file and overridden by
// FOLIO_-prefixed environment variables. Every section has defaults that let
// the service start locally with no file at all.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config holds the complete folio configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Storage       StorageConfig       `koanf:"storage"`
	Auth          AuthConfig          `koanf:"auth"`
	Billing       BillingConfig       `koanf:"billing"`
	AI            AIConfig            `koanf:"ai"`
	Autosave      AutosaveConfig      `koanf:"autosave"`
	Events        EventsConfig        `koanf:"events"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// BaseURL is the public URL of the web app; billing redirects use it.
	BaseURL string `koanf:"base_url"`
}

// DatabaseConfig holds the relational store configuration.
type DatabaseConfig struct {
	Path          string `koanf:"path"`
	BusyTimeoutMS int    `koanf:"busy_timeout_ms"`
}

// StorageConfig holds blob storage configuration for resume photos.
type StorageConfig struct {
	// BucketURL is a gocloud.dev URL, e.g. file:///var/lib/folio/blobs or mem://.
	BucketURL string `koanf:"bucket_url"`
	// PublicBaseURL prefixes object keys to build the photo URL handed to clients.
	PublicBaseURL string `koanf:"public_base_url"`
}

// AuthConfig holds identity token verification settings.
type AuthConfig struct {
	JWTSecret Secret `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
}

// BillingConfig holds payment provider settings.
type BillingConfig struct {
	SecretKey           Secret `koanf:"secret_key"`
	WebhookSecret       Secret `koanf:"webhook_secret"`
	PriceProMonthly     string `koanf:"price_pro_monthly"`
	PriceProPlusMonthly string `koanf:"price_pro_plus_monthly"`
}

// AIConfig holds the completion service settings.
type AIConfig struct {
	APIKey            Secret `koanf:"api_key"`
	Model             string `koanf:"model"`
	BaseURL           string `koanf:"base_url"`
	RequestsPerMinute int    `koanf:"requests_per_minute"`
}

// AutosaveConfig holds editor autosave settings.
type AutosaveConfig struct {
	Debounce Duration `koanf:"debounce"`
}

// EventsConfig holds domain event publishing settings.
// An empty NATSURL disables publishing.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ObservabilityConfig holds logging and OpenTelemetry configuration.
// OTLPProtocol is "grpc" or "http/protobuf".
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPProtocol    string  `koanf:"otlp_protocol"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
}

var priceIDPattern = regexp.MustCompile(`^price_[A-Za-z0-9]+$`)

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Autosave debounce is not positive
//   - Billing price ids are set but malformed, or identical
//   - Billing webhook secret is set without the whsec_ prefix
//   - Service name is empty (when telemetry is enabled)
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Storage.BucketURL == "" {
		return errors.New("storage bucket url is required")
	}

	if c.Autosave.Debounce.Duration() <= 0 {
		return errors.New("autosave debounce must be positive")
	}

	for _, price := range []string{c.Billing.PriceProMonthly, c.Billing.PriceProPlusMonthly} {
		if price != "" && !priceIDPattern.MatchString(price) {
			return fmt.Errorf("invalid billing price id: %q", price)
		}
	}
	if c.Billing.PriceProMonthly != "" && c.Billing.PriceProMonthly == c.Billing.PriceProPlusMonthly {
		return errors.New("pro and pro_plus price ids must differ")
	}
	if c.Billing.WebhookSecret.IsSet() && !strings.HasPrefix(c.Billing.WebhookSecret.Value(), "whsec_") {
		return errors.New("billing webhook secret must start with whsec_")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:3000"
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "folio.db"
	}
	if cfg.Database.BusyTimeoutMS == 0 {
		cfg.Database.BusyTimeoutMS = 10_000
	}

	if cfg.Storage.BucketURL == "" {
		cfg.Storage.BucketURL = "file:///var/lib/folio/blobs?create_dir=true"
	}
	if cfg.Storage.PublicBaseURL == "" {
		cfg.Storage.PublicBaseURL = "http://localhost:8080/blobs"
	}

	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.RequestsPerMinute == 0 {
		cfg.AI.RequestsPerMinute = 50
	}

	if cfg.Autosave.Debounce == 0 {
		cfg.Autosave.Debounce = Duration(1500 * time.Millisecond)
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "folio"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "folio"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Observability.OTLPProtocol == "" {
		cfg.Observability.OTLPProtocol = "grpc"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}
}
