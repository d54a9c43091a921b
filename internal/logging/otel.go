// internal/logging/otel.go
package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore creates core with stdout and/or OTEL outputs.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Stdout {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		name := cfg.Fields["service"]
		if name == "" {
			name = "folio"
		}
		cores = append(cores, otelzap.NewCore(name, otelzap.WithLoggerProvider(otelProvider)))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	core := zapcore.NewTee(cores...)
	if !cfg.Sampling.Enabled {
		return core, nil
	}

	// Errors bypass the sampler.
	sampled := zapcore.NewSamplerWithOptions(
		&levelFilterCore{Core: core, max: zapcore.WarnLevel},
		cfg.Sampling.Tick.Duration(),
		cfg.Sampling.Initial,
		cfg.Sampling.Thereafter,
	)
	errors := &levelFilterCore{Core: core, min: zapcore.ErrorLevel, hasMin: true}
	return zapcore.NewTee(errors, sampled), nil
}

// levelFilterCore passes entries within [min, max].
type levelFilterCore struct {
	zapcore.Core
	min    zapcore.Level
	hasMin bool
	max    zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	if c.hasMin && lvl < c.min {
		return false
	}
	if !c.hasMin && lvl > c.max {
		return false
	}
	return c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), min: c.min, hasMin: c.hasMin, max: c.max}
}
