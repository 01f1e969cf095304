package logging

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level  zapcore.Level
	Format string
	// Service is attached to every entry as "service".
	Service string
	// StacktraceLevel is the lowest level that records a stack trace.
	StacktraceLevel zapcore.Level
	// Bridge, when set, also sends every entry to this OpenTelemetry
	// logger provider.
	Bridge log.LoggerProvider
}

// NewDefaultConfig returns JSON logging at info.
func NewDefaultConfig() *Config {
	return &Config{
		Level:           zapcore.InfoLevel,
		Format:          "json",
		Service:         "embedlife",
		StacktraceLevel: zapcore.ErrorLevel,
	}
}

// FromStrings builds a Config from the level and format strings of the
// daemon configuration. Empty strings keep the defaults.
func FromStrings(level, format string) (*Config, error) {
	cfg := NewDefaultConfig()
	if level != "" {
		l, err := ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = l
	}
	if format != "" {
		cfg.Format = strings.ToLower(format)
	}
	return cfg, cfg.Validate()
}

// ParseLevel parses a level name. "warning" is accepted for warn.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.EqualFold(s, "warning") {
		return zapcore.WarnLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("log format must be json or console, got %q", c.Format)
	}
	return nil
}
