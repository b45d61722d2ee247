// Package config provides configuration loading for xtraceback.
//
// Configuration comes from built-in defaults, an optional YAML file and
// XTRACEBACK_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds the complete xtraceback configuration.
type Config struct {
	Traceback TracebackConfig `koanf:"traceback"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// TracebackConfig controls rendering and what the guard installs while a
// scope is active.
type TracebackConfig struct {
	Color        string `koanf:"color"` // auto, always, never
	ShortenPaths bool   `koanf:"shorten_paths"`
	Context      int    `koanf:"context"`
	NoSource     bool   `koanf:"no_source"`
	HideRuntime  bool   `koanf:"hide_runtime"`
	Compact      bool   `koanf:"compact"`
	MaxFrames    int    `koanf:"max_frames"`
	// Level is the runtime traceback level installed for the scope.
	// Empty keeps whatever is installed.
	Level string `koanf:"level"`
	// CrashOutput is a file that also receives fatal runtime crash reports
	// while the scope is active.
	CrashOutput Path `koanf:"crash_output"`
}

// LoggingConfig holds the logging knobs exposed through configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"` // grpc, http/protobuf
	Insecure        bool     `koanf:"insecure"`
	ServiceName     string   `koanf:"service_name"`
	ExportInterval  Duration `koanf:"export_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

var validLevels = map[string]bool{
	"": true, "none": true, "single": true, "all": true,
	"system": true, "crash": true, "wer": true,
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Traceback.Color {
	case "auto", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("traceback.color must be auto, always or never, got %q", c.Traceback.Color))
	}
	if c.Traceback.Context < 0 {
		errs = append(errs, fmt.Errorf("traceback.context must be >= 0, got %d", c.Traceback.Context))
	}
	if c.Traceback.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("traceback.max_frames must be >= 0, got %d", c.Traceback.MaxFrames))
	}
	if !validLevels[c.Traceback.Level] {
		errs = append(errs, fmt.Errorf("traceback.level %q is not a GOTRACEBACK level", c.Traceback.Level))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http/protobuf":
		default:
			errs = append(errs, fmt.Errorf("telemetry.protocol must be grpc or http/protobuf, got %q", c.Telemetry.Protocol))
		}
		if c.Telemetry.ExportInterval.Duration() <= 0 {
			errs = append(errs, errors.New("telemetry.export_interval must be positive"))
		}
	}

	return errors.Join(errs...)
}
