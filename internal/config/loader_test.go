package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir and returns the allowed config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "xtraceback")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := os.Chmod(path, perm); err != nil {
		t.Fatalf("failed to chmod config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Traceback.Color != "auto" {
		t.Errorf("Traceback.Color = %q, want auto", cfg.Traceback.Color)
	}
	if !cfg.Traceback.ShortenPaths || !cfg.Traceback.Compact {
		t.Errorf("ShortenPaths/Compact should default to true: %+v", cfg.Traceback)
	}
	if cfg.Traceback.Context != 2 {
		t.Errorf("Traceback.Context = %d, want 2", cfg.Traceback.Context)
	}
	if cfg.Telemetry.ExportInterval.Duration() != 15*time.Second {
		t.Errorf("Telemetry.ExportInterval = %v, want 15s", cfg.Telemetry.ExportInterval.Duration())
	}
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console", cfg.Logging.Format)
	}
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `traceback:
  color: never
  context: 4
  hide_runtime: true
  level: all
logging:
  format: json
`, 0600)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Traceback.Color != "never" {
		t.Errorf("Traceback.Color = %q, want never", cfg.Traceback.Color)
	}
	if cfg.Traceback.Context != 4 {
		t.Errorf("Traceback.Context = %d, want 4", cfg.Traceback.Context)
	}
	if !cfg.Traceback.HideRuntime {
		t.Error("Traceback.HideRuntime = false, want true")
	}
	if cfg.Traceback.Level != "all" {
		t.Errorf("Traceback.Level = %q, want all", cfg.Traceback.Level)
	}
	// Untouched fields keep their defaults.
	if !cfg.Traceback.Compact {
		t.Error("Traceback.Compact lost its default")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "traceback:\n  context: 4\n", 0600)

	t.Setenv("XTRACEBACK_TRACEBACK_CONTEXT", "7")
	t.Setenv("XTRACEBACK_TRACEBACK_SHORTEN_PATHS", "false")
	t.Setenv("XTRACEBACK_TELEMETRY_EXPORT_INTERVAL", "30s")

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Traceback.Context != 7 {
		t.Errorf("Traceback.Context = %d, want 7", cfg.Traceback.Context)
	}
	if cfg.Traceback.ShortenPaths {
		t.Error("Traceback.ShortenPaths = true, want false")
	}
	if cfg.Telemetry.ExportInterval.Duration() != 30*time.Second {
		t.Errorf("Telemetry.ExportInterval = %v, want 30s", cfg.Telemetry.ExportInterval.Duration())
	}
}

func TestLoadWithFile_Rejections(t *testing.T) {
	dir := setupTestHome(t)

	tests := []struct {
		name    string
		path    func() string
		wantErr string
	}{
		{
			name:    "outside allowed dirs",
			path:    func() string { return filepath.Join(t.TempDir(), "config.yaml") },
			wantErr: "config file must be in",
		},
		{
			name:    "world readable",
			path:    func() string { return writeConfig(t, dir, "traceback:\n  context: 1\n", 0644) },
			wantErr: "insecure config file permissions",
		},
		{
			name:    "invalid values",
			path:    func() string { return writeConfig(t, dir, "traceback:\n  color: rainbow\n", 0600) },
			wantErr: "traceback.color",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWithFile(tt.path())
			if err == nil {
				t.Fatal("LoadWithFile() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"XTRACEBACK_TRACEBACK_SHORTEN_PATHS":   "traceback.shorten_paths",
		"XTRACEBACK_LOGGING_LEVEL":             "logging.level",
		"XTRACEBACK_TELEMETRY_SHUTDOWN_TIMEOUT": "telemetry.shutdown_timeout",
		"XTRACEBACK_DEBUG":                      "debug",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfig_ValidateTelemetry(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""
	cfg.Telemetry.Protocol = "udp"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"telemetry.endpoint", "telemetry.protocol"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != time.Minute {
		t.Errorf("Duration = %v, want 1m", d.Duration())
	}
	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("negative duration accepted")
	}
	if err := d.UnmarshalText([]byte("30")); err != nil || d.Duration() != 30*time.Second {
		t.Errorf("bare seconds: d = %v, err = %v", d.Duration(), err)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("garbage duration accepted")
	}
}

func TestLoadWithFile_EnvBareSecondsAndHomePath(t *testing.T) {
	dir := setupTestHome(t)
	t.Setenv("XTRACEBACK_TELEMETRY_EXPORT_INTERVAL", "45")
	t.Setenv("XTRACEBACK_TRACEBACK_CRASH_OUTPUT", "~/crash.log")

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if got := cfg.Telemetry.ExportInterval.Duration(); got != 45*time.Second {
		t.Errorf("ExportInterval = %v, want 45s", got)
	}
	home, _ := os.UserHomeDir()
	if want := Path(filepath.Join(home, "crash.log")); cfg.Traceback.CrashOutput != want {
		t.Errorf("CrashOutput = %q, want %q", cfg.Traceback.CrashOutput, want)
	}
}
