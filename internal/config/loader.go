package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/marcozac/go-jsonc"

	"github.com/open-harness/loom/internal/provider/recording"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }}
// templates, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates before stripping, since
	// templates live inside string values.
	expanded := expandEnvTemplates(string(data))

	var cfg Config
	if err := jsonc.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.HTTPHost == "" {
		cfg.Gateway.HTTPHost = "127.0.0.1"
	}
	if cfg.Gateway.HTTPPort == 0 {
		cfg.Gateway.HTTPPort = 18420
	}
	if cfg.Gateway.WSHost == "" {
		cfg.Gateway.WSHost = "127.0.0.1"
	}
	if cfg.Gateway.WSPort == 0 {
		cfg.Gateway.WSPort = 18421
	}
	if cfg.Events.HistorySize == 0 {
		cfg.Events.HistorySize = 1024
	}
	if cfg.Recording.Mode == "" {
		cfg.Recording.Mode = recording.ModeLive
	}
	if cfg.Recording.RecordingsDir == "" {
		cfg.Recording.RecordingsDir = filepath.Join(LoomPath(), "recordings")
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = filepath.Join(LoomPath(), "sessions")
	}
	if cfg.Scheduler.Dir == "" {
		cfg.Scheduler.Dir = filepath.Join(LoomPath(), "schedules")
	}
}
