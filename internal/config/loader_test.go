package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"gateway": {
		"http_host": "0.0.0.0",
		"http_port": 9999
	},
	"providers": {
		"default": "claude",
		"providers": {
			"claude": {
				"driver": "anthropic",
				"model": "claude-sonnet-4-20250514",
				"api_key": "${{ .Env.ANTHROPIC_API_KEY }}"
			}
		}
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "test-key-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.HTTPHost != "0.0.0.0" {
		t.Errorf("expected http_host 0.0.0.0, got %s", cfg.Gateway.HTTPHost)
	}
	if cfg.Gateway.HTTPPort != 9999 {
		t.Errorf("expected http_port 9999, got %d", cfg.Gateway.HTTPPort)
	}
	if cfg.Providers.Default != "claude" {
		t.Errorf("expected default claude, got %s", cfg.Providers.Default)
	}

	p, ok := cfg.Providers.Providers["claude"]
	if !ok {
		t.Fatal("expected claude provider")
	}
	if p.APIKey != "test-key-123" {
		t.Errorf("expected api_key test-key-123, got %s", p.APIKey)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.HTTPHost != "127.0.0.1" {
		t.Errorf("expected default http_host 127.0.0.1, got %s", cfg.Gateway.HTTPHost)
	}
	if cfg.Gateway.HTTPPort != 18420 {
		t.Errorf("expected default http_port 18420, got %d", cfg.Gateway.HTTPPort)
	}
	if cfg.Events.HistorySize != 1024 {
		t.Errorf("expected default history size 1024, got %d", cfg.Events.HistorySize)
	}
}

func TestLoadDefaults_Recording(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Recording.Mode != "live" {
		t.Errorf("expected default recording mode 'live', got %q", cfg.Recording.Mode)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("expected default storage driver 'file', got %q", cfg.Storage.Driver)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
