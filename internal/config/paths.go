package config

import (
	"os"
	"path/filepath"
)

// LoomPath returns the root directory for process-local state (schedule
// store, recordings, file-backed event logs). It uses $LOOM_PATH if set,
// otherwise defaults to ~/.loom.
func LoomPath() string {
	if v := os.Getenv("LOOM_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".loom")
	}
	return filepath.Join(home, ".loom")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(LoomPath(), "config.jsonc")
}

// DotenvPath returns the path to the .env file.
func DotenvPath() string {
	return filepath.Join(LoomPath(), ".env")
}
