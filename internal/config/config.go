package config

import (
	"time"

	"github.com/open-harness/loom/internal/provider"
	"github.com/open-harness/loom/internal/provider/recording"
)

// Config is the root configuration for one loom process.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Providers ProvidersConfig `json:"providers"`
	Events    EventsConfig    `json:"events"`
	Recording RecordingConfig `json:"recording"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Workflows WorkflowsConfig `json:"workflows"`
}

// GatewayConfig holds the HTTP and WebSocket transport listen addresses.
type GatewayConfig struct {
	HTTPHost string `json:"http_host"`
	HTTPPort int    `json:"http_port"`
	WSHost   string `json:"ws_host"`
	WSPort   int    `json:"ws_port"`
}

// ProvidersConfig holds agent provider configuration.
type ProvidersConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]provider.Config `json:"providers"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	HistorySize int `json:"history_size"`
}

// RecordingConfig controls the process-wide provider recording mode
// (invariant S1: fixed once per process). In ModeLive every provider call
// is transparently recorded; in ModePlayback every call is replayed from a
// prior recording instead of reaching a live provider.
type RecordingConfig struct {
	Mode          recording.Mode `json:"mode"` // "live" | "playback"
	RecordingsDir string         `json:"recordings_dir,omitempty"`
}

// StorageConfig selects and configures the event store / snapshot store
// backend.
type StorageConfig struct {
	Driver string `json:"driver"` // "file" | "sqlite"
	Dir    string `json:"dir,omitempty"`
	DSN    string `json:"dsn,omitempty"` // sqlite connection string
}

// SchedulerConfig configures persisted schedule entries.
type SchedulerConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"`
}

// WorkflowsConfig points at a directory of declarative workflow
// definitions (*.yaml/*.yml/*.jsonc) loaded at Scaffold construction
// (spec §6 [EXPANSION]), alongside any workflows registered in Go.
type WorkflowsConfig struct {
	Dir string `json:"dir,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling as a Go duration
// string ("30s", "5m").
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
