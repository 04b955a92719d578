// Package recorder implements ProviderRecorder (spec §4.3): a
// content-addressed cache of agent provider interactions, keyed by a
// deterministic hash of the request, enabling byte-for-byte deterministic
// playback of a prior live run.
package recorder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/open-harness/loom/internal/provider"
)

// Key is the deterministic cache key for one agent interaction: the
// provider name, prompt, tool set, output schema and provider config
// together (spec §4.3 hash input).
type Key struct {
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	Prompt         string            `json:"prompt"`
	Tools          []provider.Tool   `json:"tools,omitempty"`
	OutputSchema   json.RawMessage   `json:"output_schema,omitempty"`
	ProviderConfig map[string]string `json:"provider_config,omitempty"`
}

// Hash canonicalizes Key through stable JSON encoding and returns its
// sha256 hex digest. encoding/json sorts map keys and struct fields are
// fixed-order, so two semantically equal Keys always hash identically.
func (k Key) Hash() (string, error) {
	data, err := json.Marshal(k)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RecordingEntry is one cached interaction: the request Key's hash, every
// stream event captured from the live call in order, and whether the
// recording reached a terminal event (Stop/Result) before being saved.
//
// Invariants (spec R1-R3):
//   - R1: at most one complete recording exists per hash; starting a new
//     recording for a hash deletes any prior incomplete row for it.
//   - R2: events are appended in the exact order they were streamed live.
//   - R3: a recording is loadable for playback only once Complete.
type RecordingEntry struct {
	Hash      string                `json:"hash"`
	CreatedAt time.Time             `json:"created_at"`
	Complete  bool                  `json:"complete"`
	Events    []provider.StreamEvent `json:"events"`
}

// Recorder is the ProviderRecorder contract: crash-safe incremental writes
// during a live call, and lookup/playback afterward.
type Recorder interface {
	// StartRecording begins a new recording for hash, deleting any prior
	// incomplete recording for the same hash (invariant R1).
	StartRecording(ctx context.Context, hash string) error

	// AppendEvent durably appends the next streamed event to hash's
	// in-progress recording.
	AppendEvent(ctx context.Context, hash string, e provider.StreamEvent) error

	// FinalizeRecording marks hash's recording Complete. Only a complete
	// recording is returned by Load.
	FinalizeRecording(ctx context.Context, hash string) error

	// Load returns the complete recording for hash, if one exists.
	Load(ctx context.Context, hash string) (RecordingEntry, bool, error)

	// List returns the hash of every complete recording.
	List(ctx context.Context) ([]string, error)

	// Delete removes a recording (complete or not) for hash.
	Delete(ctx context.Context, hash string) error
}
