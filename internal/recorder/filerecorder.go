package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/open-harness/loom/internal/provider"
	"github.com/open-harness/loom/internal/storage/dirstore"
)

const (
	recordingMetaFile   = "meta.json"
	recordingEventsFile = "events.jsonl"
)

// recordingMeta is the meta.json companion to a recording's events.jsonl,
// tracking completion the way sessions.FileStore tracks session metadata
// alongside its messages.jsonl.
type recordingMeta struct {
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
	Complete  bool      `json:"complete"`
}

// FileRecorder is the dirstore-backed Recorder: one directory per hash,
// holding meta.json (completion state) and events.jsonl (the streamed
// events, one JSON line each).
type FileRecorder struct {
	dir *dirstore.DirStore
}

// NewFileRecorder creates a FileRecorder rooted at baseDir.
func NewFileRecorder(baseDir string) *FileRecorder {
	return &FileRecorder{dir: dirstore.NewDirStore(baseDir, "recording")}
}

func (r *FileRecorder) StartRecording(ctx context.Context, hash string) error {
	r.dir.Lock()
	defer r.dir.Unlock()

	// Invariant R1: any prior incomplete recording for this hash is
	// discarded before starting a new one. A complete recording for the
	// hash is discarded too: the whole directory is removed, and the live
	// recording wrapper calls StartRecording on every live turn without
	// checking Load first.
	if err := r.dir.RemoveDir(hash); err != nil {
		return fmt.Errorf("recorder: start %s: %w", hash, err)
	}
	if err := r.dir.EnsureDir(hash); err != nil {
		return fmt.Errorf("recorder: start %s: %w", hash, err)
	}

	meta := recordingMeta{Hash: hash, CreatedAt: time.Now()}
	if err := r.dir.WriteMeta(hash, meta); err != nil {
		return fmt.Errorf("recorder: start %s: %w", hash, err)
	}
	return nil
}

func (r *FileRecorder) AppendEvent(ctx context.Context, hash string, e provider.StreamEvent) error {
	r.dir.Lock()
	defer r.dir.Unlock()

	if err := r.dir.AppendJSONL(hash, recordingEventsFile, e); err != nil {
		return fmt.Errorf("recorder: append %s: %w", hash, err)
	}
	return nil
}

func (r *FileRecorder) FinalizeRecording(ctx context.Context, hash string) error {
	r.dir.Lock()
	defer r.dir.Unlock()

	var meta recordingMeta
	if err := r.dir.ReadMeta(hash, &meta); err != nil {
		return fmt.Errorf("recorder: finalize %s: %w", hash, err)
	}
	meta.Complete = true
	if err := r.dir.WriteMeta(hash, meta); err != nil {
		return fmt.Errorf("recorder: finalize %s: %w", hash, err)
	}
	return nil
}

func (r *FileRecorder) Load(ctx context.Context, hash string) (RecordingEntry, bool, error) {
	r.dir.RLock()
	defer r.dir.RUnlock()

	var meta recordingMeta
	if err := r.dir.ReadMeta(hash, &meta); err != nil {
		return RecordingEntry{}, false, nil
	}
	if !meta.Complete {
		return RecordingEntry{}, false, nil
	}

	events, err := dirstore.LoadJSONL[provider.StreamEvent](r.dir, hash, recordingEventsFile)
	if err != nil {
		return RecordingEntry{}, false, fmt.Errorf("recorder: load %s: %w", hash, err)
	}

	return RecordingEntry{
		Hash:      meta.Hash,
		CreatedAt: meta.CreatedAt,
		Complete:  true,
		Events:    events,
	}, true, nil
}

func (r *FileRecorder) List(ctx context.Context) ([]string, error) {
	hashes, err := r.dir.ListDirs()
	if err != nil {
		return nil, fmt.Errorf("recorder: list: %w", err)
	}

	var complete []string
	for _, h := range hashes {
		var meta recordingMeta
		if err := r.dir.ReadMeta(h, &meta); err != nil {
			continue
		}
		if meta.Complete {
			complete = append(complete, h)
		}
	}
	return complete, nil
}

func (r *FileRecorder) Delete(ctx context.Context, hash string) error {
	r.dir.Lock()
	defer r.dir.Unlock()

	if err := r.dir.RemoveDir(hash); err != nil {
		return fmt.Errorf("recorder: delete %s: %w", hash, err)
	}
	return nil
}

var _ Recorder = (*FileRecorder)(nil)
