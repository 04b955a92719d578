package eventstore

import (
	"context"
	"encoding/json"

	"github.com/open-harness/loom/internal/storage/dirstore"
)

const snapshotFile = "snapshot.json"

// FileSnapshotStore caches the latest Snapshot per session as a single
// atomically-written JSON file alongside the session's event log.
type FileSnapshotStore struct {
	dir *dirstore.DirStore
}

// NewFileSnapshotStore creates a FileSnapshotStore rooted at baseDir. It is
// typically pointed at the same baseDir as the matching FileStore so a
// session's snapshot lives next to its event log.
func NewFileSnapshotStore(baseDir string) *FileSnapshotStore {
	return &FileSnapshotStore{dir: dirstore.NewDirStore(baseDir, "session")}
}

func (s *FileSnapshotStore) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	s.dir.Lock()
	defer s.dir.Unlock()

	if err := s.dir.EnsureDir(sessionID); err != nil {
		return wrapErr("save_snapshot", sessionID, err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return wrapErr("save_snapshot", sessionID, err)
	}

	if err := s.dir.WriteFileAtomic(sessionID, snapshotFile, data); err != nil {
		return wrapErr("save_snapshot", sessionID, err)
	}
	return nil
}

func (s *FileSnapshotStore) GetLatest(ctx context.Context, sessionID string) (Snapshot, bool, error) {
	s.dir.RLock()
	defer s.dir.RUnlock()

	data, err := s.dir.ReadFileContent(sessionID, snapshotFile)
	if err != nil {
		return Snapshot{}, false, wrapErr("get_snapshot", sessionID, err)
	}
	if data == nil {
		return Snapshot{}, false, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, wrapErr("get_snapshot", sessionID, err)
	}
	return snap, true, nil
}

func (s *FileSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	s.dir.Lock()
	defer s.dir.Unlock()

	if err := s.dir.RemoveDir(sessionID); err != nil {
		return wrapErr("delete_snapshot", sessionID, err)
	}
	return nil
}

var _ SnapshotStore = (*FileSnapshotStore)(nil)
