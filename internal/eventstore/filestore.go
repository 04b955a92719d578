package eventstore

import (
	"context"
	"sync"

	"github.com/open-harness/loom/internal/events"
	"github.com/open-harness/loom/internal/storage/dirstore"
)

const eventsFile = "events.jsonl"

// FileStore is the filesystem-backed Store: one directory per session
// holding an append-only events.jsonl, one JSON line per event. Writes use
// the dirstore tmp+rename/append primitives, so a crash mid-write never
// corrupts a prior line.
type FileStore struct {
	dir *dirstore.DirStore

	mu   sync.Mutex
	next map[string]int // sessionID -> next position, cached after first touch
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{
		dir:  dirstore.NewDirStore(baseDir, "session"),
		next: make(map[string]int),
	}
}

func (s *FileStore) Append(ctx context.Context, sessionID string, e events.Event) (events.Event, error) {
	s.dir.Lock()
	defer s.dir.Unlock()

	s.mu.Lock()
	pos, cached := s.next[sessionID]
	s.mu.Unlock()
	if !cached {
		existing, err := dirstore.LoadJSONL[events.Event](s.dir, sessionID, eventsFile)
		if err != nil {
			return events.Event{}, wrapErr("append", sessionID, err)
		}
		pos = len(existing)
	}

	if err := s.dir.EnsureDir(sessionID); err != nil {
		return events.Event{}, wrapErr("append", sessionID, err)
	}

	e.SessionID = sessionID
	e.Position = pos

	if err := s.dir.AppendJSONL(sessionID, eventsFile, e); err != nil {
		return events.Event{}, wrapErr("append", sessionID, err)
	}

	s.mu.Lock()
	s.next[sessionID] = pos + 1
	s.mu.Unlock()

	return e, nil
}

func (s *FileStore) GetEvents(ctx context.Context, sessionID string) ([]events.Event, error) {
	s.dir.RLock()
	defer s.dir.RUnlock()

	log, err := dirstore.LoadJSONL[events.Event](s.dir, sessionID, eventsFile)
	if err != nil {
		return nil, wrapErr("get_events", sessionID, err)
	}
	return log, nil
}

func (s *FileStore) GetEventsFrom(ctx context.Context, sessionID string, fromPosition int) ([]events.Event, error) {
	log, err := s.GetEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := log[:0:0]
	for _, e := range log {
		if e.Position >= fromPosition {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *FileStore) ListSessions(ctx context.Context) ([]string, error) {
	names, err := s.dir.ListDirs()
	if err != nil {
		return nil, wrapErr("list_sessions", "", err)
	}
	return names, nil
}

func (s *FileStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.dir.Lock()
	defer s.dir.Unlock()

	if err := s.dir.RemoveDir(sessionID); err != nil {
		return wrapErr("delete_session", sessionID, err)
	}

	s.mu.Lock()
	delete(s.next, sessionID)
	s.mu.Unlock()

	return nil
}

var _ Store = (*FileStore)(nil)
