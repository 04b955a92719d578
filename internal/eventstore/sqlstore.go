package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/open-harness/loom/internal/events"
)

// schema matches the persisted layout in spec §6.3: one row per event,
// position-unique within a session, plus a snapshots table keyed by
// session with a single cached row per session.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	name       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	UNIQUE(session_id, position)
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, position);

CREATE TABLE IF NOT EXISTS snapshots (
	session_id TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	state      TEXT NOT NULL
);
`

// SQLStore is the modernc.org/sqlite-backed Store, for deployments that
// want a single queryable file instead of one directory per session.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if absent) a pure-Go sqlite database at
// path and ensures the event/snapshot tables exist.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapErr("open", "", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writes; avoid SQLITE_BUSY churn

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, wrapErr("migrate", "", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Append(ctx context.Context, sessionID string, e events.Event) (events.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return events.Event{}, wrapErr("append", sessionID, err)
	}
	defer tx.Rollback()

	var maxPos sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(position) FROM events WHERE session_id = ?`, sessionID,
	).Scan(&maxPos); err != nil {
		return events.Event{}, wrapErr("append", sessionID, err)
	}

	e.SessionID = sessionID
	e.Position = int(maxPos.Int64)
	if maxPos.Valid {
		e.Position = int(maxPos.Int64) + 1
	}

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return events.Event{}, wrapErr("append", sessionID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, session_id, position, name, payload, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Position, string(e.Name), string(payload), e.Timestamp,
	); err != nil {
		return events.Event{}, wrapErr("append", sessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return events.Event{}, wrapErr("append", sessionID, err)
	}
	return e, nil
}

func (s *SQLStore) queryEvents(ctx context.Context, query string, args ...any) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e       events.Event
			name    string
			payload string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Position, &name, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Name = events.Name(name)
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetEvents(ctx context.Context, sessionID string) ([]events.Event, error) {
	log, err := s.queryEvents(ctx,
		`SELECT id, session_id, position, name, payload, timestamp FROM events WHERE session_id = ? ORDER BY position`,
		sessionID)
	if err != nil {
		return nil, wrapErr("get_events", sessionID, err)
	}
	return log, nil
}

func (s *SQLStore) GetEventsFrom(ctx context.Context, sessionID string, fromPosition int) ([]events.Event, error) {
	log, err := s.queryEvents(ctx,
		`SELECT id, session_id, position, name, payload, timestamp FROM events WHERE session_id = ? AND position >= ? ORDER BY position`,
		sessionID, fromPosition)
	if err != nil {
		return nil, wrapErr("get_events", sessionID, err)
	}
	return log, nil
}

func (s *SQLStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT session_id FROM events`)
	if err != nil {
		return nil, wrapErr("list_sessions", "", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("list_sessions", "", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("delete_session", sessionID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return wrapErr("delete_session", sessionID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE session_id = ?`, sessionID); err != nil {
		return wrapErr("delete_session", sessionID, err)
	}
	return wrapErr("delete_session", sessionID, tx.Commit())
}

// SQLSnapshotStore is the SQLStore-backed SnapshotStore, sharing the same
// database/connection as its SQLStore.
type SQLSnapshotStore struct {
	db *sql.DB
}

// NewSQLSnapshotStore wraps the same *sql.DB a SQLStore opened, so
// snapshots and events live in one file.
func NewSQLSnapshotStore(store *SQLStore) *SQLSnapshotStore {
	return &SQLSnapshotStore{db: store.db}
}

func (s *SQLSnapshotStore) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return wrapErr("save_snapshot", sessionID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, position, state) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET position = excluded.position, state = excluded.state`,
		sessionID, snap.Position, string(state))
	return wrapErr("save_snapshot", sessionID, err)
}

func (s *SQLSnapshotStore) GetLatest(ctx context.Context, sessionID string) (Snapshot, bool, error) {
	var (
		position int
		state    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT position, state FROM snapshots WHERE session_id = ?`, sessionID,
	).Scan(&position, &state)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, wrapErr("get_snapshot", sessionID, err)
	}

	snap := Snapshot{SessionID: sessionID, Position: position}
	if err := json.Unmarshal([]byte(state), &snap.State); err != nil {
		return Snapshot{}, false, wrapErr("get_snapshot", sessionID, err)
	}
	return snap, true, nil
}

func (s *SQLSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE session_id = ?`, sessionID)
	return wrapErr("delete_snapshot", sessionID, err)
}

var (
	_ Store         = (*SQLStore)(nil)
	_ SnapshotStore = (*SQLSnapshotStore)(nil)
)
