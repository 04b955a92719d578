package eventstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-harness/loom/internal/events"
)

func TestFileStoreAppendAssignsIncrementingPositions(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	e1, err := store.Append(ctx, "sess_1", events.Event{Name: events.WorkflowStarted})
	require.NoError(t, err)
	assert.Equal(t, 0, e1.Position)

	e2, err := store.Append(ctx, "sess_1", events.Event{Name: events.PhaseStart})
	require.NoError(t, err)
	assert.Equal(t, 1, e2.Position)
}

func TestFileStoreGetEventsReturnsInOrder(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	for _, name := range []events.Name{events.WorkflowStarted, events.PhaseStart, events.PhaseComplete} {
		_, err := store.Append(ctx, "sess_1", events.Event{Name: name})
		require.NoError(t, err)
	}

	log, err := store.GetEvents(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, events.WorkflowStarted, log[0].Name)
	assert.Equal(t, events.PhaseComplete, log[2].Name)
}

func TestFileStoreGetEventsFromFiltersByPosition(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()
	for _, name := range []events.Name{events.WorkflowStarted, events.PhaseStart, events.PhaseComplete} {
		_, err := store.Append(ctx, "sess_1", events.Event{Name: name})
		require.NoError(t, err)
	}

	log, err := store.GetEventsFrom(ctx, "sess_1", 1)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, events.PhaseStart, log[0].Name)
}

func TestFileStoreSessionsAreIsolated(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Append(ctx, "sess_a", events.Event{Name: events.WorkflowStarted})
	require.NoError(t, err)
	_, err = store.Append(ctx, "sess_b", events.Event{Name: events.WorkflowStarted})
	require.NoError(t, err)

	logA, err := store.GetEvents(ctx, "sess_a")
	require.NoError(t, err)
	assert.Len(t, logA, 1)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sess_a", "sess_b"}, sessions)
}

func TestFileStoreDeleteSessionRemovesLog(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Append(ctx, "sess_1", events.Event{Name: events.WorkflowStarted})
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, "sess_1"))

	log, err := store.GetEvents(ctx, "sess_1")
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestFileSnapshotStoreSaveAndGetLatest(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSnapshotStore(dir)
	ctx := context.Background()

	_, ok, err := store.GetLatest(ctx, "sess_1")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := Snapshot{SessionID: "sess_1", Position: 3, State: map[string]any{"phase": "plan"}}
	require.NoError(t, store.Save(ctx, "sess_1", snap))

	got, ok, err := store.GetLatest(ctx, "sess_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.Position)
}
