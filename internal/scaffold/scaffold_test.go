package scaffold

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-harness/loom/internal/eventstore"
	"github.com/open-harness/loom/internal/provider/recording"
	"github.com/open-harness/loom/internal/recorder"
	"github.com/open-harness/loom/internal/workflow"
)

type counterState struct {
	Count int `json:"count"`
}

func incrementDef() *workflow.Definition {
	return &workflow.Definition{
		Name:         "increment",
		InitialState: counterState{Count: 0},
		Start:        "increment",
		Phases: map[workflow.PhaseID]*workflow.Phase{
			"increment": {
				ID: "increment",
				Run: func(state any) (any, error) {
					s := state.(counterState)
					s.Count++
					return s, nil
				},
				Next: func(state any) workflow.PhaseID { return "" },
			},
		},
	}
}

func newTestScaffold(t *testing.T) *Scaffold {
	t.Helper()
	store := eventstore.NewFileStore(t.TempDir())
	snaps := eventstore.NewFileSnapshotStore(t.TempDir())
	rec := recorder.NewFileRecorder(t.TempDir())
	s := NewScaffold(Config{Mode: recording.ModeLive}, store, snaps, rec)
	require.NoError(t, s.RegisterDefinition(incrementDef()))
	return s
}

func waitForStatus(t *testing.T, s *Scaffold, sessionID string, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := s.GetStatus(context.Background(), sessionID)
		if err == nil && status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached status %s", sessionID, want)
}

func TestCreateSessionRunsToCompletion(t *testing.T) {
	s := newTestScaffold(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "increment", "go")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	waitForStatus(t, s, sessionID, StatusCompleted)

	state, err := s.GetState(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, counterState{Count: 1}, state)
}

func TestCreateSessionUnknownWorkflowErrors(t *testing.T) {
	s := newTestScaffold(t)
	_, err := s.CreateSession(context.Background(), "missing", "go")
	assert.Error(t, err)
}

func TestGetStatusUnknownSessionErrors(t *testing.T) {
	s := newTestScaffold(t)
	_, err := s.GetStatus(context.Background(), "sess_nope")
	assert.Error(t, err)
}

func TestPauseRecordsPausedStatus(t *testing.T) {
	s := newTestScaffold(t)
	ctx := context.Background()

	require.NoError(t, s.Pause(ctx, "sess_1", "manual pause"))
	status, err := s.GetStatus(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, status)
}

func TestAbortRecordsAbortedStatus(t *testing.T) {
	s := newTestScaffold(t)
	ctx := context.Background()

	require.NoError(t, s.Abort(ctx, "sess_1", "fatal"))
	status, err := s.GetStatus(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, status)
}

func TestForkCopiesEventLogUnderNewSessionID(t *testing.T) {
	s := newTestScaffold(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "increment", "go")
	require.NoError(t, err)
	waitForStatus(t, s, sessionID, StatusCompleted)

	forkID, err := s.Fork(ctx, sessionID)
	require.NoError(t, err)
	assert.NotEqual(t, sessionID, forkID)

	original, err := s.store.GetEvents(ctx, sessionID)
	require.NoError(t, err)
	forked, err := s.store.GetEvents(ctx, forkID)
	require.NoError(t, err)
	require.Len(t, forked, len(original))
	for i := range original {
		assert.Equal(t, original[i].Name, forked[i].Name)
		assert.Equal(t, original[i].Position, forked[i].Position)
	}
}

func TestDeleteSessionRemovesLog(t *testing.T) {
	s := newTestScaffold(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "increment", "go")
	require.NoError(t, err)
	waitForStatus(t, s, sessionID, StatusCompleted)

	require.NoError(t, s.DeleteSession(ctx, sessionID))
	_, err = s.GetStatus(ctx, sessionID)
	assert.Error(t, err)
}

func TestGetResolvesSameWrappedProviderEveryCall(t *testing.T) {
	store := eventstore.NewFileStore(t.TempDir())
	snaps := eventstore.NewFileSnapshotStore(t.TempDir())
	rec := recorder.NewFileRecorder(t.TempDir())
	s := NewScaffold(Config{
		Mode: recording.ModePlayback,
	}, store, snaps, rec)

	ctx := context.Background()
	p1, err := s.Get(ctx, "anthropic")
	require.NoError(t, err)
	p2, err := s.Get(ctx, "anthropic")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}
