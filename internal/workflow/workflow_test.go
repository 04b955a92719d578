package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-harness/loom/internal/events"
	"github.com/open-harness/loom/internal/eventstore"
	"github.com/open-harness/loom/internal/provider"
)

type counterState struct {
	Count int `json:"count"`
}

func simpleDef() *Definition {
	return &Definition{
		Name:         "increment",
		InitialState: counterState{Count: 0},
		Start:        "increment",
		Phases: map[PhaseID]*Phase{
			"increment": {
				ID: "increment",
				Run: func(state any) (any, error) {
					s := state.(counterState)
					s.Count++
					return s, nil
				},
				Next: func(state any) PhaseID { return "" },
			},
		},
	}
}

func TestDefinitionValidateRejectsUndefinedStart(t *testing.T) {
	def := &Definition{Name: "bad", Start: "missing", Phases: map[PhaseID]*Phase{}}
	err := def.Validate()
	assert.Error(t, err)
}

func TestDefinitionValidateRejectsPhaseWithBothRunAndAgent(t *testing.T) {
	def := &Definition{
		Name:  "bad",
		Start: "p",
		Phases: map[PhaseID]*Phase{
			"p": {
				ID:    "p",
				Run:   func(state any) (any, error) { return state, nil },
				Agent: &Agent{Name: "x"},
				Next:  func(state any) PhaseID { return "" },
			},
		},
	}
	err := def.Validate()
	assert.Error(t, err)
}

func TestRuntimeExecuteRunsRunPhaseToCompletion(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewFileStore(t.TempDir())
	bus := events.NewBus(64)
	registry := provider.NewRegistry("", nil)
	rt := NewRuntime(store, bus, registry)

	err := rt.Execute(ctx, "sess_1", simpleDef(), "go")
	require.NoError(t, err)

	log, err := store.GetEvents(ctx, "sess_1")
	require.NoError(t, err)

	var sawCompleted bool
	for _, e := range log {
		if e.Name == events.WorkflowCompleted {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)

	state := eventstore.ComputeStateAt(log, len(log))
	require.NotNil(t, state)
}

func TestRuntimePauseRecordsSessionPaused(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewFileStore(t.TempDir())
	bus := events.NewBus(64)
	registry := provider.NewRegistry("", nil)
	rt := NewRuntime(store, bus, registry)

	require.NoError(t, rt.Pause(ctx, "sess_1", "user requested"))

	log, err := store.GetEvents(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, events.SessionPaused, log[0].Name)
}

func TestRuntimeAbortRecordsSessionAborted(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewFileStore(t.TempDir())
	bus := events.NewBus(64)
	registry := provider.NewRegistry("", nil)
	rt := NewRuntime(store, bus, registry)

	require.NoError(t, rt.Abort(ctx, "sess_1", "fatal error"))

	log, err := store.GetEvents(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, events.SessionAborted, log[0].Name)
}

func TestNextBackoffStaysWithinCap(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := nextBackoff(attempt)
		assert.LessOrEqual(t, d, maxBackoff)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}
