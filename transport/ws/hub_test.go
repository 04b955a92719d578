package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-harness/loom/internal/eventstore"
	"github.com/open-harness/loom/internal/hub"
	"github.com/open-harness/loom/internal/provider/recording"
	"github.com/open-harness/loom/internal/recorder"
	"github.com/open-harness/loom/internal/scaffold"
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

func newTestClient(t *testing.T) *client {
	t.Helper()
	store := eventstore.NewFileStore(t.TempDir())
	snaps := eventstore.NewFileSnapshotStore(t.TempDir())
	rec := recorder.NewFileRecorder(t.TempDir())
	s := scaffold.NewScaffold(scaffold.Config{Mode: recording.ModeLive}, store, snaps, rec)
	require.NoError(t, s.RegisterDefinition(incrementDef()))

	srv := &Server{hub: hub.New(s), clients: make(map[*client]struct{})}
	return &client{send: make(chan []byte, 16), server: srv}
}

func TestFrameRoundTrip(t *testing.T) {
	f, err := NewResponseFrame("req_1", true, map[string]string{"status": "ok"}, "")
	require.NoError(t, err)

	data, err := MarshalFrame(f)
	require.NoError(t, err)

	got, err := UnmarshalFrame(data)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeResponse, got.Type)
	assert.Equal(t, "req_1", got.ID)
	require.NotNil(t, got.OK)
	assert.True(t, *got.OK)
}

func TestHandleRequestSendStartsSessionAndSubscribes(t *testing.T) {
	c := newTestClient(t)
	params, _ := json.Marshal(map[string]string{"workflow": "increment", "input": "go"})
	unsub := c.handleRequest(context.Background(), Frame{
		Type: FrameTypeRequest, ID: "1", Method: string(MethodSend), Params: params,
	})
	require.NotNil(t, unsub)
	defer unsub()

	require.NotEmpty(t, c.sessionID)

	select {
	case data := <-c.send:
		frame, err := UnmarshalFrame(data)
		require.NoError(t, err)
		assert.Equal(t, FrameTypeResponse, frame.Type)
		require.NotNil(t, frame.OK)
		assert.True(t, *frame.OK)
	default:
		t.Fatal("expected an immediate response frame")
	}
}

func TestHandleRequestUnknownMethodSendsError(t *testing.T) {
	c := newTestClient(t)
	unsub := c.handleRequest(context.Background(), Frame{
		Type: FrameTypeRequest, ID: "1", Method: "bogus",
	})
	assert.Nil(t, unsub)

	data := <-c.send
	frame, err := UnmarshalFrame(data)
	require.NoError(t, err)
	require.NotNil(t, frame.OK)
	assert.False(t, *frame.OK)
	assert.Contains(t, frame.Error, "bogus")
}

func TestHandleRequestPauseAndStatus(t *testing.T) {
	c := newTestClient(t)
	c.sessionID = "sess_1"

	unsub := c.handleRequest(context.Background(), Frame{Type: FrameTypeRequest, ID: "1", Method: string(MethodPause)})
	assert.Nil(t, unsub)
	<-c.send

	unsub2 := c.handleRequest(context.Background(), Frame{Type: FrameTypeRequest, ID: "2", Method: string(MethodStatus)})
	assert.Nil(t, unsub2)

	data := <-c.send
	frame, err := UnmarshalFrame(data)
	require.NoError(t, err)
	assert.Contains(t, string(frame.Payload), "paused")
}
