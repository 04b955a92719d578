package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := eventstore.NewFileStore(t.TempDir())
	snaps := eventstore.NewFileSnapshotStore(t.TempDir())
	rec := recorder.NewFileRecorder(t.TempDir())
	s := scaffold.NewScaffold(scaffold.Config{Mode: recording.ModeLive}, store, snaps, rec)
	require.NoError(t, s.RegisterDefinition(incrementDef()))
	return NewServer(hub.New(s), "127.0.0.1:0")
}

func TestCreateSessionAndPollStatus(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"workflow": "increment", "input": "go"})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)

	deadline := time.Now().Add(2 * time.Second)
	var status string
	for time.Now().Before(deadline) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.SessionID+"/status", nil)
		srv.httpServer.Handler.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			var resp struct {
				Status string `json:"status"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			status = resp.Status
			if status == "completed" {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, "completed", status)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPauseUnknownSessionRecordsEvent(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess_1/pause", bytes.NewReader([]byte(`{"reason":"test"}`)))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/api/sessions/sess_1/status", nil)
	srv.httpServer.Handler.ServeHTTP(w2, req2)
	assert.Contains(t, w2.Body.String(), "paused")
}

func TestAsTransportStartsAndStops(t *testing.T) {
	store := eventstore.NewFileStore(t.TempDir())
	snaps := eventstore.NewFileSnapshotStore(t.TempDir())
	rec := recorder.NewFileRecorder(t.TempDir())
	s := scaffold.NewScaffold(scaffold.Config{Mode: recording.ModeLive}, store, snaps, rec)
	h := hub.New(s)

	cleanup, err := AsTransport("127.0.0.1:0")(h)
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	cleanup()
}
