// Package http is a reference HTTP transport for a hub.Hub: a chi router
// exposing session lifecycle operations as JSON endpoints plus a
// server-sent-events stream per session, grounded directly on
// internal/gateway/server.go's router/Start/Shutdown shape.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/open-harness/loom/internal/events"
	"github.com/open-harness/loom/internal/hub"
)

// Server is an HTTP transport over a Hub.
type Server struct {
	hub        *hub.Hub
	httpServer *http.Server
}

// NewServer builds a Server listening on addr ("host:port"), wiring every
// route onto h.
func NewServer(h *hub.Hub, addr string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{hub: h}

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/sessions", s.handleCreateSession)
	r.Get("/api/sessions/{id}/status", s.handleStatus)
	r.Get("/api/sessions/{id}/state", s.handleState)
	r.Get("/api/sessions/{id}/usage", s.handleTokenUsage)
	r.Get("/api/sessions/{id}/title", s.handleGetTitle)
	r.Put("/api/sessions/{id}/title", s.handleSetTitle)
	r.Get("/api/sessions/{id}/events", s.handleEventStream)
	r.Post("/api/sessions/{id}/pause", s.handlePause)
	r.Post("/api/sessions/{id}/resume", s.handleResume)
	r.Post("/api/sessions/{id}/abort", s.handleAbort)
	r.Post("/api/sessions/{id}/fork", s.handleFork)
	r.Post("/api/sessions/{id}/prompt", s.handleSendPrompt)
	r.Post("/api/sessions/{id}/reply", s.handleReply)
	r.Get("/api/events", s.handleHistory)

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start listens and serves. It blocks until the server stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("http transport listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// AsTransport adapts Server into a hub.Transport, starting it on its own
// goroutine and returning a cleanup that shuts it down with a bounded
// grace period, the same pattern cmd/commands/gateway.go uses around
// server.Shutdown.
func AsTransport(addr string) hub.Transport {
	return func(h *hub.Hub) (func(), error) {
		s := NewServer(h, addr)

		errCh := make(chan error, 1)
		go func() { errCh <- s.Start() }()

		select {
		case err := <-errCh:
			return nil, err
		case <-time.After(50 * time.Millisecond):
		}

		return func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				slog.Error("http transport shutdown", "error", err)
			}
		}, nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Workflow string `json:"workflow"`
		Input    string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	sessionID, err := s.hub.Send(r.Context(), body.Workflow, body.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.hub.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.hub.State(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (s *Server) handleTokenUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	usage, err := s.hub.TokenUsage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleGetTitle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	title, err := s.hub.Title(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

func (s *Server) handleSetTitle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.hub.SetTitle(r.Context(), id, body.Title); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "titled"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := s.hub.Pause(r.Context(), id, body.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.hub.Resume(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := s.hub.Abort(r.Context(), id, body.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

func (s *Server) handleFork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	forkID, err := s.hub.Fork(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": forkID})
}

func (s *Server) handleSendPrompt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Prompt  string   `json:"prompt"`
		Choices []string `json:"choices"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	promptID, err := s.hub.SendTo(r.Context(), id, body.Prompt, body.Choices)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt_id": promptID})
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		PromptID string `json:"prompt_id"`
		Content  string `json:"content"`
		Choice   string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.hub.Reply(r.Context(), id, body.PromptID, body.Content, body.Choice); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "replied"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.hub.History(limit))
}

// handleEventStream streams sessionID's events as Server-Sent Events,
// one JSON-encoded events.Event per "data:" line, flushing after every
// delivery so a browser EventSource sees events as they happen rather
// than buffered until the connection closes.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	done := make(chan struct{})
	unsubscribe := s.hub.Subscribe(id, events.MatchAll, func(e events.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		select {
		case <-done:
			return
		default:
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	})
	defer unsubscribe()

	<-r.Context().Done()
	close(done)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
