package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/open-harness/loom/internal/events"
	"github.com/open-harness/loom/internal/hub"
)

// client is one connected WebSocket session, grounded on
// internal/gateway/ws/hub.go's Client: a buffered outbound queue drained
// by its own writePump, and the session ID it is currently bound to.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	server    *Server
	sessionID string
}

// Server bridges WebSocket connections to a hub.Hub: every inbound frame
// dispatches to a Hub method, and every event the connection subscribes to
// is pushed back as an event frame.
type Server struct {
	hub        *hub.Hub
	httpServer *http.Server

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewServer builds a WebSocket transport Server bound to addr, serving the
// upgrade at "/ws".
func NewServer(h *hub.Hub, addr string) *Server {
	s := &Server{hub: h, clients: make(map[*client]struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start listens and serves. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("ws transport listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown closes every connection and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

// AsTransport adapts Server into a hub.Transport.
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
				slog.Error("ws transport shutdown", "error", err)
			}
		}, nil
	}
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256), server: s}
	s.register(c)

	ctx := r.Context()
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *client) readPump(ctx context.Context) {
	var unsubscribe func()
	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
		c.server.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}
		if frame.Type != FrameTypeRequest {
			continue
		}

		if newUnsub := c.handleRequest(ctx, frame); newUnsub != nil {
			if unsubscribe != nil {
				unsubscribe()
			}
			unsubscribe = newUnsub
		}
	}
}

// handleRequest dispatches one request frame and returns a non-nil
// unsubscribe func only when the request bound this client to a new
// session (replacing any subscription it already had).
func (c *client) handleRequest(ctx context.Context, frame Frame) (newSubscription func()) {
	switch Method(frame.Method) {
	case MethodSend:
		var params struct {
			Workflow string `json:"workflow"`
			Input    string `json:"input"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return nil
		}
		sessionID, err := c.server.hub.Send(ctx, params.Workflow, params.Input)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sessionID = sessionID
		c.sendOK(frame.ID, map[string]string{"session_id": sessionID})
		return c.server.hub.Subscribe(sessionID, events.MatchAll, c.pushEvent)

	case MethodSendTo:
		var params struct {
			Prompt  string   `json:"prompt"`
			Choices []string `json:"choices"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return nil
		}
		promptID, err := c.server.hub.SendTo(ctx, c.sessionID, params.Prompt, params.Choices)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, map[string]string{"prompt_id": promptID})

	case MethodReply:
		var params struct {
			PromptID string `json:"prompt_id"`
			Content  string `json:"content"`
			Choice   string `json:"choice"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return nil
		}
		if err := c.server.hub.Reply(ctx, c.sessionID, params.PromptID, params.Content, params.Choice); err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, map[string]string{"status": "replied"})

	case MethodPause:
		if err := c.server.hub.Pause(ctx, c.sessionID, ""); err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, map[string]string{"status": "paused"})

	case MethodResume:
		if err := c.server.hub.Resume(ctx, c.sessionID); err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, map[string]string{"status": "resumed"})

	case MethodAbort:
		if err := c.server.hub.Abort(ctx, c.sessionID, ""); err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, map[string]string{"status": "aborted"})

	case MethodFork:
		forkID, err := c.server.hub.Fork(ctx, c.sessionID)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, map[string]string{"session_id": forkID})

	case MethodStatus:
		status, err := c.server.hub.Status(ctx, c.sessionID)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, map[string]string{"status": string(status)})

	case MethodState:
		state, err := c.server.hub.State(ctx, c.sessionID)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, map[string]any{"state": state})

	case MethodUsage:
		usage, err := c.server.hub.TokenUsage(ctx, c.sessionID)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, usage)

	case MethodTitle:
		title, err := c.server.hub.Title(ctx, c.sessionID)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, map[string]string{"title": title})

	case MethodSetTitle:
		var params struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return nil
		}
		if err := c.server.hub.SetTitle(ctx, c.sessionID, params.Title); err != nil {
			c.sendError(frame.ID, err.Error())
			return nil
		}
		c.sendOK(frame.ID, map[string]string{"status": "titled"})

	default:
		c.sendError(frame.ID, "unknown method: "+frame.Method)
	}
	return nil
}

func (c *client) pushEvent(e events.Event) {
	frame, err := NewEventFrame(string(e.Name), e.SessionID, e)
	if err != nil {
		return
	}
	data, err := MarshalFrame(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *client) sendOK(id string, payload any) {
	f, err := NewResponseFrame(id, true, payload, "")
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) sendError(id string, errMsg string) {
	f, err := NewResponseFrame(id, false, nil, errMsg)
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
