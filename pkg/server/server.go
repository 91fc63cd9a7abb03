// Package server provides the local proxy that fronts an AgentCore runtime
// for browser clients: it forwards invocations upstream and re-streams the
// reassembled block state as SSE or websocket frames.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/kestrelworks/agentchat/pkg/agentcore"
	"github.com/kestrelworks/agentchat/pkg/blocks"
	"github.com/kestrelworks/agentchat/pkg/chat"
	"github.com/kestrelworks/agentchat/pkg/events"
	"github.com/kestrelworks/agentchat/pkg/logger"
)

// Server proxies chat invocations to the agent endpoint
type Server struct {
	client         *agentcore.Client
	bearerToken    func() string
	actorID        string
	allowedOrigins []string
}

// New creates a proxy server. bearerToken resolves the upstream credential
// when the incoming request carries none of its own.
func New(client *agentcore.Client, bearerToken func() string, actorID string, allowedOrigins []string) *Server {
	if bearerToken == nil {
		bearerToken = func() string { return "" }
	}
	return &Server{
		client:         client,
		bearerToken:    bearerToken,
		actorID:        actorID,
		allowedOrigins: allowedOrigins,
	}
}

// Router builds the HTTP routing tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(CORS(s.allowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Post("/api/chat", s.handleChat)
	r.Get("/api/chat/ws", s.handleChatWS)

	return r
}

// chatRequest is the proxy's invocation payload
type chatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

// Frame is one streamed snapshot of the reassembled message. The block list
// is recomputed wholly for every frame, so clients replace rather than patch.
type Frame struct {
	SessionID string         `json:"session_id"`
	Blocks    blocks.Blocks  `json:"blocks"`
	Content   string         `json:"content"`
	Done      bool           `json:"done"`
	Metadata  *chat.Metadata `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat forwards one prompt upstream and re-frames the reassembled
// stream as SSE data lines
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(frame Frame) error {
		data, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	s.streamChat(r.Context(), req, s.requestToken(r), send)
}

// requestToken prefers the caller's bearer token over the server's own
func (s *Server) requestToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
		return token
	}
	return s.bearerToken()
}

// streamChat drives one upstream invocation and emits a frame per processed
// event plus a terminal done/error frame
func (s *Server) streamChat(ctx context.Context, req chatRequest, token string, send func(Frame) error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	actorID := req.ActorID
	if actorID == "" {
		actorID = s.actorID
	}

	lines, err := s.client.Invoke(ctx, agentcore.InvokeRequest{
		Prompt:      req.Prompt,
		SessionID:   sessionID,
		ActorID:     actorID,
		BearerToken: token,
	})
	if err != nil {
		logger.Error("Proxy invoke failed: %v", err)
		send(Frame{SessionID: sessionID, Done: true, Error: err.Error()})
		return
	}

	state := blocks.NewState()
	meta := &chat.Metadata{}
	var streamErr error

	for line := range lines {
		if line.Err != nil {
			streamErr = line.Err
			break
		}

		var evs []events.Event
		switch {
		case len(line.Raw) > 0:
			evs = events.Classify(line.Raw)
		case line.Text != "":
			evs = []events.Event{events.PlainText{Text: line.Text}}
		default:
			continue
		}

		for _, ev := range evs {
			switch e := ev.(type) {
			case events.Metadata:
				meta.Merge(e)
			case events.MessageStop:
				meta.StopReason = e.StopReason
			case events.Unrecognized:
				logger.Debug("Proxy dropping unrecognized event: %s", string(e.Raw))
			case events.PlainText:
				logger.Debug("Proxy dropping non-event stream line: %q", e.Text)
			case events.ToolStream:
				// informational only
			default:
				state = blocks.Reduce(state, ev)
			}
		}

		snapshot := blocks.Snapshot(state)
		frame := Frame{
			SessionID: sessionID,
			Blocks:    blocks.Blocks(snapshot),
			Content:   blocks.Flatten(snapshot),
		}
		if err := send(frame); err != nil {
			// Client went away; the request context unwinds the upstream reader
			return
		}
	}

	if streamErr != nil {
		state = blocks.MarkToolsFailed(state)
	}

	final, _ := blocks.Finalize(state)
	frame := Frame{
		SessionID: sessionID,
		Blocks:    blocks.Blocks(final),
		Content:   blocks.Flatten(final),
		Done:      true,
	}
	if !meta.IsEmpty() {
		metaCopy := *meta
		frame.Metadata = &metaCopy
	}
	if streamErr != nil {
		frame.Error = streamErr.Error()
	}
	send(frame)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeError follows the proxy error contract: {"detail": string}
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
