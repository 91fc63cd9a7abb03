package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/kestrelworks/agentchat/pkg/logger"
)

// wsRequest is the first message a websocket client sends
type wsRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	Token     string `json:"token,omitempty"`
}

// handleChatWS streams reassembled frames over a websocket. The client sends
// one request message; every subsequent server message is a Frame.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		logger.Warn("WebSocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected shutdown")

	ctx := r.Context()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	_, data, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "expected a request message")
		return
	}

	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Prompt == "" {
		conn.Close(websocket.StatusPolicyViolation, "invalid request message")
		return
	}

	token := req.Token
	if token == "" {
		token = s.requestToken(r)
	}

	send := func(frame Frame) error {
		payload, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, payload)
	}

	s.streamChat(ctx, chatRequest{
		Prompt:    req.Prompt,
		SessionID: req.SessionID,
		ActorID:   req.ActorID,
	}, token, send)

	conn.Close(websocket.StatusNormalClosure, "")
}
