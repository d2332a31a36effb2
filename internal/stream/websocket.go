package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/tinyagents/internal/identity"
	"github.com/ashureev/tinyagents/internal/miniapp"
	"github.com/coder/websocket"
)

const (
	writeTimeout    = 5 * time.Second
	maxFrameSize    = 64 << 10
	eventBufferSize = 64
	sendQueueSize   = 32
)

// Limiter throttles sends per user key.
type Limiter interface {
	Allow(key string) bool
}

// WebSocketHandler streams session events to the Mini App and accepts
// send/select/back commands.
type WebSocketHandler struct {
	sessions      *miniapp.Manager
	conns         *ConnManager
	limiter       Limiter
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler. limiter may be nil.
func NewWebSocketHandler(sessions *miniapp.Manager, conns *ConnManager, limiter Limiter, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		sessions:      sessions,
		conns:         conns,
		limiter:       limiter,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientFrame is a command sent by the Mini App.
type clientFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Agent string `json:"agent,omitempty"`
}

// serverFrame is a reply that is not a session event.
type serverFrame struct {
	Type  string            `json:"type"`
	State *miniapp.Snapshot `json:"state,omitempty"`
	Error string            `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userKey := identity.UserKeyFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userKey, "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userKey)
		return
	}
	ws.SetReadLimit(maxFrameSize)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userKey)
		}
	}()

	h.conns.Register(userKey, sessionID, ws)
	defer h.conns.Unregister(userKey, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := h.sessions.Get(userKey, sessionID)
	events, unsubscribe := session.Subscribe(eventBufferSize)
	defer unsubscribe()

	// Subscribe before the snapshot so nothing published in between is lost.
	// The client drops message ids it already has.
	snap := session.Snapshot()
	if err := h.writeJSON(ctx, ws, serverFrame{Type: "snapshot", State: &snap}); err != nil {
		slog.Debug("Failed to send snapshot", "error", err, "user_id", userKey)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)

	// Input loop: WebSocket -> session.
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, session, userKey, sessionID)
	}()

	// Output loop: session events -> WebSocket.
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, events, userKey)
	}()

	wg.Wait()
	slog.Info("Chat stream ended", "user_id", userKey, "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// pendingSend is a queued send frame, pinned to the chat it was typed in.
type pendingSend struct {
	epoch uint64
	text  string
}

// sendWorker delivers queued sends one at a time so the transcript keeps
// frame order.
func (h *WebSocketHandler) sendWorker(ctx context.Context, ws *websocket.Conn, session *miniapp.Session, queue <-chan pendingSend) {
	for p := range queue {
		if ctx.Err() != nil {
			continue
		}
		if _, err := session.SendIn(ctx, p.epoch, p.text); err != nil {
			h.writeError(ctx, ws, err.Error())
		}
	}
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, session *miniapp.Session, userKey, sessionID string) {
	// Replies arrive as events from the worker; reads continue so back and
	// select can interrupt a slow reply.
	queue := make(chan pendingSend, sendQueueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sendWorker(ctx, ws, session, queue)
	}()
	defer func() {
		close(queue)
		<-done
	}()

	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed", "user_id", userKey)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userKey)
			}
			return
		}
		session.Touch()

		var msg clientFrame
		if err := json.Unmarshal(message, &msg); err != nil {
			h.writeError(ctx, ws, "invalid frame")
			continue
		}

		switch msg.Type {
		case "send":
			if h.limiter != nil && !h.limiter.Allow(userKey) {
				h.writeError(ctx, ws, "rate limit exceeded")
				continue
			}
			select {
			case queue <- pendingSend{epoch: session.Epoch(), text: msg.Text}:
			default:
				h.writeError(ctx, ws, "too many pending messages")
			}
		case "select":
			if _, err := session.Select(msg.Agent); err != nil {
				h.writeError(ctx, ws, err.Error())
				continue
			}
			slog.Info("Agent selected", "user_id", userKey, "session_id", sessionID, "agent", msg.Agent)
		case "back":
			session.Back()
		case "ping":
			if err := h.writeJSON(ctx, ws, serverFrame{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			h.writeError(ctx, ws, "unknown frame type")
		}
	}
}

func (h *WebSocketHandler) outputLoop(ctx context.Context, ws *websocket.Conn, events <-chan miniapp.Event, userKey string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.writeJSON(ctx, ws, ev); err != nil {
				if ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err, "user_id", userKey)
				}
				return
			}
		}
	}
}

func (h *WebSocketHandler) writeError(ctx context.Context, ws *websocket.Conn, msg string) {
	if err := h.writeJSON(ctx, ws, serverFrame{Type: "error", Error: msg}); err != nil {
		slog.Debug("Failed to send error frame", "error", err)
	}
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
