package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/tinyagents/internal/domain"
	"github.com/ashureev/tinyagents/internal/identity"
	"github.com/ashureev/tinyagents/internal/middleware"
	"github.com/ashureev/tinyagents/internal/miniapp"
	"github.com/go-chi/chi/v5"
)

// MiniAppHandler serves the catalog, session and credits endpoints.
type MiniAppHandler struct {
	*Handler
}

// NewMiniAppHandler creates a new Mini App handler.
func NewMiniAppHandler(base *Handler) *MiniAppHandler {
	return &MiniAppHandler{Handler: base}
}

// RegisterRoutes registers Mini App routes.
func (h *MiniAppHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/agents", h.ListAgents)
		r.Get("/me", h.GetMe)
		r.Get("/credits", h.GetCredits)
		r.Get("/credits/buy", h.GetBuyLink)
		r.Get("/session", h.GetSession)
		r.Post("/session/select", h.SelectAgent)
		r.Post("/session/back", h.Back)
		r.With(h.rateLimit).Post("/session/messages", h.SendMessage)
	})
}

// rateLimit throttles per user key, not per tab.
func (h *MiniAppHandler) rateLimit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return middleware.RateLimit(h.limiter, func(r *http.Request) string {
		return identity.UserKeyFromContext(r.Context())
	})(next)
}

// ListAgents returns the catalog cards in display order.
func (h *MiniAppHandler) ListAgents(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"agents": h.sessions.Catalog().Cards(),
	})
}

// GetMe returns who the caller is.
func (h *MiniAppHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	telegramID := identity.TelegramUserIDFromContext(ctx)
	JSON(w, http.StatusOK, map[string]interface{}{
		"user_key":         identity.UserKeyFromContext(ctx),
		"telegram_user_id": telegramID,
		"username":         identity.UsernameFromContext(ctx),
		"session_id":       identity.SessionIDFromContext(ctx),
		"has_user":         telegramID != 0,
	})
}

// GetCredits returns the caller's balance. Callers without a Telegram
// identity always see 0.
func (h *MiniAppHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	balance := h.credits.Balance(ctx, identity.TelegramUserIDFromContext(ctx), identity.UsernameFromContext(ctx))
	JSON(w, http.StatusOK, map[string]int{"credits": balance})
}

// GetBuyLink returns the bot deep link that starts a purchase. The url is
// empty when there is no Telegram user to buy for.
func (h *MiniAppHandler) GetBuyLink(w http.ResponseWriter, r *http.Request) {
	hasUser := identity.TelegramUserIDFromContext(r.Context()) != 0
	JSON(w, http.StatusOK, map[string]string{"url": h.credits.BuyLink(hasUser)})
}

// GetSession returns the caller's current view state.
func (h *MiniAppHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.session(r).Snapshot())
}

type selectRequest struct {
	Agent string `json:"agent"`
}

// SelectAgent opens the chat view for an agent.
func (h *MiniAppHandler) SelectAgent(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.session(r).Select(req.Agent)
	if errors.Is(err, miniapp.ErrUnknownAgent) {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to select agent")
		return
	}

	slog.Info("Agent selected",
		"user_id", identity.UserKeyFromContext(r.Context()),
		"session_id", identity.SessionIDFromContext(r.Context()),
		"agent", req.Agent)
	JSON(w, http.StatusOK, snap)
}

// Back returns to the catalog view and discards the transcript.
func (h *MiniAppHandler) Back(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.session(r).Back())
}

type sendRequest struct {
	Text string `json:"text"`
}

// SendMessage appends a user message and the agent's reply.
// Whitespace-only text is accepted and appends nothing.
func (h *MiniAppHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.session(r).Send(r.Context(), req.Text)
	if errors.Is(err, miniapp.ErrNoAgent) {
		Error(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.Error("Failed to send message", "user_id", identity.UserKeyFromContext(r.Context()), "error", err)
		Error(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (h *MiniAppHandler) session(r *http.Request) *miniapp.Session {
	ctx := r.Context()
	return h.sessions.Get(identity.UserKeyFromContext(ctx), identity.SessionIDFromContext(ctx))
}
