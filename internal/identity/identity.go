// Package identity resolves who is calling: a Telegram user from Mini App
// init data, or an anonymous per-device id outside Telegram.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/tinyagents/internal/store"
	"github.com/ashureev/tinyagents/internal/telegram"
)

const (
	AnonCookieName        = "ta_anon_id"
	SessionHeaderName     = "X-TA-Session-ID"
	InitDataHeaderName    = "X-Telegram-Init-Data"
	InitDataQueryParam    = "tgWebAppData"
	DefaultSessionIDValue = "default"
	anonCookieMaxAge      = 30 * 24 * time.Hour
)

type contextKey int

const (
	userKeyKey contextKey = iota
	telegramIDKey
	usernameKey
	sessionIDKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// Options configures the identity middleware.
type Options struct {
	// BotToken verifies init data. Empty reads init data unverified.
	BotToken string
	// MaxAge bounds auth_date of verified init data. Zero disables the check.
	MaxAge time.Duration
	// Repo, when set, gets a ledger row for every Telegram user seen.
	Repo  store.Repository
	IsDev bool
	Now   func() time.Time
}

// UserKeyFromContext returns the caller's key: tg_<id> or an anonymous id.
func UserKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userKeyKey).(string); ok {
		return v
	}
	return ""
}

// TelegramUserIDFromContext returns the Telegram user id, or 0 when the
// host supplied none.
func TelegramUserIDFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(telegramIDKey).(int64); ok {
		return v
	}
	return 0
}

// UsernameFromContext extracts the Telegram username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WithIdentity returns a context carrying the given identity. Handlers read it
// back with the *FromContext getters.
func WithIdentity(ctx context.Context, userKey string, telegramID int64, username, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userKeyKey, userKey)
	ctx = context.WithValue(ctx, telegramIDKey, telegramID)
	ctx = context.WithValue(ctx, usernameKey, username)
	return context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
}

// TelegramUserKey is the user key of a Telegram user.
func TelegramUserKey(id int64) string {
	return "tg_" + strconv.FormatInt(id, 10)
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	id := ""
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		id = c.Value
	} else {
		var err error
		if id, err = generateAnonID(); err != nil {
			return "", err
		}
	}

	// Refresh on every request so active devices keep their id.
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

func initDataFromRequest(r *http.Request) string {
	if raw := r.Header.Get(InitDataHeaderName); raw != "" {
		return raw
	}
	return r.URL.Query().Get(InitDataQueryParam)
}

// telegramUser returns the user from the request's init data. Missing or
// invalid data yields nil.
func telegramUser(r *http.Request, opts Options) *telegram.WebAppUser {
	raw := initDataFromRequest(r)
	if raw == "" {
		return nil
	}

	var (
		data *telegram.InitData
		err  error
	)
	if opts.BotToken != "" {
		data, err = telegram.ValidateInitData(raw, opts.BotToken, opts.MaxAge, opts.Now())
	} else {
		data, err = telegram.ParseInitData(raw)
	}
	if err != nil {
		slog.Warn("Ignoring init data", "error", err)
		return nil
	}
	return data.User
}

// Middleware injects the caller identity and per-request session ID.
func Middleware(opts Options) func(http.Handler) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				userKey    string
				telegramID int64
				username   string
			)

			if u := telegramUser(r, opts); u != nil {
				telegramID = u.ID
				username = u.Username
				userKey = TelegramUserKey(u.ID)
				if opts.Repo != nil {
					if _, err := opts.Repo.GetOrCreateUser(r.Context(), telegramID, username); err != nil {
						slog.Error("Failed to initialize user", "user_id", userKey, "error", err)
					}
				}
			} else {
				anonID, err := getOrCreateAnonID(w, r, opts.IsDev)
				if err != nil {
					http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
					return
				}
				userKey = anonID
			}

			ctx := WithIdentity(r.Context(), userKey, telegramID, username, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
