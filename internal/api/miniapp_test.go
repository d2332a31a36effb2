//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/tinyagents/internal/agent"
	"github.com/ashureev/tinyagents/internal/catalog"
	"github.com/ashureev/tinyagents/internal/credits"
	"github.com/ashureev/tinyagents/internal/domain"
	"github.com/ashureev/tinyagents/internal/identity"
	"github.com/ashureev/tinyagents/internal/miniapp"
	"github.com/go-chi/chi/v5"
)

type fakeRepo struct {
	mu      sync.Mutex
	users   map[int64]*domain.User
	pingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[int64]*domain.User)}
}

func (f *fakeRepo) GetUser(_ context.Context, id int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[id]
	if user == nil {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) GetOrCreateUser(_ context.Context, id int64, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[id]
	if user == nil {
		user = &domain.User{TelegramID: id, Username: username}
		f.users[id] = user
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) DecrementCredits(context.Context, int64) (bool, error) { return false, nil }
func (f *fakeRepo) Ping(context.Context) error                            { return f.pingErr }
func (f *fakeRepo) Close() error                                          { return nil }

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type testIdentity struct {
	userKey    string
	telegramID int64
	sessionID  string
}

func newTestRouter(t *testing.T, repo *fakeRepo, limiter Limiter, id testIdentity) *chi.Mux {
	t.Helper()
	mgr := miniapp.NewManager(catalog.Default(), agent.NewPlaceholderService())
	base := NewHandler(mgr, credits.NewService(repo, "TinyAgents_bot"), limiter)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := identity.WithIdentity(req.Context(), id.userKey, id.telegramID, "ada", id.sessionID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewMiniAppHandler(base).RegisterRoutes(r)
	NewHealthHandler(repo).RegisterHealth(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestListAgents(t *testing.T) {
	r := newTestRouter(t, newFakeRepo(), nil, testIdentity{userKey: "anon_x"})

	rr := do(t, r, http.MethodGet, "/api/agents", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var got struct {
		Agents []catalog.Card `json:"agents"`
	}
	decode(t, rr, &got)
	if len(got.Agents) != 10 {
		t.Fatalf("Expected 10 agents, got %d", len(got.Agents))
	}
	if got.Agents[0].Key != "meme_persona" || got.Agents[0].Label != "MEME PERSONA" {
		t.Errorf("Unexpected first card %+v", got.Agents[0])
	}
}

func TestSessionFlow(t *testing.T) {
	r := newTestRouter(t, newFakeRepo(), nil, testIdentity{userKey: "anon_x", sessionID: "tab"})

	var snap miniapp.Snapshot
	rr := do(t, r, http.MethodGet, "/api/session", "")
	decode(t, rr, &snap)
	if snap.View != miniapp.ViewCatalog || len(snap.Messages) != 0 {
		t.Fatalf("Expected empty catalog view, got %+v", snap)
	}

	rr = do(t, r, http.MethodPost, "/api/session/select", `{"agent":"seo_optimizer"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &snap)
	if snap.View != miniapp.ViewChat || snap.Title != "SEO OPTIMIZER" {
		t.Fatalf("Unexpected snapshot %+v", snap)
	}

	rr = do(t, r, http.MethodPost, "/api/session/messages", `{"text":"  running shoes  "}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var sent struct {
		Messages []domain.Message `json:"messages"`
	}
	decode(t, rr, &sent)
	if len(sent.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(sent.Messages))
	}
	if sent.Messages[0].Text != "running shoes" || sent.Messages[0].Sender != domain.SenderUser {
		t.Errorf("Unexpected user message %+v", sent.Messages[0])
	}
	if want := agent.PlaceholderReply("seo_optimizer", "running shoes"); sent.Messages[1].Text != want {
		t.Errorf("Expected reply %q, got %q", want, sent.Messages[1].Text)
	}

	decode(t, do(t, r, http.MethodGet, "/api/session", ""), &snap)
	if len(snap.Messages) != 2 || snap.Busy {
		t.Errorf("Expected 2 messages and not busy, got %+v", snap)
	}

	decode(t, do(t, r, http.MethodPost, "/api/session/back", ""), &snap)
	if snap.View != miniapp.ViewCatalog || snap.Agent != "" || len(snap.Messages) != 0 {
		t.Errorf("Expected reset catalog view, got %+v", snap)
	}
}

func TestSelectUnknownAgent(t *testing.T) {
	r := newTestRouter(t, newFakeRepo(), nil, testIdentity{userKey: "anon_x"})

	rr := do(t, r, http.MethodPost, "/api/session/select", `{"agent":"nope"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}

func TestSelectBadBody(t *testing.T) {
	r := newTestRouter(t, newFakeRepo(), nil, testIdentity{userKey: "anon_x"})

	rr := do(t, r, http.MethodPost, "/api/session/select", `{"agent":`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestSendWithoutAgent(t *testing.T) {
	r := newTestRouter(t, newFakeRepo(), nil, testIdentity{userKey: "anon_x"})

	rr := do(t, r, http.MethodPost, "/api/session/messages", `{"text":"hello"}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", rr.Code)
	}
}

func TestSendWhitespaceOnly(t *testing.T) {
	r := newTestRouter(t, newFakeRepo(), nil, testIdentity{userKey: "anon_x"})
	do(t, r, http.MethodPost, "/api/session/select", `{"agent":"meme_persona"}`)

	rr := do(t, r, http.MethodPost, "/api/session/messages", `{"text":"   "}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"messages":[]`) {
		t.Errorf("Expected empty list, got %s", rr.Body.String())
	}
}

func TestSendRateLimited(t *testing.T) {
	r := newTestRouter(t, newFakeRepo(), denyAll{}, testIdentity{userKey: "anon_x"})
	do(t, r, http.MethodPost, "/api/session/select", `{"agent":"meme_persona"}`)

	rr := do(t, r, http.MethodPost, "/api/session/messages", `{"text":"hi"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}
	if !strings.Contains(rr.Body.String(), "rate limit exceeded") {
		t.Errorf("Unexpected body %s", rr.Body.String())
	}
}

func TestRateLimitOnlyCoversSends(t *testing.T) {
	r := newTestRouter(t, newFakeRepo(), denyAll{}, testIdentity{userKey: "anon_x"})

	if rr := do(t, r, http.MethodPost, "/api/session/select", `{"agent":"meme_persona"}`); rr.Code != http.StatusOK {
		t.Errorf("Expected select to pass, got %d", rr.Code)
	}
	if rr := do(t, r, http.MethodGet, "/api/session", ""); rr.Code != http.StatusOK {
		t.Errorf("Expected session read to pass, got %d", rr.Code)
	}
}

func TestSessionsAreIsolatedPerTab(t *testing.T) {
	mgr := miniapp.NewManager(catalog.Default(), agent.NewPlaceholderService())
	h := NewMiniAppHandler(NewHandler(mgr, credits.NewService(newFakeRepo(), "TinyAgents_bot"), nil))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"agent":"meme_persona"}`))
	req = req.WithContext(identity.WithIdentity(req.Context(), "anon_x", 0, "", "tab-a"))
	h.SelectAgent(httptest.NewRecorder(), req)

	if got := mgr.Get("anon_x", "tab-a").Snapshot().View; got != miniapp.ViewChat {
		t.Errorf("Expected tab-a in chat, got %s", got)
	}
	if got := mgr.Get("anon_x", "tab-b").Snapshot().View; got != miniapp.ViewCatalog {
		t.Errorf("Expected tab-b in catalog, got %s", got)
	}
}

func TestCreditsWithoutUser(t *testing.T) {
	repo := newFakeRepo()
	r := newTestRouter(t, repo, nil, testIdentity{userKey: "anon_x"})

	var got map[string]int
	decode(t, do(t, r, http.MethodGet, "/api/credits", ""), &got)
	if got["credits"] != 0 {
		t.Errorf("Expected 0 credits, got %d", got["credits"])
	}
	if len(repo.users) != 0 {
		t.Error("Anonymous callers must not touch the ledger")
	}

	var link map[string]string
	decode(t, do(t, r, http.MethodGet, "/api/credits/buy", ""), &link)
	if link["url"] != "" {
		t.Errorf("Expected empty buy link, got %q", link["url"])
	}
}

func TestCreditsWithTelegramUser(t *testing.T) {
	repo := newFakeRepo()
	r := newTestRouter(t, repo, nil, testIdentity{userKey: "tg_42", telegramID: 42})

	var got map[string]int
	decode(t, do(t, r, http.MethodGet, "/api/credits", ""), &got)
	if got["credits"] != 0 {
		t.Errorf("Expected 0 credits, got %d", got["credits"])
	}
	if repo.users[42] == nil {
		t.Error("Expected ledger row for telegram user")
	}

	var link map[string]string
	decode(t, do(t, r, http.MethodGet, "/api/credits/buy", ""), &link)
	if link["url"] != "https://t.me/TinyAgents_bot?start=buy" {
		t.Errorf("Unexpected buy link %q", link["url"])
	}

	var me map[string]interface{}
	decode(t, do(t, r, http.MethodGet, "/api/me", ""), &me)
	if me["has_user"] != true || me["user_key"] != "tg_42" {
		t.Errorf("Unexpected me %+v", me)
	}
}

func TestHealth(t *testing.T) {
	repo := newFakeRepo()
	r := newTestRouter(t, repo, nil, testIdentity{})

	if rr := do(t, r, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rr.Code)
	}

	repo.pingErr = errors.New("disk gone")
	rr := do(t, r, http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"database":"unreachable"`) {
		t.Errorf("Unexpected body %s", rr.Body.String())
	}
}
