// Package miniapp holds the server-side view-model of the Mini App: which
// panel is visible, the selected agent, and the chat transcript.
package miniapp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/tinyagents/internal/agent"
	"github.com/ashureev/tinyagents/internal/catalog"
	"github.com/ashureev/tinyagents/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrUnknownAgent is returned when selecting a key that is not in the catalog.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrNoAgent is returned when sending while the catalog view is shown.
	ErrNoAgent = errors.New("no agent selected")
)

// View is one of the two mutually exclusive panels.
type View string

const (
	// ViewCatalog shows the agent grid.
	ViewCatalog View = "catalog"
	// ViewChat shows the conversation with the current agent.
	ViewChat View = "chat"
)

// Replier produces agent replies. *agent.Service satisfies it.
type Replier interface {
	Reply(ctx context.Context, req agent.ChatRequest) agent.ChatResponse
}

// Snapshot is a copy of the session state suitable for rendering.
type Snapshot struct {
	View     View             `json:"view"`
	Agent    string           `json:"agent,omitempty"`
	Title    string           `json:"title,omitempty"`
	Busy     bool             `json:"busy"`
	Messages []domain.Message `json:"messages"`
}

// Session is the view-model for one user tab.
//
// Sends are serialized by sendMu. All state, including event publication,
// is guarded by mu so subscribers observe events in the order they happen.
type Session struct {
	userKey   string
	sessionID string
	catalog   *catalog.Catalog
	replier   Replier

	sendMu sync.Mutex

	mu         sync.Mutex
	view       View
	agent      string
	epoch      uint64
	transcript []domain.Message
	busy       bool
	lastSeen   time.Time
	subs       map[int]chan Event
	nextSub    int
}

// NewSession creates a session showing the catalog.
func NewSession(userKey, sessionID string, cat *catalog.Catalog, replier Replier) *Session {
	return &Session{
		userKey:   userKey,
		sessionID: sessionID,
		catalog:   cat,
		replier:   replier,
		view:      ViewCatalog,
		lastSeen:  time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Select switches to the chat view for agentKey with an empty transcript.
func (s *Session) Select(agentKey string) (Snapshot, error) {
	if _, ok := s.catalog.Lookup(agentKey); !ok {
		return Snapshot{}, ErrUnknownAgent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(ViewChat, agentKey)
	return s.snapshotLocked(), nil
}

// Back returns to the catalog view, dropping the transcript and current agent.
func (s *Session) Back() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(ViewCatalog, "")
	return s.snapshotLocked()
}

// Send submits a user message and returns the transcript entries it appended.
// Empty or whitespace-only text is ignored: no entries, no error, no events.
// If the user leaves or re-selects while the reply is being produced, the
// reply is dropped and nothing is returned, since the reset already removed
// the user entry from the transcript.
func (s *Session) Send(ctx context.Context, text string) ([]domain.Message, error) {
	return s.send(ctx, text, false, 0)
}

// SendIn is Send bound to the chat identified by epoch. Text aimed at a chat
// the user has already left is dropped.
func (s *Session) SendIn(ctx context.Context, epoch uint64, text string) ([]domain.Message, error) {
	return s.send(ctx, text, true, epoch)
}

// Epoch identifies the current chat. It changes on every Select and Back.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Session) send(ctx context.Context, text string, pinned bool, want uint64) ([]domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if pinned && s.epoch != want {
		s.mu.Unlock()
		return nil, nil
	}
	if s.view != ViewChat {
		s.mu.Unlock()
		return nil, ErrNoAgent
	}
	agentKey := s.agent
	epoch := s.epoch
	userMsg := s.appendLocked(text, domain.SenderUser)
	s.setBusyLocked(true)
	s.mu.Unlock()

	resp := s.replier.Reply(ctx, agent.ChatRequest{
		Agent:     agentKey,
		Message:   text,
		UserKey:   s.userKey,
		SessionID: s.sessionID,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// The reset already cleared the busy indicator.
		return nil, nil
	}
	s.setBusyLocked(false)
	botMsg := s.appendLocked(resp.Response, domain.SenderBot)
	return []domain.Message{userMsg, botMsg}, nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// Subscribe returns a channel of session events and a func that releases it.
// Slow subscribers lose events once their buffer is full.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
			s.mu.Unlock()
		})
	}
}

// idleSince reports whether the session can be evicted: no subscribers, no
// reply in flight, and no activity since cutoff.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) == 0 && !s.busy && s.lastSeen.Before(cutoff)
}

// close drops every subscriber.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Session) resetLocked(view View, agentKey string) {
	s.epoch++
	s.view = view
	s.agent = agentKey
	s.transcript = nil
	s.busy = false
	s.lastSeen = time.Now()
	snap := s.snapshotLocked()
	s.publishLocked(Event{Type: EventReset, State: &snap})
}

func (s *Session) appendLocked(text string, sender domain.Sender) domain.Message {
	msg := domain.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		CreatedAt: time.Now(),
	}
	s.transcript = append(s.transcript, msg)
	s.lastSeen = msg.CreatedAt
	s.publishLocked(Event{Type: EventMessage, Message: &msg})
	return msg
}

func (s *Session) setBusyLocked(busy bool) {
	s.busy = busy
	s.publishLocked(Event{Type: EventBusy, Busy: busy})
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		View:     s.view,
		Agent:    s.agent,
		Busy:     s.busy,
		Messages: make([]domain.Message, len(s.transcript)),
	}
	copy(snap.Messages, s.transcript)
	if s.agent != "" {
		snap.Title = catalog.DisplayName(s.agent)
	}
	return snap
}
