package miniapp

import (
	"log/slog"

	"github.com/ashureev/tinyagents/internal/domain"
)

// EventType categorizes session events.
type EventType string

const (
	// EventMessage carries a newly appended transcript entry.
	EventMessage EventType = "message"
	// EventBusy toggles the busy indicator.
	EventBusy EventType = "busy"
	// EventReset carries the full state after Select or Back.
	EventReset EventType = "reset"
)

// Event is published to subscribers whenever the session changes.
type Event struct {
	Type    EventType       `json:"type"`
	Message *domain.Message `json:"message,omitempty"`
	Busy    bool            `json:"busy"`
	State   *Snapshot       `json:"state,omitempty"`
}

func (s *Session) publishLocked(ev Event) {
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("Dropping session event for slow subscriber",
				"user_id", s.userKey,
				"session_id", s.sessionID,
				"subscriber", id,
				"type", ev.Type,
			)
		}
	}
}
