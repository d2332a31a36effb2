package domain

import (
	"time"
)

// Sender identifies who authored a transcript entry.
type Sender string

const (
	// SenderUser marks messages typed by the user.
	SenderUser Sender = "user"
	// SenderBot marks agent replies.
	SenderBot Sender = "bot"
)

// Message is a single transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}
