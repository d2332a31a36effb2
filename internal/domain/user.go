// Package domain contains core domain types for the Tiny Agents application.
package domain

import (
	"time"
)

// User is a Telegram user known to the credits ledger.
type User struct {
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username"`
	Credits    int       `json:"credits"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasCredits returns true if the user can spend at least one credit.
func (u *User) HasCredits() bool {
	return u.Credits > 0
}
