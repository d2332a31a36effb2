// Package credits exposes the user-facing credit balance and the buy link.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/ashureev/tinyagents/internal/store"
)

// ErrInsufficientCredits is returned by Spend when the balance is zero.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Service reads and spends credits from the ledger.
type Service struct {
	repo        store.Repository
	botUsername string
}

// NewService creates a credits service for the given bot.
func NewService(repo store.Repository, botUsername string) *Service {
	return &Service{repo: repo, botUsername: botUsername}
}

// Balance returns the user's balance. A zero telegramID means no user is
// known and yields 0 without touching the ledger. Ledger failures also
// degrade to 0; they are logged, not returned.
func (s *Service) Balance(ctx context.Context, telegramID int64, username string) int {
	if telegramID == 0 {
		return 0
	}
	user, err := s.repo.GetOrCreateUser(ctx, telegramID, username)
	if err != nil {
		slog.Error("Failed to load credits", "telegram_id", telegramID, "error", err)
		return 0
	}
	return user.Credits
}

// Spend takes one credit from the user and returns the remaining balance.
func (s *Service) Spend(ctx context.Context, telegramID int64, username string) (int, error) {
	user, err := s.repo.GetOrCreateUser(ctx, telegramID, username)
	if err != nil {
		return 0, fmt.Errorf("load user: %w", err)
	}
	if !user.HasCredits() {
		return 0, ErrInsufficientCredits
	}
	spent, err := s.repo.DecrementCredits(ctx, telegramID)
	if err != nil {
		return 0, fmt.Errorf("spend credit: %w", err)
	}
	if !spent {
		return 0, ErrInsufficientCredits
	}
	return user.Credits - 1, nil
}

// BuyLink returns the deep link that starts the purchase flow in the bot.
// It is empty when no user is known.
func (s *Service) BuyLink(hasUser bool) string {
	if !hasUser {
		return ""
	}
	return DeepLink(s.botUsername, "buy")
}

// DeepLink builds a t.me start link for the bot.
func DeepLink(botUsername, start string) string {
	u := url.URL{
		Scheme:   "https",
		Host:     "t.me",
		Path:     "/" + botUsername,
		RawQuery: url.Values{"start": {start}}.Encode(),
	}
	return u.String()
}
