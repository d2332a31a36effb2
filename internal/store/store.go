// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/tinyagents/internal/domain"
)

// Repository defines the interface for persisting users and their credits.
type Repository interface {
	// GetUser retrieves a user by Telegram ID. Returns nil, nil if not found.
	GetUser(ctx context.Context, telegramID int64) (*domain.User, error)

	// GetOrCreateUser returns the user, creating it with zero credits if missing.
	GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*domain.User, error)

	// DecrementCredits spends one credit if the balance is positive.
	// Reports whether a credit was spent.
	DecrementCredits(ctx context.Context, telegramID int64) (bool, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
