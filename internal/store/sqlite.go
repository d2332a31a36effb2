package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/tinyagents/internal/domain"
	"github.com/ashureev/tinyagents/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	maxRetries     = 3
	retryBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency. Pragmas go through
	// the DSN so every pooled connection gets them.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		telegram_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by Telegram ID.
func (s *SQLiteStore) GetUser(ctx context.Context, telegramID int64) (*domain.User, error) {
	query := `
		SELECT telegram_id, username, credits, created_at, updated_at
		FROM users WHERE telegram_id = ?`

	row := s.db.QueryRowContext(ctx, query, telegramID)

	var user domain.User
	var createdAt, updatedAt int64

	err := row.Scan(&user.TelegramID, &user.Username, &user.Credits, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// GetOrCreateUser returns the user, inserting a zero-credit row if missing.
// An existing username is refreshed when a non-empty one is supplied.
func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*domain.User, error) {
	query := `
	INSERT INTO users (telegram_id, username, credits, created_at, updated_at)
	VALUES (?, ?, 0, ?, ?)
	ON CONFLICT(telegram_id) DO UPDATE SET
		username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
		updated_at = CASE WHEN excluded.username != '' AND excluded.username != users.username
			THEN excluded.updated_at ELSE users.updated_at END`

	now := time.Now().Unix()
	err := shared.RetryOnConflict(ctx, "get_or_create_user", maxRetries, retryBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query, telegramID, username, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	user, err := s.GetUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d missing after upsert", telegramID)
	}
	return user, nil
}

// DecrementCredits spends one credit if the balance is positive.
func (s *SQLiteStore) DecrementCredits(ctx context.Context, telegramID int64) (bool, error) {
	query := `UPDATE users SET credits = credits - 1, updated_at = ? WHERE telegram_id = ? AND credits > 0`

	var rows int64
	err := shared.RetryOnConflict(ctx, "decrement_credits", maxRetries, retryBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, query, time.Now().Unix(), telegramID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("decrement credits: %w", err)
	}
	return rows == 1, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
