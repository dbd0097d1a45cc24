// Package sqlite implements store.Repository on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pairsync/pairsync-server/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed repository.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu    sync.RWMutex
	hooks store.Hooks
}

var _ store.Repository = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
// Pragmas go in the DSN so every pooled connection gets them.
func Open(path string, logger *slog.Logger) (*Store, error) {
	pragmas := []string{
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"foreign_keys(1)",
		"busy_timeout(5000)",
	}
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	if logger != nil {
		logger.Info("Repository opened", "path", path)
	}

	return &Store{
		db:     db,
		logger: logger,
		hooks:  store.NoopHooks{},
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetHooks registers the lifecycle subscriber.
func (s *Store) SetHooks(h store.Hooks) {
	if h == nil {
		h = store.NoopHooks{}
	}
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

func (s *Store) lifecycle() store.Hooks {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// uniqueSlug returns base, or base-2, base-3, ... whichever is free in scope.
func uniqueSlug(ctx context.Context, tx *sql.Tx, table, scopeCol, scope, base string) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+table+` WHERE `+scopeCol+` = ? AND slug = ?`,
			scope, candidate).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if exists == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// formatTime formats a time.Time to RFC3339Nano for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a RFC3339Nano string back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
