// Package store provides sqlite-backed persistence: the HTTP response cache,
// daily API quotas, and small preferences (language, TTS mode).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"walktale/pkg/db"
)

// Cacher defines the caching interface used by the request client.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// QuotaStore enforces rolling daily budgets for costly API calls.
type QuotaStore interface {
	// Consume attempts to spend one unit of the named quota. Returns the
	// remaining budget and false when the budget is exhausted.
	Consume(ctx context.Context, name string, limit int, window time.Duration) (remaining int, ok bool, err error)
	// Remaining reports the budget left without consuming.
	Remaining(ctx context.Context, name string, limit int, window time.Duration) (int, error)
}

// PrefStore persists small key/value preferences.
type PrefStore interface {
	GetPref(ctx context.Context, key string) (string, error)
	SetPref(ctx context.Context, key, value string) error
}

// Store implements Cacher, QuotaStore and PrefStore on sqlite.
type Store struct {
	db *db.DB
}

// New creates a Store on an initialized database.
func New(d *db.DB) *Store {
	return &Store{db: d}
}

// GetCache returns the cached value for key, if present.
func (s *Store) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cache WHERE key = ?", key).Scan(&val)
	if err != nil {
		return nil, false
	}
	return val, true
}

// SetCache stores val under key, replacing any previous value.
func (s *Store) SetCache(ctx context.Context, key string, val []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cache (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP) ON CONFLICT(key) DO UPDATE SET value=excluded.value, created_at=CURRENT_TIMESTAMP",
		key, val)
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Consume spends one unit of the named quota inside its rolling window.
func (s *Store) Consume(ctx context.Context, name string, limit int, window time.Duration) (int, bool, error) {
	count, resetAt, err := s.loadQuota(ctx, name)
	if err != nil {
		return 0, false, err
	}

	now := time.Now().UTC()
	if now.After(resetAt) {
		count = 0
		resetAt = now.Add(window)
	}
	if count >= limit {
		return 0, false, nil
	}

	count++
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO quota (name, count, reset_at) VALUES (?, ?, ?) ON CONFLICT(name) DO UPDATE SET count=excluded.count, reset_at=excluded.reset_at",
		name, count, resetAt.Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, false, fmt.Errorf("failed to update quota: %w", err)
	}
	return limit - count, true, nil
}

// Remaining reports the budget left without consuming.
func (s *Store) Remaining(ctx context.Context, name string, limit int, window time.Duration) (int, error) {
	count, resetAt, err := s.loadQuota(ctx, name)
	if err != nil {
		return 0, err
	}
	if time.Now().UTC().After(resetAt) {
		return limit, nil
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *Store) loadQuota(ctx context.Context, name string) (int, time.Time, error) {
	var count int
	var resetStr string
	err := s.db.QueryRowContext(ctx, "SELECT count, reset_at FROM quota WHERE name = ?", name).Scan(&count, &resetStr)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to read quota: %w", err)
	}
	resetAt, err := time.Parse("2006-01-02 15:04:05", resetStr)
	if err != nil {
		// A corrupt timestamp resets the window rather than wedging the quota.
		return 0, time.Time{}, nil
	}
	return count, resetAt, nil
}

// GetPref returns the preference value for key, or empty string if unset.
func (s *Store) GetPref(ctx context.Context, key string) (string, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM prefs WHERE key = ?", key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read pref: %w", err)
	}
	return val, nil
}

// SetPref stores a preference value.
func (s *Store) SetPref(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO prefs (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write pref: %w", err)
	}
	return nil
}
