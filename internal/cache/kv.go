package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned when a key has never been written.
var ErrMiss = errors.New("cache miss")

// Well-known keys.
const (
	KeyCounter       = "counter"
	KeyOfflinePrefix = "offline_prefix"
	KeyMenu          = "menu"
)

// PortionsKey is the key of the cached portion snapshot of one business day.
func PortionsKey(businessDay string) string {
	return "portions:" + businessDay
}

// ReportKey is the key of the cached report aggregation of one event.
func ReportKey(eventID string) string {
	return "report:" + eventID
}

// Entry is a cached value with the time it was written.
type Entry struct {
	Value     []byte
	UpdatedAt time.Time
}

func (s *Store) Get(ctx context.Context, key string) (Entry, error) {
	var (
		entry     Entry
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM kv WHERE key = ?`, key,
	).Scan(&entry.Value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrMiss, key)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read %s: %w", key, err)
	}

	entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to parse timestamp of %s: %w", key, err)
	}
	return entry, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the cached value of key into v and returns when it was written.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (time.Time, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	if err := json.Unmarshal(entry.Value, v); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return entry.UpdatedAt, nil
}

func (s *Store) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}
