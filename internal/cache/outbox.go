package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Outbox kinds.
const (
	KindPortionDecrement = "portion_decrement"
	KindPortionSnapshot  = "portion_snapshot"
	KindOrderHistory     = "order_history"
)

// PendingWrite is a queued remote write.
type PendingWrite struct {
	ID        int64
	Kind      string
	Payload   []byte
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// Enqueue appends a pending write to the end of the outbox.
func (s *Store) Enqueue(ctx context.Context, kind string, payload []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (kind, payload, created_at) VALUES (?, ?, ?)`,
		kind, payload, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s: %w", kind, err)
	}
	return res.LastInsertId()
}

// Pending returns up to limit queued writes, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]PendingWrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload, attempts, last_error, created_at
		FROM outbox
		ORDER BY id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var writes []PendingWrite
	for rows.Next() {
		var (
			w         PendingWrite
			lastError sql.NullString
			createdAt string
		)
		if err := rows.Scan(&w.ID, &w.Kind, &w.Payload, &w.Attempts, &lastError, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		w.LastError = lastError.String
		if w.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse outbox timestamp: %w", err)
		}
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

// Ack removes a replayed write.
func (s *Store) Ack(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to ack outbox entry %d: %w", id, err)
	}
	return nil
}

// Fail records a failed replay attempt.
func (s *Store) Fail(ctx context.Context, id int64, cause error) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		cause.Error(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record outbox failure %d: %w", id, err)
	}
	return nil
}

// PendingCount is the number of writes still queued.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}

// DeadWrite is an outbox entry moved aside because it can never be replayed.
type DeadWrite struct {
	PendingWrite
	BuriedAt time.Time
}

// Bury moves a write from the outbox to the dead-letter table so the writes
// queued after it can proceed. The payload is kept for inspection.
func (s *Store) Bury(ctx context.Context, id int64, cause error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin bury of outbox entry %d: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_dead (id, kind, payload, attempts, last_error, created_at, buried_at)
		SELECT id, kind, payload, attempts + 1, ?, created_at, ?
		FROM outbox
		WHERE id = ?
	`, cause.Error(), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to bury outbox entry %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to bury outbox entry %d: %w", id, ErrMiss)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to bury outbox entry %d: %w", id, err)
	}
	return tx.Commit()
}

// Dead returns up to limit buried writes, oldest first.
func (s *Store) Dead(ctx context.Context, limit int) ([]DeadWrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload, attempts, last_error, created_at, buried_at
		FROM outbox_dead
		ORDER BY id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var writes []DeadWrite
	for rows.Next() {
		var (
			w                   DeadWrite
			createdAt, buriedAt string
		)
		if err := rows.Scan(&w.ID, &w.Kind, &w.Payload, &w.Attempts, &w.LastError, &createdAt, &buriedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		if w.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse dead letter timestamp: %w", err)
		}
		if w.BuriedAt, err = time.Parse(time.RFC3339Nano, buriedAt); err != nil {
			return nil, fmt.Errorf("failed to parse dead letter timestamp: %w", err)
		}
		writes = append(writes, w)
	}
	return writes, rows.Err()
}
