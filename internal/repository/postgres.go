// Package repository is the remote system of record shared by every till of
// an event: display-number counter, order history and daily portions.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sagra-pos/internal/database"
	"sagra-pos/internal/models"
)

// Repository scopes every query to one event
type Repository struct {
	db      *database.DB
	eventID string
}

func New(db *database.DB, eventID string) *Repository {
	return &Repository{db: db, eventID: eventID}
}

// classify marks data errors (SQLSTATE class 22) and constraint violations
// (class 23) as ErrRejected. Anything else may succeed on retry.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")) {
		return fmt.Errorf("%w: %w", models.ErrRejected, err)
	}
	return err
}

func checkBusinessDay(day string) error {
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return fmt.Errorf("%w: invalid business day %q", models.ErrRejected, day)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// NextOrderNumber atomically increments the event counter and returns the
// value it held before
func (r *Repository) NextOrderNumber(ctx context.Context) (int, error) {
	var value int
	if err := r.db.QueryRow(ctx, database.NextOrderNumberSQL, r.eventID).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to increment order counter: %w", err)
	}
	return value, nil
}

// SetOrderCounter overwrites the event counter
func (r *Repository) SetOrderCounter(ctx context.Context, value int) error {
	if _, err := r.db.Exec(ctx, database.SetOrderCounterSQL, r.eventID, value); err != nil {
		return fmt.Errorf("failed to set order counter: %w", err)
	}
	return nil
}

// AppendHistory stores a confirmed order. Replaying the same record is a no-op.
func (r *Repository) AppendHistory(ctx context.Context, rec models.HistoryRecord) error {
	lines, err := json.Marshal(rec.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode history lines: %w", err)
	}

	var mode *string
	if rec.PaymentMode != "" {
		mode = &rec.PaymentMode
	}

	_, err = r.db.Exec(ctx, database.InsertHistorySQL,
		rec.ID, r.eventID, rec.OrderNumber, rec.Prefix, lines, rec.TotalCents, mode, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert history record %s: %w", rec.ID, classify(err))
	}
	return nil
}

// UpdateHistory rewrites the lines, total and mode of a stored order
func (r *Repository) UpdateHistory(ctx context.Context, rec models.HistoryRecord) error {
	lines, err := json.Marshal(rec.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode history lines: %w", err)
	}

	var mode *string
	if rec.PaymentMode != "" {
		mode = &rec.PaymentMode
	}

	tag, err := r.db.Exec(ctx, database.UpdateHistorySQL, rec.ID, r.eventID, lines, rec.TotalCents, mode)
	if err != nil {
		return fmt.Errorf("failed to update history record %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("history record %s: %w", rec.ID, models.ErrNotFound)
	}
	return nil
}

// ListHistory returns every order of the event, oldest first
func (r *Repository) ListHistory(ctx context.Context) ([]models.HistoryRecord, error) {
	rows, err := r.db.Query(ctx, database.ListHistorySQL, r.eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []models.HistoryRecord
	for rows.Next() {
		var (
			rec   models.HistoryRecord
			lines []byte
			mode  *string
		)
		if err := rows.Scan(&rec.ID, &rec.OrderNumber, &rec.Prefix, &lines, &rec.TotalCents, &mode, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		if err := json.Unmarshal(lines, &rec.Lines); err != nil {
			return nil, fmt.Errorf("failed to decode lines of %s: %w", rec.ID, err)
		}
		if mode != nil {
			rec.PaymentMode = *mode
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// LoadPortions returns the stored counters of a business day, or
// models.ErrNotFound
func (r *Repository) LoadPortions(ctx context.Context, businessDay string) (*models.DailyPortions, error) {
	var (
		portions models.DailyPortions
		items    []byte
	)
	err := r.db.QueryRow(ctx, database.GetDailyPortionsSQL, r.eventID, businessDay).
		Scan(&portions.BusinessDay, &items, &portions.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("portions for %s: %w", businessDay, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portions for %s: %w", businessDay, err)
	}

	if err := json.Unmarshal(items, &portions.Items); err != nil {
		return nil, fmt.Errorf("failed to decode portions for %s: %w", businessDay, err)
	}
	if portions.Items == nil {
		portions.Items = make(map[string]models.PortionCounter)
	}
	return &portions, nil
}

// SavePortions overwrites the counters of a business day
func (r *Repository) SavePortions(ctx context.Context, portions models.DailyPortions) error {
	if err := checkBusinessDay(portions.BusinessDay); err != nil {
		return err
	}
	items, err := json.Marshal(portions.Items)
	if err != nil {
		return fmt.Errorf("failed to encode portions: %w", err)
	}

	if _, err := r.db.Exec(ctx, database.UpsertDailyPortionsSQL, r.eventID, portions.BusinessDay, items); err != nil {
		return fmt.Errorf("failed to save portions for %s: %w", portions.BusinessDay, classify(err))
	}
	return nil
}

// DecrementPortions subtracts sold quantities from the stored counters under
// a row lock, clamping at zero. A missing document is left alone.
func (r *Repository) DecrementPortions(ctx context.Context, dec models.PortionDecrement) error {
	if dec.Empty() {
		return nil
	}
	if err := checkBusinessDay(dec.BusinessDay); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, database.LockDailyPortionsSQL, r.eventID, dec.BusinessDay).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lock portions for %s: %w", dec.BusinessDay, err)
	}

	var items map[string]models.PortionCounter
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("failed to decode portions for %s: %w", dec.BusinessDay, err)
	}

	ApplyDecrement(items, dec)

	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode portions: %w", err)
	}
	if _, err := tx.Exec(ctx, database.UpdateDailyPortionItemsSQL, r.eventID, dec.BusinessDay, encoded); err != nil {
		return fmt.Errorf("failed to update portions for %s: %w", dec.BusinessDay, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ApplyDecrement subtracts dec from the limited counters of items in place
func ApplyDecrement(items map[string]models.PortionCounter, dec models.PortionDecrement) {
	for key, qty := range dec.Quantities {
		counter, ok := items[key]
		if !ok || !counter.IsLimited {
			continue
		}
		counter.Remaining -= qty
		if counter.Remaining < 0 {
			counter.Remaining = 0
		}
		items[key] = counter
	}
}
