package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagra-pos/internal/config"
	"sagra-pos/internal/database"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
)

func TestApplyDecrement(t *testing.T) {
	items := map[string]models.PortionCounter{
		"pizza":   {Remaining: 10, CriticalThreshold: 3, IsLimited: true},
		"lasagna": {Remaining: 2, CriticalThreshold: 1, IsLimited: true},
		"acqua":   {IsLimited: false},
	}

	ApplyDecrement(items, models.PortionDecrement{
		BusinessDay: "2026-08-14",
		Quantities:  map[string]int{"pizza": 3, "lasagna": 5, "acqua": 4, "gone": 1},
	})

	assert.Equal(t, 7, items["pizza"].Remaining)
	assert.Equal(t, 0, items["lasagna"].Remaining)
	assert.Equal(t, 0, items["acqua"].Remaining)
	_, added := items["gone"]
	assert.False(t, added)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		rejected bool
	}{
		{name: "invalid datetime", err: &pgconn.PgError{Code: "22007"}, rejected: true},
		{name: "not null violation", err: &pgconn.PgError{Code: "23502"}, rejected: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}},
		{name: "connection refused", err: errors.New("connection refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			assert.Equal(t, tt.rejected, errors.Is(err, models.ErrRejected))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRepository_RejectsMissingBusinessDay(t *testing.T) {
	r := &Repository{eventID: "sagra-2026"}
	ctx := context.Background()

	err := r.SavePortions(ctx, models.DailyPortions{Items: map[string]models.PortionCounter{}})
	assert.ErrorIs(t, err, models.ErrRejected)

	err = r.DecrementPortions(ctx, models.PortionDecrement{Quantities: map[string]int{"pizza": 1}})
	assert.ErrorIs(t, err, models.ErrRejected)
}

// newTestRepository connects to the database named by SAGRA_TEST_DB_HOST
// and friends; the test is skipped when no database is configured
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	if os.Getenv("SAGRA_TEST_DB_HOST") == "" {
		t.Skip("SAGRA_TEST_DB_HOST not set")
	}

	cfg := config.Default()
	cfg.Database.Host = os.Getenv("SAGRA_TEST_DB_HOST")
	cfg.Database.User = os.Getenv("SAGRA_TEST_DB_USER")
	cfg.Database.Password = os.Getenv("SAGRA_TEST_DB_PASSWORD")
	cfg.Database.Database = os.Getenv("SAGRA_TEST_DB_NAME")

	ctx := context.Background()
	db, err := database.New(ctx, cfg, logger.Discard(), 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.RunMigrations(ctx, os.DirFS("../../migrations")))
	return New(db, "test-"+uuid.NewString())
}

func TestRepository_OrderCounter(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.NextOrderNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, first)

	second, err := repo.NextOrderNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second)

	require.NoError(t, repo.SetOrderCounter(ctx, 100))
	next, err := repo.NextOrderNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, next)
}

func TestRepository_History(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	price := int64(700)
	total := int64(1400)
	rec := models.HistoryRecord{
		ID:          uuid.NewString(),
		OrderNumber: 12,
		Lines:       []models.HistoryLine{{Name: "Pizza", Quantity: 2, UnitPriceCents: &price}},
		TotalCents:  &total,
		PaymentMode: "cash",
		CreatedAt:   time.Date(2026, 8, 14, 19, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.AppendHistory(ctx, rec))
	require.NoError(t, repo.AppendHistory(ctx, rec))

	legacy := models.HistoryRecord{
		ID:          uuid.NewString(),
		OrderNumber: 13,
		Lines:       []models.HistoryLine{{Name: "Pizza", Quantity: 1}},
		CreatedAt:   time.Date(2026, 8, 14, 19, 5, 0, 0, time.UTC),
	}
	require.NoError(t, repo.AppendHistory(ctx, legacy))

	records, err := repo.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "cash", records[0].PaymentMode)
	assert.Nil(t, records[1].TotalCents)
	assert.Empty(t, records[1].PaymentMode)

	rec.PaymentMode = "card"
	require.NoError(t, repo.UpdateHistory(ctx, rec))

	missing := rec
	missing.ID = uuid.NewString()
	assert.ErrorIs(t, repo.UpdateHistory(ctx, missing), models.ErrNotFound)
}

func TestRepository_Portions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.LoadPortions(ctx, "2026-08-14")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, repo.SavePortions(ctx, models.DailyPortions{
		BusinessDay: "2026-08-14",
		Items: map[string]models.PortionCounter{
			"pizza": {Remaining: 10, CriticalThreshold: 3, IsLimited: true},
		},
	}))

	require.NoError(t, repo.DecrementPortions(ctx, models.PortionDecrement{
		BusinessDay: "2026-08-14",
		Quantities:  map[string]int{"pizza": 12},
	}))

	loaded, err := repo.LoadPortions(ctx, "2026-08-14")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-14", loaded.BusinessDay)
	assert.Equal(t, 0, loaded.Items["pizza"].Remaining)
}
