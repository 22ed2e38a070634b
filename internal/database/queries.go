package database

// Migration bookkeeping
const (
	createMigrationsTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			migration_name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`

	selectMigrationsSQL = `SELECT migration_name FROM schema_migrations`

	insertMigrationSQL = `INSERT INTO schema_migrations (migration_name) VALUES ($1)`
)

// Counter queries
const (
	// NextOrderNumberSQL returns the value before the increment
	NextOrderNumberSQL = `
		INSERT INTO order_counters (event_id, value)
		VALUES ($1, 1)
		ON CONFLICT (event_id) DO UPDATE SET
			value = order_counters.value + 1,
			updated_at = NOW()
		RETURNING value - 1`

	SetOrderCounterSQL = `
		INSERT INTO order_counters (event_id, value)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()`
)

// Order history queries
const (
	InsertHistorySQL = `
		INSERT INTO order_history (id, event_id, order_number, prefix, lines, total_cents, payment_mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	UpdateHistorySQL = `
		UPDATE order_history SET lines = $3, total_cents = $4, payment_mode = $5
		WHERE id = $1 AND event_id = $2`

	ListHistorySQL = `
		SELECT id, order_number, prefix, lines, total_cents, payment_mode, created_at
		FROM order_history
		WHERE event_id = $1
		ORDER BY created_at ASC`
)

// Daily portion queries
const (
	GetDailyPortionsSQL = `
		SELECT business_day::text, items, updated_at
		FROM daily_portions
		WHERE event_id = $1 AND business_day = $2::date`

	LockDailyPortionsSQL = `
		SELECT items
		FROM daily_portions
		WHERE event_id = $1 AND business_day = $2::date
		FOR UPDATE`

	UpsertDailyPortionsSQL = `
		INSERT INTO daily_portions (event_id, business_day, items, updated_at)
		VALUES ($1, $2::date, $3, NOW())
		ON CONFLICT (event_id, business_day) DO UPDATE SET
			items = EXCLUDED.items,
			updated_at = NOW()`

	UpdateDailyPortionItemsSQL = `
		UPDATE daily_portions SET items = $3, updated_at = NOW()
		WHERE event_id = $1 AND business_day = $2::date`
)
