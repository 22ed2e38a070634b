package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		s.Close()
	}
}

func TestKV_PutGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, KeyCounter)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Put(ctx, KeyCounter, []byte("41")))
	require.NoError(t, s.Put(ctx, KeyCounter, []byte("42")))

	entry, err := s.Get(ctx, KeyCounter)
	require.NoError(t, err)
	assert.Equal(t, "42", string(entry.Value))
	assert.False(t, entry.UpdatedAt.IsZero())

	require.NoError(t, s.Delete(ctx, KeyCounter))
	_, err = s.Get(ctx, KeyCounter)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestKV_JSON(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	type snapshot struct {
		Day   string         `json:"day"`
		Items map[string]int `json:"items"`
	}
	in := snapshot{Day: "2026-08-14", Items: map[string]int{"pizza": 7}}
	require.NoError(t, s.PutJSON(ctx, PortionsKey("2026-08-14"), in))

	var out snapshot
	_, err := s.GetJSON(ctx, PortionsKey("2026-08-14"), &out)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = s.GetJSON(ctx, PortionsKey("2026-08-15"), &out)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestOutbox_FIFO(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.Enqueue(ctx, KindOrderHistory, []byte(`{"n":1}`))
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, KindPortionDecrement, []byte(`{"n":2}`))
	require.NoError(t, err)

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, KindOrderHistory, pending[0].Kind)
	assert.Equal(t, KindPortionDecrement, pending[1].Kind)

	require.NoError(t, s.Fail(ctx, first, errors.New("connection refused")))
	pending, err = s.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "connection refused", pending[0].LastError)

	require.NoError(t, s.Ack(ctx, first))
	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOutbox_Bury(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.Enqueue(ctx, KindPortionSnapshot, []byte(`{"business_day":""}`))
	require.NoError(t, err)
	second, err := s.Enqueue(ctx, KindOrderHistory, []byte(`{"n":2}`))
	require.NoError(t, err)

	require.NoError(t, s.Fail(ctx, first, errors.New("connection refused")))
	require.NoError(t, s.Bury(ctx, first, errors.New("invalid business day")))

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)

	dead, err := s.Dead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, first, dead[0].ID)
	assert.Equal(t, KindPortionSnapshot, dead[0].Kind)
	assert.Equal(t, 2, dead[0].Attempts)
	assert.Equal(t, "invalid business day", dead[0].LastError)
	assert.False(t, dead[0].BuriedAt.IsZero())

	err = s.Bury(ctx, first, errors.New("again"))
	assert.ErrorIs(t, err, ErrMiss)
}
