package outbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/logger"
)

func newTestDrainer(t *testing.T) (*Drainer, *cache.Store) {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewDrainer(store, time.Hour, logger.Discard()), store
}

func TestDrainOnce_ReplaysInOrder(t *testing.T) {
	d, _ := newTestDrainer(t)
	ctx := context.Background()

	var seen []string
	d.Handle(cache.KindOrderHistory, func(ctx context.Context, payload []byte) error {
		seen = append(seen, string(payload))
		return nil
	})

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, d.Enqueue(ctx, cache.KindOrderHistory, []byte(p), "test"))
	}

	n, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	left, err := d.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestDrainOnce_StopsAtFirstFailure(t *testing.T) {
	d, store := newTestDrainer(t)
	ctx := context.Background()

	remoteDown := true
	var seen []string
	d.Handle(cache.KindPortionDecrement, func(ctx context.Context, payload []byte) error {
		if string(payload) == "second" && remoteDown {
			return errors.New("connection refused")
		}
		seen = append(seen, string(payload))
		return nil
	})

	for _, p := range []string{"first", "second", "third"} {
		require.NoError(t, d.Enqueue(ctx, cache.KindPortionDecrement, []byte(p), "test"))
	}

	n, err := d.DrainOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"first"}, seen)

	pending, err := store.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "second", string(pending[0].Payload))
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "connection refused", pending[0].LastError)

	remoteDown = false
	n, err = d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second", "third"}, seen)
}

func TestDrainOnce_UnknownKindDoesNotBlock(t *testing.T) {
	d, store := newTestDrainer(t)
	ctx := context.Background()

	var seen []string
	d.Handle(cache.KindOrderHistory, func(ctx context.Context, payload []byte) error {
		seen = append(seen, string(payload))
		return nil
	})
	require.NoError(t, d.Enqueue(ctx, "mystery", []byte("x"), "test"))
	require.NoError(t, d.Enqueue(ctx, cache.KindOrderHistory, []byte("after"), "test"))

	n, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"after"}, seen)

	dead, err := store.Dead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "mystery", dead[0].Kind)
	assert.Contains(t, dead[0].LastError, ErrNoHandler.Error())
}

func TestRun_KickTriggersDrain(t *testing.T) {
	d, _ := newTestDrainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{}, 1)
	d.Handle(cache.KindPortionSnapshot, func(ctx context.Context, payload []byte) error {
		done <- struct{}{}
		return nil
	})
	require.NoError(t, d.Enqueue(ctx, cache.KindPortionSnapshot, []byte("{}"), "test"))

	go d.Run(ctx)
	d.Kick()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drain was not triggered by kick")
	}
}

func TestDrainOnce_BuriesPoisonEntries(t *testing.T) {
	d, store := newTestDrainer(t)
	ctx := context.Background()

	var seen []string
	d.Handle(cache.KindOrderHistory, func(ctx context.Context, payload []byte) error {
		if string(payload) == "garbage" {
			return fmt.Errorf("%w: bad json", ErrPoison)
		}
		seen = append(seen, string(payload))
		return nil
	})

	require.NoError(t, d.Enqueue(ctx, cache.KindOrderHistory, []byte("garbage"), "test"))
	require.NoError(t, d.Enqueue(ctx, cache.KindOrderHistory, []byte("ok"), "test"))

	n, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"ok"}, seen)

	left, err := d.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)

	dead, err := store.Dead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "garbage", string(dead[0].Payload))
	assert.Equal(t, 1, dead[0].Attempts)
	assert.Contains(t, dead[0].LastError, "bad json")
}

func TestDrainOnce_TransientFailureAfterBuryKeepsOrder(t *testing.T) {
	d, store := newTestDrainer(t)
	ctx := context.Background()

	remoteDown := true
	var seen []string
	d.Handle(cache.KindPortionSnapshot, func(ctx context.Context, payload []byte) error {
		switch {
		case string(payload) == "rejected":
			return fmt.Errorf("%w: invalid business day", ErrPoison)
		case remoteDown:
			return errors.New("connection refused")
		}
		seen = append(seen, string(payload))
		return nil
	})
	for _, p := range []string{"rejected", "first", "second"} {
		require.NoError(t, d.Enqueue(ctx, cache.KindPortionSnapshot, []byte(p), "test"))
	}

	n, err := d.DrainOnce(ctx)
	require.Error(t, err)
	assert.Zero(t, n)

	pending, err := store.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first", string(pending[0].Payload))

	remoteDown = false
	n, err = d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second"}, seen)
}
