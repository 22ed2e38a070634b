package order

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/models"
)

func TestReplay_RejectedSnapshotIsBuried(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bad, err := json.Marshal(models.DailyPortions{Items: map[string]models.PortionCounter{}})
	require.NoError(t, err)
	good, err := json.Marshal(models.DailyPortions{
		BusinessDay: "2026-08-14",
		Items: map[string]models.PortionCounter{
			"pizza": {Remaining: 4, CriticalThreshold: 3, IsLimited: true},
		},
	})
	require.NoError(t, err)

	require.NoError(t, env.drainer.Enqueue(ctx, cache.KindPortionSnapshot, bad, "req-1"))
	require.NoError(t, env.drainer.Enqueue(ctx, cache.KindPortionSnapshot, good, "req-2"))

	n, err := env.drainer.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, env.remote.remaining("2026-08-14", "pizza"))
	assert.Zero(t, env.pending(t))

	dead, err := env.cache.Dead(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].LastError, models.ErrRejected.Error())
}

func TestReplay_OutageIsNotBuried(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := models.NewHistoryRecord(models.OrderTicket{ID: "t-1", Number: models.OrderNumber{Value: 7}})
	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, env.drainer.Enqueue(ctx, cache.KindOrderHistory, payload, "req-1"))

	env.remote.setOffline(true)
	_, err = env.drainer.DrainOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, env.pending(t))

	dead, err := env.cache.Dead(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, dead)
}
