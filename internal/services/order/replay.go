package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/models"
	"sagra-pos/internal/outbox"
)

// HistoryStore is the remote order history.
type HistoryStore interface {
	AppendHistory(ctx context.Context, rec models.HistoryRecord) error
}

// RegisterReplayHandlers wires queued writes back to the remote stores.
func RegisterReplayHandlers(d *outbox.Drainer, portions PortionStore, history HistoryStore) {
	d.Handle(cache.KindPortionDecrement, func(ctx context.Context, payload []byte) error {
		var dec models.PortionDecrement
		if err := json.Unmarshal(payload, &dec); err != nil {
			return fmt.Errorf("%w: decode decrement: %v", outbox.ErrPoison, err)
		}
		return poisonIfRejected(portions.DecrementPortions(ctx, dec))
	})

	d.Handle(cache.KindPortionSnapshot, func(ctx context.Context, payload []byte) error {
		var snapshot models.DailyPortions
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return fmt.Errorf("%w: decode snapshot: %v", outbox.ErrPoison, err)
		}
		return poisonIfRejected(portions.SavePortions(ctx, snapshot))
	})

	d.Handle(cache.KindOrderHistory, func(ctx context.Context, payload []byte) error {
		var rec models.HistoryRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("%w: decode history record: %v", outbox.ErrPoison, err)
		}
		return poisonIfRejected(history.AppendHistory(ctx, rec))
	})
}

// poisonIfRejected turns a permanent refusal of the remote store into
// outbox.ErrPoison so the entry does not hold back the queue.
func poisonIfRejected(err error) error {
	if errors.Is(err, models.ErrRejected) {
		return fmt.Errorf("%w: %w", outbox.ErrPoison, err)
	}
	return err
}
