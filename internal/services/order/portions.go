package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/ledger"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
)

// PortionStore is the remote document of daily portions.
type PortionStore interface {
	LoadPortions(ctx context.Context, businessDay string) (*models.DailyPortions, error)
	SavePortions(ctx context.Context, portions models.DailyPortions) error
	DecrementPortions(ctx context.Context, dec models.PortionDecrement) error
}

// Outbox queues remote writes that failed.
type Outbox interface {
	Enqueue(ctx context.Context, kind string, payload []byte, requestID string) error
	Kick()
}

// PortionSource tells where the counters of the session came from.
type PortionSource string

const (
	PortionsRemote  PortionSource = "remote"
	PortionsCreated PortionSource = "created"
	PortionsCache   PortionSource = "cache"
	PortionsEmpty   PortionSource = "empty"
)

// PortionSync loads and persists the daily portion counters.
type PortionSync struct {
	remote   PortionStore
	cache    KV
	outbox   Outbox
	rollover ledger.Rollover
	logger   *logger.Logger
}

func NewPortionSync(remote PortionStore, kv KV, ob Outbox, rollover ledger.Rollover, log *logger.Logger) *PortionSync {
	return &PortionSync{
		remote:   remote,
		cache:    kv,
		outbox:   ob,
		rollover: rollover,
		logger:   log,
	}
}

// BusinessDay is the business day now belongs to.
func (p *PortionSync) BusinessDay(now time.Time) string {
	return p.rollover.BusinessDay(now)
}

// LoadOrCreateDailyPortions returns the counters of the business day of now.
// A stored document is reused; a missing one is created from the catalog and
// persisted. If the remote store is unreachable the cached snapshot of the
// day is used, and without one every item is treated as unlimited.
func (p *PortionSync) LoadOrCreateDailyPortions(ctx context.Context, now time.Time, catalog models.Catalog, requestID string) (models.DailyPortions, PortionSource) {
	day := p.rollover.BusinessDay(now)

	stored, err := p.remote.LoadPortions(ctx, day)
	switch {
	case err == nil:
		portions, _ := p.rollover.Resolve(now, stored, catalog)
		if len(portions.Items) != len(stored.Items) {
			p.Persist(ctx, portions, requestID)
		} else {
			p.cacheSnapshot(ctx, portions, requestID)
		}
		return portions, PortionsRemote

	case errors.Is(err, models.ErrNotFound):
		portions := ledger.FreshPortions(day, catalog)
		p.logger.Info("portions_created", fmt.Sprintf("Created portion counters for %s", day), requestID, map[string]interface{}{
			"business_day": day,
			"items":        len(portions.Items),
		})
		p.Persist(ctx, portions, requestID)
		return portions, PortionsCreated
	}

	p.logger.Error("portions_remote_failed", "Failed to load portions, trying local cache", requestID, err, map[string]interface{}{
		"business_day": day,
	})

	var cached models.DailyPortions
	if _, cacheErr := p.cache.GetJSON(ctx, cache.PortionsKey(day), &cached); cacheErr == nil {
		portions, _ := p.rollover.Resolve(now, &cached, catalog)
		return portions, PortionsCache
	}

	return models.DailyPortions{BusinessDay: day, Items: map[string]models.PortionCounter{}}, PortionsEmpty
}

// Persist overwrites the remote document of the day with portions, queueing
// the write when the remote store fails.
func (p *PortionSync) Persist(ctx context.Context, portions models.DailyPortions, requestID string) {
	p.cacheSnapshot(ctx, portions, requestID)

	if err := p.remote.SavePortions(ctx, portions); err != nil {
		p.logger.Error("portions_save_failed", "Failed to save portions remotely", requestID, err, map[string]interface{}{
			"business_day": portions.BusinessDay,
		})
		p.enqueue(ctx, cache.KindPortionSnapshot, portions, requestID)
		return
	}
	p.outbox.Kick()
}

// ApplyDecrement records a sale: the local snapshot after the sale is cached
// and the decrement is applied remotely or queued.
func (p *PortionSync) ApplyDecrement(ctx context.Context, dec models.PortionDecrement, after models.DailyPortions, requestID string) {
	if dec.Empty() {
		return
	}
	p.cacheSnapshot(ctx, after, requestID)

	if err := p.remote.DecrementPortions(ctx, dec); err != nil {
		p.logger.Error("portions_decrement_failed", "Failed to decrement portions remotely", requestID, err, map[string]interface{}{
			"business_day": dec.BusinessDay,
			"quantities":   dec.Quantities,
		})
		p.enqueue(ctx, cache.KindPortionDecrement, dec, requestID)
		return
	}
	p.outbox.Kick()
}

func (p *PortionSync) cacheSnapshot(ctx context.Context, portions models.DailyPortions, requestID string) {
	if err := p.cache.PutJSON(ctx, cache.PortionsKey(portions.BusinessDay), portions); err != nil {
		p.logger.Error("portions_cache_failed", "Failed to cache portions", requestID, err, nil)
	}
}

func (p *PortionSync) enqueue(ctx context.Context, kind string, v any, requestID string) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("outbox_encode_failed", "Failed to encode outbox payload", requestID, err, nil)
		return
	}
	if err := p.outbox.Enqueue(ctx, kind, payload, requestID); err != nil {
		p.logger.Error("outbox_enqueue_failed", "Failed to queue write, it is lost", requestID, err, map[string]interface{}{
			"kind": kind,
		})
	}
}
