// Package outbox replays remote writes that failed while the till was
// offline.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/logger"
)

var (
	// ErrNoHandler is recorded on entries whose kind has no registered handler.
	ErrNoHandler = errors.New("no handler for outbox kind")
	// ErrPoison marks a payload that can never be replayed. Such entries are
	// buried so they do not block the queue.
	ErrPoison = errors.New("unreplayable outbox entry")
)

// Queue is the durable storage the drainer reads from.
type Queue interface {
	Enqueue(ctx context.Context, kind string, payload []byte) (int64, error)
	Pending(ctx context.Context, limit int) ([]cache.PendingWrite, error)
	Ack(ctx context.Context, id int64) error
	Fail(ctx context.Context, id int64, cause error) error
	Bury(ctx context.Context, id int64, cause error) error
	PendingCount(ctx context.Context) (int, error)
}

// Handler replays one payload against the remote store.
type Handler func(ctx context.Context, payload []byte) error

const batchSize = 50

// Drainer replays queued writes in FIFO order. A replay that fails stops
// the pass so later writes never overtake earlier ones. Entries that can
// never succeed (ErrPoison, ErrNoHandler) are moved to the dead-letter
// table instead.
type Drainer struct {
	queue    Queue
	handlers map[string]Handler
	interval time.Duration
	logger   *logger.Logger

	mu   sync.Mutex
	kick chan struct{}
}

func NewDrainer(queue Queue, interval time.Duration, log *logger.Logger) *Drainer {
	return &Drainer{
		queue:    queue,
		handlers: make(map[string]Handler),
		interval: interval,
		logger:   log,
		kick:     make(chan struct{}, 1),
	}
}

// Handle registers the replay function of a kind. Must be called before Run.
func (d *Drainer) Handle(kind string, h Handler) {
	d.handlers[kind] = h
}

// Enqueue stores a write for later replay.
func (d *Drainer) Enqueue(ctx context.Context, kind string, payload []byte, requestID string) error {
	id, err := d.queue.Enqueue(ctx, kind, payload)
	if err != nil {
		return err
	}
	d.logger.Info("outbox_enqueued", fmt.Sprintf("Queued %s for replay", kind), requestID, map[string]interface{}{
		"outbox_id": id,
		"kind":      kind,
	})
	return nil
}

// Kick requests a drain pass without waiting for the ticker.
func (d *Drainer) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run drains on every tick and kick until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.kick:
		}

		if _, err := d.DrainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Debug("outbox_drain_stopped", "Outbox drain stopped at a failing entry", "", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// DrainOnce replays pending writes until the outbox is empty or a replay
// fails. It returns how many writes were replayed.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	replayed := 0
	for {
		pending, err := d.queue.Pending(ctx, batchSize)
		if err != nil {
			return replayed, err
		}
		if len(pending) == 0 {
			return replayed, nil
		}

		for _, w := range pending {
			err := d.replay(ctx, w)
			if errors.Is(err, ErrPoison) || errors.Is(err, ErrNoHandler) {
				d.logger.Error("outbox_buried", fmt.Sprintf("Moved unreplayable %s to dead letters", w.Kind), "", err, map[string]interface{}{
					"outbox_id": w.ID,
					"kind":      w.Kind,
				})
				if err := d.queue.Bury(ctx, w.ID, err); err != nil {
					return replayed, err
				}
				continue
			}
			if err != nil {
				if failErr := d.queue.Fail(ctx, w.ID, err); failErr != nil {
					d.logger.Error("outbox_fail_record_failed", "Failed to record outbox failure", "", failErr, nil)
				}
				return replayed, fmt.Errorf("replay %s #%d: %w", w.Kind, w.ID, err)
			}
			if err := d.queue.Ack(ctx, w.ID); err != nil {
				return replayed, err
			}
			replayed++

			d.logger.Info("outbox_replayed", fmt.Sprintf("Replayed %s", w.Kind), "", map[string]interface{}{
				"outbox_id": w.ID,
				"kind":      w.Kind,
				"attempts":  w.Attempts + 1,
			})
		}
	}
}

func (d *Drainer) replay(ctx context.Context, w cache.PendingWrite) error {
	h, ok := d.handlers[w.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, w.Kind)
	}
	return h(ctx, w.Payload)
}

// Pending reports how many writes are waiting.
func (d *Drainer) Pending(ctx context.Context) (int, error) {
	return d.queue.PendingCount(ctx)
}
