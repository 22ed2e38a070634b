package order

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
)

// CounterStore is the remote display-number counter.
type CounterStore interface {
	NextOrderNumber(ctx context.Context) (int, error)
}

// KV is the local key-value cache.
type KV interface {
	GetJSON(ctx context.Context, key string, v any) (time.Time, error)
	PutJSON(ctx context.Context, key string, v any) error
}

// CounterIssuer hands out display numbers. The remote counter is shared by
// every till of the event; when it cannot be reached the till continues from
// its own cached counter and marks the number with the offline prefix.
type CounterIssuer struct {
	remote        CounterStore
	cache         KV
	defaultPrefix string
	seed          func() int
	logger        *logger.Logger
}

func NewCounterIssuer(remote CounterStore, kv KV, defaultPrefix string, log *logger.Logger) *CounterIssuer {
	return &CounterIssuer{
		remote:        remote,
		cache:         kv,
		defaultPrefix: defaultPrefix,
		seed:          func() int { return rand.Intn(10000) },
		logger:        log,
	}
}

// Next returns the display number of the order being confirmed.
func (c *CounterIssuer) Next(ctx context.Context, requestID string) (models.OrderNumber, error) {
	value, err := c.remote.NextOrderNumber(ctx)
	if err == nil {
		if err := c.cache.PutJSON(ctx, cache.KeyCounter, value+1); err != nil {
			c.logger.Error("counter_cache_failed", "Failed to cache order counter", requestID, err, nil)
		}
		return models.OrderNumber{Value: value}, nil
	}

	c.logger.Error("counter_remote_failed", "Remote counter unavailable, issuing offline number", requestID, err, nil)
	return c.nextOffline(ctx)
}

func (c *CounterIssuer) nextOffline(ctx context.Context) (models.OrderNumber, error) {
	var value int
	if _, err := c.cache.GetJSON(ctx, cache.KeyCounter, &value); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			return models.OrderNumber{}, fmt.Errorf("failed to read local counter: %w", err)
		}
		value = c.seed()
	}

	if err := c.cache.PutJSON(ctx, cache.KeyCounter, value+1); err != nil {
		return models.OrderNumber{}, fmt.Errorf("failed to store local counter: %w", err)
	}

	prefix, err := c.OfflinePrefix(ctx)
	if err != nil {
		return models.OrderNumber{}, err
	}
	return models.OrderNumber{Prefix: prefix, Value: value}, nil
}

// OfflinePrefix returns the letter chosen for this till, or the default.
func (c *CounterIssuer) OfflinePrefix(ctx context.Context) (string, error) {
	var prefix string
	if _, err := c.cache.GetJSON(ctx, cache.KeyOfflinePrefix, &prefix); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return c.defaultPrefix, nil
		}
		return "", fmt.Errorf("failed to read offline prefix: %w", err)
	}
	return prefix, nil
}

// SetOfflinePrefix stores the letter that marks numbers issued offline.
func (c *CounterIssuer) SetOfflinePrefix(ctx context.Context, prefix string) error {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	runes := []rune(prefix)
	if len(runes) != 1 || !unicode.IsLetter(runes[0]) {
		return models.ValidationError{Field: "prefix", Message: "prefix must be a single letter"}
	}
	return c.cache.PutJSON(ctx, cache.KeyOfflinePrefix, prefix)
}
