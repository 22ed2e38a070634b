package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/ledger"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
)

// ErrUnavailable is returned when neither the history nor a cached
// aggregation can be read.
var ErrUnavailable = errors.New("report unavailable")

// HistoryLister reads the whole order history of the event.
type HistoryLister interface {
	ListHistory(ctx context.Context) ([]models.HistoryRecord, error)
}

// KV is the local key-value cache.
type KV interface {
	GetJSON(ctx context.Context, key string, v any) (time.Time, error)
	PutJSON(ctx context.Context, key string, v any) error
}

type snapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Days        map[string]*Day `json:"days"`
}

// Service builds reports, caching the aggregation for ttl.
type Service struct {
	history  HistoryLister
	cache    KV
	rollover ledger.Rollover
	key      string
	ttl      time.Duration
	clock    func() time.Time
	logger   *logger.Logger
}

func NewService(history HistoryLister, kv KV, rollover ledger.Rollover, eventID string, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		history:  history,
		cache:    kv,
		rollover: rollover,
		key:      cache.ReportKey(eventID),
		ttl:      ttl,
		clock:    time.Now,
		logger:   log,
	}
}

// Aggregation returns the per-day totals and when they were computed.
// A cached aggregation younger than the TTL is reused; an older one is
// still served when the history cannot be read.
func (s *Service) Aggregation(ctx context.Context, requestID string) (map[string]*Day, time.Time, error) {
	var cached snapshot
	_, cacheErr := s.cache.GetJSON(ctx, s.key, &cached)
	hasCache := cacheErr == nil && cached.Days != nil
	if cacheErr != nil && !errors.Is(cacheErr, cache.ErrMiss) {
		s.logger.Error("report_cache_failed", "Failed to read cached report", requestID, cacheErr, nil)
	}

	now := s.clock()
	if hasCache && now.Sub(cached.GeneratedAt) < s.ttl {
		return cached.Days, cached.GeneratedAt, nil
	}

	records, err := s.history.ListHistory(ctx)
	if err != nil {
		if hasCache {
			s.logger.Error("report_history_failed", "Failed to read order history, serving stale report", requestID, err, map[string]interface{}{
				"generated_at": cached.GeneratedAt,
			})
			return cached.Days, cached.GeneratedAt, nil
		}
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	fresh := snapshot{GeneratedAt: now, Days: Aggregate(records, s.rollover)}
	if err := s.cache.PutJSON(ctx, s.key, fresh); err != nil {
		s.logger.Error("report_cache_failed", "Failed to cache report", requestID, err, nil)
	}

	s.logger.Info("report_aggregated", fmt.Sprintf("Aggregated %d orders", len(records)), requestID, map[string]interface{}{
		"orders": len(records),
		"days":   len(fresh.Days),
	})
	return fresh.Days, fresh.GeneratedAt, nil
}

// Report returns the report of day, or of the current business day when day
// is empty.
func (s *Service) Report(ctx context.Context, day, requestID string) (Report, time.Time, error) {
	if day == "" {
		day = s.rollover.BusinessDay(s.clock())
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		return Report{}, time.Time{}, models.ValidationError{Field: "day", Message: "day must be formatted as YYYY-MM-DD"}
	}

	days, generatedAt, err := s.Aggregation(ctx, requestID)
	if err != nil {
		return Report{}, time.Time{}, err
	}
	return Build(days, day), generatedAt, nil
}
