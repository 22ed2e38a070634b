// Package tracking looks up confirmed orders in the shared history, so the
// cashier can answer a customer holding a ticket number.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"sagra-pos/internal/ledger"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
)

// ErrUnavailable is returned when the history cannot be read.
var ErrUnavailable = errors.New("order history unavailable")

var numberPattern = regexp.MustCompile(`^([A-Za-z]?)(\d{1,4})$`)

// Service provides order lookups
type Service struct {
	history  HistoryLister
	rollover ledger.Rollover
	clock    func() time.Time
	logger   *logger.Logger
}

func NewService(history HistoryLister, rollover ledger.Rollover, log *logger.Logger) *Service {
	return &Service{
		history:  history,
		rollover: rollover,
		clock:    time.Now,
		logger:   log,
	}
}

// ParseNumber reads a display number such as "0042" or "X0041".
func ParseNumber(s string) (models.OrderNumber, error) {
	m := numberPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return models.OrderNumber{}, models.ValidationError{Field: "number", Message: "order number must be an optional letter followed by up to four digits"}
	}
	value, _ := strconv.Atoi(m[2])
	return models.OrderNumber{Prefix: strings.ToUpper(m[1]), Value: value}, nil
}

func (s *Service) day(day string) (string, error) {
	if day == "" {
		return s.rollover.BusinessDay(s.clock()), nil
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return "", models.ValidationError{Field: "day", Message: "day must be formatted as YYYY-MM-DD"}
	}
	return day, nil
}

// ListDay returns the orders of a business day, oldest first. An empty day
// means the current one.
func (s *Service) ListDay(ctx context.Context, day, requestID string) ([]models.HistoryRecord, error) {
	day, err := s.day(day)
	if err != nil {
		return nil, err
	}

	records, err := s.history.ListHistory(ctx)
	if err != nil {
		s.logger.Error("history_read_failed", "Failed to read order history", requestID, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]models.HistoryRecord, 0)
	for _, rec := range records {
		if !rec.CreatedAt.IsZero() && s.rollover.BusinessDay(rec.CreatedAt) == day {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// FindOrder returns the order of day shown as number. Numbers wrap after
// 9999, so the latest match wins.
func (s *Service) FindOrder(ctx context.Context, number, day, requestID string) (models.HistoryRecord, error) {
	want, err := ParseNumber(number)
	if err != nil {
		return models.HistoryRecord{}, err
	}

	records, err := s.ListDay(ctx, day, requestID)
	if err != nil {
		return models.HistoryRecord{}, err
	}

	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		got := models.OrderNumber{Prefix: rec.Prefix, Value: rec.OrderNumber}
		if got.String() == want.String() {
			return rec, nil
		}
	}

	s.logger.Debug("order_not_found", fmt.Sprintf("Order %s not found", want), requestID, nil)
	return models.HistoryRecord{}, fmt.Errorf("order %s: %w", want, models.ErrNotFound)
}
