// Package notification shows scarcity alerts to the staff.
package notification

import (
	"context"
	"fmt"
	"io"
	"time"

	"sagra-pos/internal/logger"
	"sagra-pos/internal/messaging"
	"sagra-pos/internal/models"
)

// Consumer delivers queue messages to a handler until ctx ends.
type Consumer interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// Subscriber handles scarcity alerts
type Subscriber struct {
	consumer Consumer
	out      io.Writer
	location *time.Location
	logger   *logger.Logger
}

// NewSubscriber creates a subscriber printing alerts to out in the local
// time of loc.
func NewSubscriber(consumer Consumer, out io.Writer, loc *time.Location, log *logger.Logger) *Subscriber {
	if loc == nil {
		loc = time.UTC
	}
	return &Subscriber{
		consumer: consumer,
		out:      out,
		location: loc,
		logger:   log,
	}
}

// Start consumes alerts until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	s.logger.Info("service_started", "Notification subscriber started", requestID, nil)

	err := s.consumer.StartConsuming(ctx, s.HandleAlert)

	s.logger.Info("graceful_shutdown", "Starting graceful shutdown", requestID, nil)
	if closeErr := s.consumer.Close(); closeErr != nil {
		s.logger.Error("shutdown_failed", "Failed to close consumer", requestID, closeErr, nil)
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("notification consumer failed: %w", err)
	}
	return nil
}

// HandleAlert displays one scarcity alert.
func (s *Subscriber) HandleAlert(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var alert models.ScarcityMessage
	if err := messaging.ParseMessage(body, &alert); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse scarcity alert", requestID, err, nil)
		return err
	}
	if alert.ItemKey == "" {
		return fmt.Errorf("%w: alert without item key", messaging.ErrMalformed)
	}

	if _, err := fmt.Fprintln(s.out, s.FormatAlert(&alert)); err != nil {
		return fmt.Errorf("failed to display alert: %w", err)
	}

	s.logger.Info("notification_displayed", "Scarcity alert displayed", requestID, map[string]interface{}{
		"event_id":     alert.EventID,
		"business_day": alert.BusinessDay,
		"item_key":     alert.ItemKey,
		"remaining":    alert.Remaining,
	})
	return nil
}

// FormatAlert renders the line shown to the staff.
func (s *Subscriber) FormatAlert(alert *models.ScarcityMessage) string {
	timestamp := alert.Timestamp.In(s.location).Format("15:04:05")

	if alert.Remaining == 0 {
		return fmt.Sprintf("[%s] %s esaurito", timestamp, alert.ItemKey)
	}
	return fmt.Sprintf("[%s] %s in esaurimento: restano %d (soglia %d)",
		timestamp, alert.ItemKey, alert.Remaining, alert.CriticalThreshold)
}
