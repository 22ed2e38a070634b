// Package kitchen prints the tickets of confirmed orders at the kitchen.
package kitchen

import (
	"context"
	"fmt"

	"sagra-pos/internal/logger"
	"sagra-pos/internal/messaging"
	"sagra-pos/internal/models"
)

// Printer prints kitchen tickets.
type Printer interface {
	Print(ctx context.Context, t models.OrderTicket, copies int) error
}

// Consumer delivers queue messages to a handler until ctx ends.
type Consumer interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// Worker consumes kitchen tickets and prints them
type Worker struct {
	name     string
	consumer Consumer
	printer  Printer
	logger   *logger.Logger
}

// NewWorker creates a new kitchen worker
func NewWorker(name string, consumer Consumer, printer Printer, log *logger.Logger) *Worker {
	return &Worker{
		name:     name,
		consumer: consumer,
		printer:  printer,
		logger:   log,
	}
}

// Start consumes tickets until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	w.logger.Info("worker_started", fmt.Sprintf("Kitchen worker %s started", w.name), requestID, map[string]interface{}{
		"worker_name": w.name,
	})

	err := w.consumer.StartConsuming(ctx, w.HandleMessage)

	w.logger.Info("graceful_shutdown", "Starting graceful shutdown", requestID, nil)
	if closeErr := w.consumer.Close(); closeErr != nil {
		w.logger.Error("shutdown_failed", "Failed to close consumer", requestID, closeErr, nil)
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("kitchen consumer failed: %w", err)
	}
	return nil
}

// HandleMessage prints one kitchen ticket message. Malformed messages are
// rejected without requeue; print failures are requeued.
func (w *Worker) HandleMessage(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var msg models.KitchenTicketMessage
	if err := messaging.ParseMessage(body, &msg); err != nil {
		w.logger.Error("message_parsing_failed", "Failed to parse kitchen ticket", requestID, err, nil)
		return err
	}
	if len(msg.Ticket.Lines) == 0 {
		return fmt.Errorf("%w: ticket %s has no lines", messaging.ErrMalformed, msg.Ticket.Number)
	}

	copies := msg.Copies
	if copies < 1 {
		copies = 1
	}

	w.logger.Debug("ticket_received", fmt.Sprintf("Printing order %s", msg.Ticket.Number), requestID, map[string]interface{}{
		"order_number": msg.Ticket.Number.String(),
		"event_id":     msg.EventID,
		"items":        msg.Ticket.ItemCount(),
		"copies":       copies,
	})

	if err := w.printer.Print(ctx, msg.Ticket, copies); err != nil {
		return fmt.Errorf("failed to print order %s: %w", msg.Ticket.Number, err)
	}

	w.logger.Info("ticket_printed", fmt.Sprintf("Printed order %s", msg.Ticket.Number), requestID, map[string]interface{}{
		"order_number": msg.Ticket.Number.String(),
		"processed_by": w.name,
	})
	return nil
}
