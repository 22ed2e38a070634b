package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
)

const publishTimeout = 5 * time.Second

// Publisher sends kitchen tickets and scarcity alerts
type Publisher struct {
	conn   *Connection
	logger *logger.Logger
}

func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: log,
	}
}

// PublishKitchenTicket routes a confirmed order to the kitchen printer
func (p *Publisher) PublishKitchenTicket(ctx context.Context, msg *models.KitchenTicketMessage) error {
	routingKey := models.GenerateRoutingKey(msg.EventID, msg.Ticket.PaymentMode)
	return p.publish(ctx, OrdersExchange, routingKey, msg, true)
}

// PublishScarcity broadcasts a low-portion alert
func (p *Publisher) PublishScarcity(ctx context.Context, msg *models.ScarcityMessage) error {
	return p.publish(ctx, NotificationsExchange, "", msg, false)
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, message interface{}, persistent bool) error {
	if p.conn.IsClosed() {
		if err := p.conn.Reconnect(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Transient,
		Timestamp:    time.Now(),
	}
	if persistent {
		publishing.DeliveryMode = amqp091.Persistent
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.conn.Channel().PublishWithContext(ctx, exchange, routingKey, false, false, publishing)
	if err != nil {
		p.logger.Error("message_publish_failed",
			fmt.Sprintf("Failed to publish message to exchange %s", exchange),
			"", err, map[string]interface{}{
				"exchange":    exchange,
				"routing_key": routingKey,
			})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message_published",
		fmt.Sprintf("Published message to exchange %s", exchange),
		"", map[string]interface{}{
			"exchange":     exchange,
			"routing_key":  routingKey,
			"message_size": len(body),
		})

	return nil
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}
