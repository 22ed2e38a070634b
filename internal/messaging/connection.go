package messaging

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"sagra-pos/internal/config"
	"sagra-pos/internal/logger"
)

// Exchange and queue names of the till topology.
const (
	OrdersExchange        = "orders_topic"
	NotificationsExchange = "notifications_fanout"
	KitchenQueue          = "kitchen_queue"
	NotificationsQueue    = "notifications_queue"

	// kitchen.<event>.<payment mode>
	kitchenBinding = "kitchen.#"
)

// Connection wraps a RabbitMQ connection and its channel
type Connection struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *logger.Logger
	url     string
	retries int
}

// New dials RabbitMQ and declares the topology
func New(cfg *config.Config, log *logger.Logger) (*Connection, error) {
	return Dial(cfg, log, 5)
}

// Dial is New with a custom number of connection attempts.
func Dial(cfg *config.Config, log *logger.Logger, retries int) (*Connection, error) {
	if retries < 1 {
		retries = 1
	}
	conn := &Connection{
		logger:  log,
		url:     cfg.RabbitMQURL(),
		retries: retries,
	}

	if err := conn.connect(); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}

	return conn, nil
}

// connect dials with a linear backoff
func (c *Connection) connect() error {
	var err error

	for i := 0; i < c.retries; i++ {
		if err = c.dial(); err == nil {
			return nil
		}

		if i < c.retries-1 {
			wait := time.Duration(i+1) * 2 * time.Second
			c.logger.Error("rabbitmq_connection_failed",
				fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", wait),
				"startup", err, nil)
			time.Sleep(wait)
		}
	}

	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.retries, err)
}

func (c *Connection) dial() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	c.conn, c.channel = conn, ch

	if err := c.setupTopology(); err != nil {
		c.logger.Error("rabbitmq_setup_failed", "Failed to set up topology", "startup", err, nil)
		c.close()
		return err
	}
	return nil
}

// setupTopology declares the exchanges and queues used by the till, the
// kitchen printer and the alert subscriber
func (c *Connection) setupTopology() error {
	exchanges := []struct {
		name string
		kind string
	}{
		{OrdersExchange, "topic"},
		{NotificationsExchange, "fanout"},
	}
	for _, ex := range exchanges {
		if err := c.channel.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare %s exchange: %w", ex.name, err)
		}
	}

	// Tickets older than an hour are not worth printing
	_, err := c.channel.QueueDeclare(KitchenQueue, true, false, false, false, amqp091.Table{
		"x-message-ttl": int32(3600000),
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", KitchenQueue, err)
	}

	if err := c.channel.QueueBind(KitchenQueue, kitchenBinding, OrdersExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s with routing key %s: %w", KitchenQueue, kitchenBinding, err)
	}

	if _, err := c.channel.QueueDeclare(NotificationsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare notifications queue: %w", err)
	}

	// routing key is ignored by fanout exchanges
	if err := c.channel.QueueBind(NotificationsQueue, "", NotificationsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind notifications queue: %w", err)
	}

	return nil
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp091.Channel {
	return c.channel
}

func (c *Connection) Close() error {
	return c.close()
}

func (c *Connection) close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsClosed checks if the connection is closed
func (c *Connection) IsClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

// Reconnect drops the current connection and dials again
func (c *Connection) Reconnect() error {
	c.close()
	return c.connect()
}
