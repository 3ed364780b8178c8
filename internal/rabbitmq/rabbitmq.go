// Package rabbitmq maintains the AMQP connection for the optional
// source-event consumer, reconnecting with backoff when the broker drops it.
package rabbitmq

import (
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/config"
)

const (
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
	maxInitialDials = 10
)

// Connection wraps an AMQP connection and channel with automatic recovery
type Connection struct {
	cfg    *config.RabbitMQConfig
	logger *zap.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewConnection creates an unconnected Connection
func NewConnection(cfg *config.RabbitMQConfig, logger *zap.Logger) *Connection {
	return &Connection{
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Connect dials the broker, retrying with exponential backoff, and starts
// the recovery monitor
func (c *Connection) Connect() error {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := c.dial()
		if err == nil {
			c.logger.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
			break
		}
		if attempt >= maxInitialDials {
			return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxInitialDials, err)
		}
		c.logger.Warn("RabbitMQ connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		time.Sleep(backoff)
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	go c.monitor()
	return nil
}

func (c *Connection) dial() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}

	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "webhook-engine",
		},
	})
	if err != nil {
		return fmt.Errorf("amqp dial failed: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

// monitor watches for close notifications and redials until Close is called
func (c *Connection) monitor() {
	for {
		c.mu.RLock()
		if c.conn == nil || c.channel == nil {
			c.mu.RUnlock()
			return
		}
		connClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		chanClose := c.channel.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		select {
		case <-c.stopChan:
			return
		case err := <-connClose:
			if err == nil {
				return
			}
			c.logger.Error("RabbitMQ connection lost", zap.String("reason", err.Reason))
		case err := <-chanClose:
			if err == nil {
				return
			}
			c.logger.Error("RabbitMQ channel lost", zap.String("reason", err.Reason))
		}

		c.redial()
	}
}

func (c *Connection) redial() {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-c.stopChan:
			return
		default:
		}

		if err := c.dial(); err != nil {
			c.logger.Warn("RabbitMQ reconnect failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			time.Sleep(backoff)
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.logger.Info("Reconnected to RabbitMQ", zap.Int("attempt", attempt))
		return
	}
}

// Consume opens a manual-ack delivery stream for the source queue
func (c *Connection) Consume(queue string) (<-chan amqp.Delivery, error) {
	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()

	if channel == nil || channel.IsClosed() {
		return nil, fmt.Errorf("RabbitMQ channel is not available")
	}

	return channel.Consume(
		queue,
		"webhook-engine", // consumer tag
		false,            // autoAck
		false,            // exclusive
		false,            // noLocal
		false,            // noWait
		nil,
	)
}

// Close stops the recovery monitor and closes the channel and connection
func (c *Connection) Close() {
	c.stopOnce.Do(func() { close(c.stopChan) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.logger.Info("RabbitMQ connection closed")
	}
}
