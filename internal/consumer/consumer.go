// Package consumer feeds source events from a RabbitMQ queue into the
// publisher. Message bodies are base64-encoded JSON event envelopes.
package consumer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/models"
	"github.com/marminbh/webhook-engine/internal/publisher"
	"github.com/marminbh/webhook-engine/internal/rabbitmq"
)

// Consumer drains the source queue and publishes each decoded event
type Consumer struct {
	conn   *rabbitmq.Connection
	pub    *publisher.Publisher
	queue  string
	logger *zap.Logger
}

// NewConsumer creates a consumer for the given source queue
func NewConsumer(conn *rabbitmq.Connection, pub *publisher.Publisher, queue string, logger *zap.Logger) *Consumer {
	return &Consumer{
		conn:   conn,
		pub:    pub,
		queue:  queue,
		logger: logger,
	}
}

// Start consumes messages until ctx is cancelled. When the delivery stream
// closes (broker restart, channel loss) it reopens the stream against the
// recovered connection.
func (c *Consumer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Source event consumer stopping")
				return
			default:
			}

			messages, err := c.conn.Consume(c.queue)
			if err != nil {
				c.logger.Error("Failed to open consume stream",
					zap.String("queue", c.queue),
					zap.Error(err),
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}

			c.logger.Info("Consuming source events", zap.String("queue", c.queue))
			c.drain(ctx, messages)
		}
	}()
}

func (c *Consumer) drain(ctx context.Context, messages <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				c.logger.Warn("Consume stream closed, reopening",
					zap.String("queue", c.queue),
				)
				return
			}
			c.handle(ctx, msg)
		}
	}
}

// handle decodes one message and fans it out. Undecodable messages are
// rejected without requeue; a transient publish failure requeues so the
// event is not lost.
func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	event, err := decodeEvent(msg.Body)
	if err != nil {
		c.logger.Error("Rejecting malformed source message",
			zap.String("queue", c.queue),
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		c.nack(msg, false)
		return
	}

	delivered, err := c.pub.Publish(ctx, event)
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			c.logger.Error("Rejecting invalid source event",
				zap.String("queue", c.queue),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			c.nack(msg, false)
			return
		}
		c.logger.Error("Publish failed, requeueing source event",
			zap.String("queue", c.queue),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		c.nack(msg, true)
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack source message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
		return
	}

	c.logger.Info("Source event published",
		zap.String("queue", c.queue),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Int("delivered_to", delivered),
	)
}

func (c *Consumer) nack(msg amqp.Delivery, requeue bool) {
	if err := msg.Nack(false, requeue); err != nil {
		c.logger.Error("Failed to nack source message",
			zap.Uint64("delivery_tag", msg.DeliveryTag),
			zap.Error(err),
		)
	}
}

// decodeEvent unwraps the base64 transport encoding and parses the event
// envelope
func decodeEvent(body []byte) (*models.Event, error) {
	decoded, err := base64.StdEncoding.DecodeString(string(body))
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}

	var env models.EventEnvelope
	if err := json.Unmarshal(decoded, &env); err != nil {
		return nil, fmt.Errorf("invalid event JSON: %w", err)
	}
	return env.Event(), nil
}
