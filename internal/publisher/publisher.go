// Package publisher fans published events out to matching subscriptions.
// Publish is non-blocking: it builds and enqueues delivery attempts and
// returns without waiting for any delivery to happen.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/delivery"
	"github.com/marminbh/webhook-engine/internal/metrics"
	"github.com/marminbh/webhook-engine/internal/models"
	"github.com/marminbh/webhook-engine/internal/signing"
	"github.com/marminbh/webhook-engine/internal/stats"
	"github.com/marminbh/webhook-engine/internal/store"
)

// Publisher matches events against the event-type index and enqueues signed
// delivery attempts
type Publisher struct {
	store  *store.Client
	queue  *delivery.Queue
	stats  *stats.Aggregator
	logger *zap.Logger
}

// NewPublisher creates a publisher
func NewPublisher(st *store.Client, queue *delivery.Queue, agg *stats.Aggregator, logger *zap.Logger) *Publisher {
	return &Publisher{
		store:  st,
		queue:  queue,
		stats:  agg,
		logger: logger,
	}
}

// Publish fans an event out to every matching active subscription and
// returns the number of attempts successfully enqueued. It only fails when
// the event-type index lookup itself fails; a problem with any single
// subscription (load error, filter mismatch, full queue) is logged and that
// subscription is skipped, never aborting the rest of the fan-out.
func (p *Publisher) Publish(ctx context.Context, event *models.Event) (int, error) {
	if event.Type == "" {
		return 0, models.NewValidationError("event_type", "must not be empty")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	ids, err := p.store.EventSubscriptions(ctx, event.Type)
	if err != nil {
		return 0, fmt.Errorf("event index lookup failed: %w", err)
	}

	metrics.EventsPublished.Inc()
	if len(ids) == 0 {
		return 0, nil
	}

	enqueued := 0
	for _, id := range ids {
		sub, err := p.store.GetSubscription(ctx, id)
		if err != nil {
			p.logger.Warn("Skipping subscription: load failed",
				zap.String("subscription_id", id),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		if sub.Status != models.SubscriptionActive {
			continue
		}
		if !matchesFilters(sub.Filters, event) {
			continue
		}

		attempt, err := p.buildAttempt(sub, event)
		if err != nil {
			p.logger.Error("Skipping subscription: failed to build attempt",
				zap.String("subscription_id", id),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}

		if err := p.queue.Enqueue(attempt); err != nil {
			p.logger.Error("Skipping subscription: enqueue failed",
				zap.String("subscription_id", id),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}

		p.stats.RecordPending(ctx, sub.ID)
		metrics.AttemptsEnqueued.Inc()
		enqueued++
	}

	p.logger.Info("Published event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Int("candidates", len(ids)),
		zap.Int("enqueued", enqueued),
	)
	return enqueued, nil
}

// buildAttempt serializes the event envelope, signs the exact bytes that
// will be transmitted, and snapshots the subscription's delivery policy onto
// a fresh PENDING attempt
func (p *Publisher) buildAttempt(sub *models.Subscription, event *models.Event) (*models.DeliveryAttempt, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	signature, err := signing.Sign(payload, sub.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}

	headers := map[string]string{
		"X-Webhook-Event":     event.Type,
		"X-Webhook-Timestamp": strconv.FormatInt(event.Timestamp.Unix(), 10),
		"X-Webhook-Signature": signature,
	}
	for key, value := range sub.Headers {
		headers[key] = value
	}

	return &models.DeliveryAttempt{
		ID:                 uuid.New().String(),
		SubscriptionID:     sub.ID,
		EventID:            event.ID,
		EventType:          event.Type,
		URL:                sub.URL,
		Headers:            headers,
		Payload:            payload,
		Signature:          signature,
		AttemptCount:       0,
		MaxAttempts:        sub.RetryAttempts,
		TimeoutSeconds:     sub.TimeoutSeconds,
		RetryDelaySeconds:  sub.RetryDelaySeconds,
		ExponentialBackoff: sub.ExponentialBackoff,
		Status:             models.DeliveryPending,
		CreatedAt:          time.Now().UTC(),
	}, nil
}
