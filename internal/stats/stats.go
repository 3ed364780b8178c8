// Package stats maintains per-subscription delivery counters. Counters are
// mutated through the store's atomic hash increments; derived values
// (average latency, success rate) are computed at read time from the sums.
package stats

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/models"
	"github.com/marminbh/webhook-engine/internal/store"
)

const (
	fieldTotalEvents     = "total_events"
	fieldSuccessful      = "successful_deliveries"
	fieldFailed          = "failed_deliveries"
	fieldPending         = "pending_deliveries"
	fieldResponseTimeSum = "response_time_total_ms"
)

// Aggregator records delivery outcomes and serves stats queries
type Aggregator struct {
	store  *store.Client
	logger *zap.Logger
}

// NewAggregator creates an aggregator backed by the store
func NewAggregator(st *store.Client, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: st, logger: logger}
}

// RecordPending notes a freshly enqueued attempt
func (a *Aggregator) RecordPending(ctx context.Context, subID string) {
	a.incr(ctx, subID, fieldPending, 1)
}

// RecordSuccess records a terminal successful delivery and its latency
func (a *Aggregator) RecordSuccess(ctx context.Context, subID, attemptID string, responseTimeMs int) {
	a.incr(ctx, subID, fieldTotalEvents, 1)
	a.incr(ctx, subID, fieldSuccessful, 1)
	a.incr(ctx, subID, fieldPending, -1)
	a.incr(ctx, subID, fieldResponseTimeSum, int64(responseTimeMs))

	if err := a.store.RecordWindowEvent(ctx, subID, attemptID, time.Now()); err != nil {
		a.logger.Warn("Failed to record window event",
			zap.String("subscription_id", subID),
			zap.Error(err),
		)
	}
}

// RecordFailure records a terminal failed delivery
func (a *Aggregator) RecordFailure(ctx context.Context, subID, attemptID string) {
	a.incr(ctx, subID, fieldTotalEvents, 1)
	a.incr(ctx, subID, fieldFailed, 1)
	a.incr(ctx, subID, fieldPending, -1)

	if err := a.store.RecordWindowEvent(ctx, subID, attemptID, time.Now()); err != nil {
		a.logger.Warn("Failed to record window event",
			zap.String("subscription_id", subID),
			zap.Error(err),
		)
	}
}

// RecordRetry records a retrying (non-terminal) outcome. The attempt stays
// pending; only the event total moves.
func (a *Aggregator) RecordRetry(ctx context.Context, subID string) {
	a.incr(ctx, subID, fieldTotalEvents, 1)
}

// Get returns the stats for a subscription. Unknown subscriptions return the
// zeroed structure, never an error.
func (a *Aggregator) Get(ctx context.Context, subID string) (*models.DeliveryStats, error) {
	fields, err := a.store.StatsFields(ctx, subID)
	if err != nil {
		return nil, err
	}

	out := &models.DeliveryStats{
		WebhookID:            subID,
		TotalEvents:          parseField(fields, fieldTotalEvents),
		SuccessfulDeliveries: parseField(fields, fieldSuccessful),
		FailedDeliveries:     parseField(fields, fieldFailed),
		PendingDeliveries:    parseField(fields, fieldPending),
	}
	if out.PendingDeliveries < 0 {
		out.PendingDeliveries = 0
	}

	if out.SuccessfulDeliveries > 0 {
		sum := parseField(fields, fieldResponseTimeSum)
		out.AverageResponseTimeMs = float64(sum) / float64(out.SuccessfulDeliveries)
	}

	terminal := out.SuccessfulDeliveries + out.FailedDeliveries
	if terminal > 0 {
		out.SuccessRatePercentage = 100 * float64(out.SuccessfulDeliveries) / float64(terminal)
	}

	now := time.Now()
	out.EventsLast24h = a.countWindow(ctx, subID, now.Add(-24*time.Hour))
	out.EventsLast7d = a.countWindow(ctx, subID, now.Add(-7*24*time.Hour))
	out.EventsLast30d = a.countWindow(ctx, subID, now.Add(-30*24*time.Hour))

	return out, nil
}

func (a *Aggregator) incr(ctx context.Context, subID, field string, delta int64) {
	if err := a.store.IncrStat(ctx, subID, field, delta); err != nil {
		a.logger.Warn("Failed to increment stat counter",
			zap.String("subscription_id", subID),
			zap.String("field", field),
			zap.Error(err),
		)
	}
}

func (a *Aggregator) countWindow(ctx context.Context, subID string, since time.Time) int64 {
	count, err := a.store.CountWindow(ctx, subID, since)
	if err != nil {
		a.logger.Warn("Failed to count window events",
			zap.String("subscription_id", subID),
			zap.Error(err),
		)
		return 0
	}
	return count
}

func parseField(fields map[string]string, name string) int64 {
	val, ok := fields[name]
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
