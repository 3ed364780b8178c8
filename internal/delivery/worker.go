// Package delivery implements the delivery queue, the worker pool that
// drains it, and the outbound HTTP dispatch with outcome classification.
// Every error on this path is contained here: delivery failures are only
// observable through stats and history, never thrown back at the publisher.
package delivery

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/metrics"
	"github.com/marminbh/webhook-engine/internal/models"
	"github.com/marminbh/webhook-engine/internal/stats"
	"github.com/marminbh/webhook-engine/internal/store"
)

// Pool is a fixed set of long-running delivery workers sharing one queue
type Pool struct {
	queue          *Queue
	store          *store.Client
	stats          *stats.Aggregator
	logger         *zap.Logger
	client         *http.Client
	workerCount    int
	dequeueTimeout time.Duration
	wg             sync.WaitGroup
}

// NewPool creates a worker pool. The shared HTTP client carries no timeout
// of its own; each dispatch is bounded by the attempt's subscription timeout.
func NewPool(
	queue *Queue,
	st *store.Client,
	agg *stats.Aggregator,
	workerCount int,
	dequeueTimeout time.Duration,
	logger *zap.Logger,
) *Pool {
	if workerCount <= 0 {
		workerCount = 3
	}
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5 * time.Second
	}
	return &Pool{
		queue:          queue,
		store:          st,
		stats:          agg,
		logger:         logger,
		client:         &http.Client{},
		workerCount:    workerCount,
		dequeueTimeout: dequeueTimeout,
	}
}

// Start launches the workers. They run until ctx is cancelled; Wait blocks
// until all of them have drained out.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("Delivery workers started",
		zap.Int("worker_count", p.workerCount),
		zap.Duration("dequeue_timeout", p.dequeueTimeout),
	)
}

// Wait blocks until every worker has exited
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.logger.With(zap.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			log.Info("Delivery worker stopping")
			return
		default:
		}

		attempt, ok := p.queue.Receive(ctx, p.dequeueTimeout)
		if !ok {
			continue
		}
		p.process(ctx, log, attempt)
	}
}

// process runs one dispatch and applies the resulting state transition.
// Each transition is a single write, so cancellation mid-flight never leaves
// an attempt half-applied.
func (p *Pool) process(ctx context.Context, log *zap.Logger, attempt *models.DeliveryAttempt) {
	now := time.Now().UTC()
	attempt.Status = models.DeliveryInFlight
	attempt.AttemptedAt = &now

	reqCtx, cancel := context.WithTimeout(ctx, attempt.Timeout())
	result := Dispatch(reqCtx, p.client, attempt)
	cancel()

	attempt.ResponseCode = result.HTTPStatus
	attempt.ResponseTimeMs = result.LatencyMs
	metrics.DeliveryDuration.Observe(float64(result.LatencyMs) / 1000.0)

	outcome := ClassifyOutcome(
		result,
		attempt.AttemptCount,
		attempt.MaxAttempts,
		attempt.RetryDelay(),
		attempt.ExponentialBackoff,
		time.Now().UTC(),
	)

	switch outcome.Status {
	case models.DeliverySuccess:
		p.complete(ctx, log, attempt, models.DeliverySuccess, nil)
		p.stats.RecordSuccess(ctx, attempt.SubscriptionID, attempt.ID, result.LatencyMs)
		metrics.Deliveries.WithLabelValues("success").Inc()
		log.Info("Webhook delivery succeeded",
			zap.String("attempt_id", attempt.ID),
			zap.String("subscription_id", attempt.SubscriptionID),
			zap.Int("attempt_count", attempt.AttemptCount),
			zap.Intp("http_status", result.HTTPStatus),
			zap.Int("latency_ms", result.LatencyMs),
		)

	case models.DeliveryRetrying:
		attempt.AttemptCount++
		attempt.Status = models.DeliveryRetrying
		attempt.NextRetryAt = &outcome.NextRetryAt
		attempt.LastError = outcome.LastError

		if err := p.store.AddRetry(ctx, attempt, outcome.NextRetryAt); err != nil {
			// Could not schedule the retry; close the attempt out rather
			// than lose track of it
			log.Error("Failed to schedule retry, marking attempt failed",
				zap.String("attempt_id", attempt.ID),
				zap.Error(err),
			)
			p.complete(ctx, log, attempt, models.DeliveryFailed, outcome.LastError)
			p.stats.RecordFailure(ctx, attempt.SubscriptionID, attempt.ID)
			metrics.Deliveries.WithLabelValues("failed").Inc()
			return
		}

		p.stats.RecordRetry(ctx, attempt.SubscriptionID)
		metrics.Deliveries.WithLabelValues("retrying").Inc()
		metrics.RetriesScheduled.Inc()
		log.Info("Webhook delivery will be retried",
			zap.String("attempt_id", attempt.ID),
			zap.String("subscription_id", attempt.SubscriptionID),
			zap.Int("attempt_count", attempt.AttemptCount),
			zap.Time("next_retry_at", outcome.NextRetryAt),
			zap.Stringp("last_error", outcome.LastError),
		)

	case models.DeliveryFailed:
		p.complete(ctx, log, attempt, models.DeliveryFailed, outcome.LastError)
		p.stats.RecordFailure(ctx, attempt.SubscriptionID, attempt.ID)
		metrics.Deliveries.WithLabelValues("failed").Inc()
		log.Warn("Webhook delivery failed",
			zap.String("attempt_id", attempt.ID),
			zap.String("subscription_id", attempt.SubscriptionID),
			zap.Int("attempt_count", attempt.AttemptCount),
			zap.Stringp("last_error", outcome.LastError),
		)
	}
}

// complete applies a terminal status and appends the attempt to the bounded
// delivery history
func (p *Pool) complete(ctx context.Context, log *zap.Logger, attempt *models.DeliveryAttempt, status models.DeliveryStatus, lastError *string) {
	now := time.Now().UTC()
	attempt.Status = status
	attempt.CompletedAt = &now
	attempt.NextRetryAt = nil
	if lastError != nil {
		attempt.LastError = lastError
	}

	if err := p.store.AppendHistory(ctx, attempt.SubscriptionID, attempt); err != nil {
		log.Warn("Failed to append delivery history",
			zap.String("attempt_id", attempt.ID),
			zap.String("subscription_id", attempt.SubscriptionID),
			zap.Error(err),
		)
	}
}
