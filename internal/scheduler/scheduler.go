// Package scheduler re-enqueues RETRYING delivery attempts once their
// next_retry_at has passed. Attempts wait in the store's retry set, scored
// by retry time; a periodic sweep moves every due entry back onto the
// delivery queue.
package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/delivery"
	"github.com/marminbh/webhook-engine/internal/models"
	"github.com/marminbh/webhook-engine/internal/store"
)

// Scheduler runs the periodic retry sweep
type Scheduler struct {
	store    *store.Client
	queue    *delivery.Queue
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

// NewScheduler creates a scheduler sweeping at the given interval
func NewScheduler(st *store.Client, queue *delivery.Queue, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scheduler{
		store:    st,
		queue:    queue,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Retry scheduler started",
			zap.Duration("sweep_interval", s.interval),
		)

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Retry scheduler stopping")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited
func (s *Scheduler) Wait() {
	<-s.done
}

// Sweep pops every retry entry due at or before now and moves it back onto
// the delivery queue. A malformed entry is dropped and logged; an enqueue
// failure pushes the attempt back for the next sweep. Nothing in here may
// abort the loop over the remaining entries.
func (s *Scheduler) Sweep(ctx context.Context) {
	entries, err := s.store.PopDueRetries(ctx, time.Now())
	if err != nil {
		s.logger.Error("Retry sweep failed to pop due entries", zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	requeued := 0
	for _, raw := range entries {
		var attempt models.DeliveryAttempt
		if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
			// Corrupt entry: already removed from the set, drop it
			s.logger.Error("Dropping malformed retry entry",
				zap.String("raw", truncate(raw, 200)),
				zap.Error(err),
			)
			continue
		}

		// The attempt count was already incremented when the failure was
		// recorded; only the status reverts for dispatch
		attempt.Status = models.DeliveryPending
		attempt.NextRetryAt = nil

		if err := s.queue.Enqueue(&attempt); err != nil {
			s.logger.Warn("Delivery queue full, deferring retry to next sweep",
				zap.String("attempt_id", attempt.ID),
				zap.Error(err),
			)
			if err := s.store.AddRetry(ctx, &attempt, time.Now().Add(s.interval)); err != nil {
				s.logger.Error("Failed to defer retry entry",
					zap.String("attempt_id", attempt.ID),
					zap.Error(err),
				)
			}
			continue
		}
		requeued++
	}

	s.logger.Debug("Retry sweep finished",
		zap.Int("due", len(entries)),
		zap.Int("requeued", requeued),
	)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
