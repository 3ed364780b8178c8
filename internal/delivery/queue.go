package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/marminbh/webhook-engine/internal/metrics"
	"github.com/marminbh/webhook-engine/internal/models"
)

// ErrQueueFull is returned when the delivery queue is at capacity. The
// publisher treats this as a per-subscription enqueue failure: logged,
// counted, and skipped.
var ErrQueueFull = errors.New("delivery queue is full")

// Queue is the bounded FIFO channel of pending delivery attempts. Dequeues
// are destructive and exclusive, so no two workers ever process the same
// attempt concurrently.
type Queue struct {
	ch chan *models.DeliveryAttempt
}

// NewQueue creates a queue with the given capacity
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan *models.DeliveryAttempt, capacity)}
}

// Enqueue pushes an attempt without blocking. Publish must never wait for
// delivery, so saturation surfaces as ErrQueueFull instead of backpressure.
func (q *Queue) Enqueue(attempt *models.DeliveryAttempt) error {
	select {
	case q.ch <- attempt:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Receive waits up to timeout for an attempt. The bounded wait lets workers
// observe cancellation between messages. Returns false when the timeout
// elapsed or ctx was cancelled.
func (q *Queue) Receive(ctx context.Context, timeout time.Duration) (*models.DeliveryAttempt, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, false
	case <-timer.C:
		return nil, false
	case attempt := <-q.ch:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return attempt, true
	}
}

// Len returns the number of attempts currently waiting
func (q *Queue) Len() int {
	return len(q.ch)
}
