// Package engine assembles the webhook engine: store, registry, publisher,
// delivery queue, worker pool, retry scheduler, and stats. It owns their
// lifecycle so the HTTP layer and the message consumer only see one object.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/config"
	"github.com/marminbh/webhook-engine/internal/delivery"
	"github.com/marminbh/webhook-engine/internal/publisher"
	"github.com/marminbh/webhook-engine/internal/registry"
	"github.com/marminbh/webhook-engine/internal/scheduler"
	"github.com/marminbh/webhook-engine/internal/stats"
	"github.com/marminbh/webhook-engine/internal/store"
)

// Engine bundles every component of the webhook pipeline
type Engine struct {
	Store     *store.Client
	Registry  *registry.Registry
	Stats     *stats.Aggregator
	Publisher *publisher.Publisher
	Queue     *delivery.Queue

	pool      *delivery.Pool
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
	cancel    context.CancelFunc
}

// New wires the engine components together against a connected store
func New(st *store.Client, cfg config.EngineConfig, logger *zap.Logger) *Engine {
	queue := delivery.NewQueue(cfg.QueueCapacity)
	agg := stats.NewAggregator(st, logger.Named("stats"))

	return &Engine{
		Store:     st,
		Registry:  registry.NewRegistry(st, cfg, logger.Named("registry")),
		Stats:     agg,
		Publisher: publisher.NewPublisher(st, queue, agg, logger.Named("publisher")),
		Queue:     queue,
		pool:      delivery.NewPool(queue, st, agg, cfg.WorkerCount, cfg.DequeueTimeout, logger.Named("delivery")),
		scheduler: scheduler.NewScheduler(st, queue, cfg.SweepInterval, logger.Named("scheduler")),
		logger:    logger,
	}
}

// Start launches the delivery workers and the retry scheduler
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.pool.Start(runCtx)
	e.scheduler.Start(runCtx)
	e.logger.Info("Webhook engine started")
}

// Stop signals the workers and scheduler to stop and waits for them to
// drain. In-flight deliveries finish; queued attempts stay in the channel
// and are lost with the process.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.pool.Wait()
	e.scheduler.Wait()
	e.logger.Info("Webhook engine stopped")
}
