package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/marminbh/webhook-engine/internal/delivery"
	"github.com/marminbh/webhook-engine/internal/store"
)

// HealthHandler reports process and dependency health
type HealthHandler struct {
	Store *store.Client
	Queue *delivery.Queue
}

// NewHealthHandler creates a health handler
func NewHealthHandler(st *store.Client, queue *delivery.Queue) *HealthHandler {
	return &HealthHandler{Store: st, Queue: queue}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	QueueDepth int               `json:"queue_depth"`
	Services   map[string]string `json:"services"`
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	status := "healthy"
	code := fiber.StatusOK

	if err := h.Store.HealthCheck(ctx); err != nil {
		services["redis"] = "unhealthy: " + err.Error()
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	} else {
		services["redis"] = "healthy"
	}

	return c.Status(code).JSON(HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		QueueDepth: h.Queue.Len(),
		Services:   services,
	})
}
