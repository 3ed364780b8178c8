package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/delivery"
	"github.com/marminbh/webhook-engine/internal/engine"
	"github.com/marminbh/webhook-engine/internal/models"
)

// EventsHandler handles event publishing and test deliveries
type EventsHandler struct {
	Engine *engine.Engine
	Logger *zap.Logger
}

// NewEventsHandler creates an events handler with dependencies
func NewEventsHandler(eng *engine.Engine, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		Engine: eng,
		Logger: logger,
	}
}

// PublishResponse reports the fan-out result for POST /events
type PublishResponse struct {
	EventID     string `json:"event_id"`
	DeliveredTo int    `json:"delivered_to"`
}

// Publish handles POST /events. The body is an event envelope keyed by
// event_type.
func (h *EventsHandler) Publish(c *fiber.Ctx) error {
	var env models.EventEnvelope
	if err := c.BodyParser(&env); err != nil {
		return badRequest(c, "request body is not valid JSON")
	}

	event := env.Event()
	delivered, err := h.Engine.Publisher.Publish(c.Context(), event)
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			return badRequest(c, vErr.Error())
		}
		h.Logger.Error("Failed to publish event",
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return internalError(c, "failed to publish event")
	}

	return c.Status(fiber.StatusAccepted).JSON(PublishResponse{
		EventID:     event.ID,
		DeliveredTo: delivered,
	})
}

// TestDelivery handles POST /webhooks/test. The delivery goes straight to
// the caller-supplied URL and records nothing.
func (h *EventsHandler) TestDelivery(c *fiber.Ctx) error {
	var req delivery.TestRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "request body is not valid JSON")
	}
	if req.URL == "" {
		return badRequest(c, "url is required")
	}
	if req.EventType == "" {
		req.EventType = "test.ping"
	}

	result := delivery.SendTest(c.Context(), &req)
	return c.JSON(result)
}
