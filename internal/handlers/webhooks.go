// Package handlers exposes the webhook engine over HTTP
package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/engine"
	"github.com/marminbh/webhook-engine/internal/models"
)

const ownerHeader = "X-Owner-ID"

// WebhooksHandler handles subscription management endpoints
type WebhooksHandler struct {
	Engine *engine.Engine
	Logger *zap.Logger
}

// NewWebhooksHandler creates a webhooks handler with dependencies
func NewWebhooksHandler(eng *engine.Engine, logger *zap.Logger) *WebhooksHandler {
	return &WebhooksHandler{
		Engine: eng,
		Logger: logger,
	}
}

// ListResponse is the paginated response for GET /webhooks
type ListResponse struct {
	Webhooks []*models.Subscription `json:"webhooks"`
	Total    int                    `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
	HasMore  bool                   `json:"has_more"`
}

// Register handles POST /webhooks
func (h *WebhooksHandler) Register(c *fiber.Ctx) error {
	owner := c.Get(ownerHeader)
	if owner == "" {
		return badRequest(c, ownerHeader+" header is required")
	}

	var sub models.Subscription
	if err := c.BodyParser(&sub); err != nil {
		return badRequest(c, "request body is not valid JSON")
	}
	sub.OwnerID = owner

	created, err := h.Engine.Registry.Register(c.Context(), &sub)
	if err != nil {
		return h.mapError(c, err, "")
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// Get handles GET /webhooks/:id
func (h *WebhooksHandler) Get(c *fiber.Ctx) error {
	owner := c.Get(ownerHeader)
	if owner == "" {
		return badRequest(c, ownerHeader+" header is required")
	}
	id := c.Params("id")

	sub, err := h.Engine.Registry.Get(c.Context(), id)
	if err != nil {
		return h.mapError(c, err, id)
	}
	if sub.OwnerID != owner {
		// Do not reveal that the subscription exists
		return notFound(c)
	}

	return c.JSON(sub)
}

// Update handles PATCH /webhooks/:id
func (h *WebhooksHandler) Update(c *fiber.Ctx) error {
	owner := c.Get(ownerHeader)
	if owner == "" {
		return badRequest(c, ownerHeader+" header is required")
	}
	id := c.Params("id")

	var upd models.SubscriptionUpdate
	if err := c.BodyParser(&upd); err != nil {
		return badRequest(c, "request body is not valid JSON")
	}

	sub, err := h.Engine.Registry.Update(c.Context(), id, owner, &upd)
	if err != nil {
		return h.mapError(c, err, id)
	}

	return c.JSON(sub)
}

// Delete handles DELETE /webhooks/:id
func (h *WebhooksHandler) Delete(c *fiber.Ctx) error {
	owner := c.Get(ownerHeader)
	if owner == "" {
		return badRequest(c, ownerHeader+" header is required")
	}
	id := c.Params("id")

	if err := h.Engine.Registry.Delete(c.Context(), id, owner); err != nil {
		return h.mapError(c, err, id)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// List handles GET /webhooks
func (h *WebhooksHandler) List(c *fiber.Ctx) error {
	owner := c.Get(ownerHeader)
	if owner == "" {
		return badRequest(c, ownerHeader+" header is required")
	}

	page, err := positiveQueryInt(c, "page", 1)
	if err != nil {
		return badRequest(c, "page must be a positive integer")
	}
	pageSize, err := positiveQueryInt(c, "page_size", 25)
	if err != nil || pageSize > 100 {
		return badRequest(c, "page_size must be between 1 and 100")
	}

	subs, total, hasMore, err := h.Engine.Registry.List(c.Context(), owner, page, pageSize)
	if err != nil {
		h.Logger.Error("Failed to list subscriptions",
			zap.String("owner_id", owner),
			zap.Error(err),
		)
		return internalError(c, "failed to list webhooks")
	}

	if subs == nil {
		subs = []*models.Subscription{}
	}
	return c.JSON(ListResponse{
		Webhooks: subs,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  hasMore,
	})
}

// Stats handles GET /webhooks/:id/stats
func (h *WebhooksHandler) Stats(c *fiber.Ctx) error {
	owner := c.Get(ownerHeader)
	if owner == "" {
		return badRequest(c, ownerHeader+" header is required")
	}
	id := c.Params("id")

	sub, err := h.Engine.Registry.Get(c.Context(), id)
	if err != nil {
		return h.mapError(c, err, id)
	}
	if sub.OwnerID != owner {
		return notFound(c)
	}

	stats, err := h.Engine.Stats.Get(c.Context(), id)
	if err != nil {
		h.Logger.Error("Failed to load delivery stats",
			zap.String("subscription_id", id),
			zap.Error(err),
		)
		return internalError(c, "failed to load stats")
	}

	return c.JSON(stats)
}

// Deliveries handles GET /webhooks/:id/deliveries
func (h *WebhooksHandler) Deliveries(c *fiber.Ctx) error {
	owner := c.Get(ownerHeader)
	if owner == "" {
		return badRequest(c, ownerHeader+" header is required")
	}
	id := c.Params("id")

	limit, err := positiveQueryInt(c, "limit", 50)
	if err != nil || limit > 1000 {
		return badRequest(c, "limit must be between 1 and 1000")
	}

	sub, err := h.Engine.Registry.Get(c.Context(), id)
	if err != nil {
		return h.mapError(c, err, id)
	}
	if sub.OwnerID != owner {
		return notFound(c)
	}

	history, err := h.Engine.Store.History(c.Context(), id, limit)
	if err != nil {
		h.Logger.Error("Failed to load delivery history",
			zap.String("subscription_id", id),
			zap.Error(err),
		)
		return internalError(c, "failed to load deliveries")
	}

	if history == nil {
		history = []*models.DeliveryAttempt{}
	}
	return c.JSON(fiber.Map{"deliveries": history})
}

// mapError translates registry errors to HTTP responses
func (h *WebhooksHandler) mapError(c *fiber.Ctx, err error, id string) error {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr):
		return badRequest(c, vErr.Error())
	case errors.Is(err, models.ErrNotFound):
		return notFound(c)
	case errors.Is(err, models.ErrNotAuthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "you do not own this webhook",
		})
	default:
		h.Logger.Error("Webhook operation failed",
			zap.String("subscription_id", id),
			zap.Error(err),
		)
		return internalError(c, "webhook operation failed")
	}
}

func positiveQueryInt(c *fiber.Ctx, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("not a positive integer")
	}
	return parsed, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "webhook not found"})
}

func internalError(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
}
