package routes

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marminbh/webhook-engine/internal/handlers"
)

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(
	app *fiber.App,
	webhooks *handlers.WebhooksHandler,
	events *handlers.EventsHandler,
	health *handlers.HealthHandler,
) {
	app.Get("/health", health.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	{
		api.Post("/webhooks", webhooks.Register)
		api.Get("/webhooks", webhooks.List)
		api.Post("/webhooks/test", events.TestDelivery)
		api.Get("/webhooks/:id", webhooks.Get)
		api.Patch("/webhooks/:id", webhooks.Update)
		api.Delete("/webhooks/:id", webhooks.Delete)
		api.Get("/webhooks/:id/stats", webhooks.Stats)
		api.Get("/webhooks/:id/deliveries", webhooks.Deliveries)

		api.Post("/events", events.Publish)
	}
}
