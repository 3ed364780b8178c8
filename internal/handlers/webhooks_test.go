package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/config"
	"github.com/marminbh/webhook-engine/internal/engine"
	"github.com/marminbh/webhook-engine/internal/models"
	"github.com/marminbh/webhook-engine/internal/store"
)

func setupAPITest(t *testing.T) (*fiber.App, *engine.Engine, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	st, err := store.Connect(&config.RedisConfig{URL: "redis://" + mr.Addr()}, nil)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create store client: %v", err)
	}

	eng := engine.New(st, config.EngineConfig{
		WorkerCount:        1,
		QueueCapacity:      16,
		DequeueTimeout:     50 * time.Millisecond,
		SweepInterval:      time.Second,
		DefaultTimeout:     30,
		DefaultMaxAttempts: 3,
		DefaultRetryDelay:  60,
	}, zap.NewNop())

	app := fiber.New()
	setupTestRoutes(app, eng, st)

	cleanup := func() {
		st.Close()
		mr.Close()
	}

	return app, eng, cleanup
}

// setupTestRoutes mirrors the production route table minus the metrics
// endpoint
func setupTestRoutes(app *fiber.App, eng *engine.Engine, st *store.Client) {
	logger := zap.NewNop()
	webhooks := NewWebhooksHandler(eng, logger)
	events := NewEventsHandler(eng, logger)
	health := NewHealthHandler(st, eng.Queue)

	app.Get("/health", health.HealthCheck)
	api := app.Group("/api/v1")
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

func doJSON(t *testing.T, app *fiber.App, method, path, owner string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, path, err)
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	resp.Body.Close()
	return resp, respBody
}

func registerWebhook(t *testing.T, app *fiber.App, owner string) *models.Subscription {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/webhooks", owner, map[string]interface{}{
		"name":   "orders hook",
		"url":    "https://example.com/hooks/orders",
		"events": []string{"order.created"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Register status = %d, body %s", resp.StatusCode, body)
	}

	var sub models.Subscription
	if err := json.Unmarshal(body, &sub); err != nil {
		t.Fatalf("Failed to decode subscription: %v", err)
	}
	return &sub
}

func TestRegisterWebhook(t *testing.T) {
	app, _, cleanup := setupAPITest(t)
	defer cleanup()

	sub := registerWebhook(t, app, "owner-1")

	if sub.ID == "" {
		t.Error("Registered webhook should have an ID")
	}
	if sub.Secret == "" {
		t.Error("Registered webhook should have a generated secret")
	}
	if sub.OwnerID != "owner-1" {
		t.Errorf("OwnerID = %q, want owner-1", sub.OwnerID)
	}
	if sub.Status != models.SubscriptionActive {
		t.Errorf("Status = %q, want active", sub.Status)
	}
	if sub.RetryAttempts != 3 || sub.TimeoutSeconds != 30 {
		t.Error("Registered webhook should carry policy defaults")
	}
}

func TestRegisterRequiresOwnerHeader(t *testing.T) {
	app, _, cleanup := setupAPITest(t)
	defer cleanup()

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/webhooks", "", map[string]interface{}{
		"name":   "hook",
		"url":    "https://example.com/h",
		"events": []string{"a"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400 without X-Owner-ID", resp.StatusCode)
	}
}

func TestRegisterValidation(t *testing.T) {
	app, _, cleanup := setupAPITest(t)
	defer cleanup()

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/webhooks", "owner-1", map[string]interface{}{
		"name":   "hook",
		"url":    "not-a-url",
		"events": []string{"a"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d for invalid URL, body %s", resp.StatusCode, body)
	}
}

func TestGetWebhookScopedToOwner(t *testing.T) {
	app, _, cleanup := setupAPITest(t)
	defer cleanup()

	sub := registerWebhook(t, app, "owner-1")

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/webhooks/"+sub.ID, "owner-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Owner GET status = %d, want 200", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/webhooks/"+sub.ID, "owner-2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Foreign GET status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/webhooks/does-not-exist", "owner-1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Unknown GET status = %d, want 404", resp.StatusCode)
	}
}

func TestUpdateAndDeleteWebhook(t *testing.T) {
	app, _, cleanup := setupAPITest(t)
	defer cleanup()

	sub := registerWebhook(t, app, "owner-1")

	resp, body := doJSON(t, app, http.MethodPatch, "/api/v1/webhooks/"+sub.ID, "owner-1", map[string]interface{}{
		"name":   "renamed hook",
		"status": "paused",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Update status = %d, body %s", resp.StatusCode, body)
	}
	var updated models.Subscription
	if err := json.Unmarshal(body, &updated); err != nil {
		t.Fatalf("Failed to decode updated subscription: %v", err)
	}
	if updated.Name != "renamed hook" || updated.Status != models.SubscriptionPaused {
		t.Errorf("Update not applied: %+v", updated)
	}

	// A different owner must not be able to modify or delete it
	resp, _ = doJSON(t, app, http.MethodPatch, "/api/v1/webhooks/"+sub.ID, "owner-2", map[string]interface{}{
		"name": "hijacked",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Foreign update status = %d, want 403", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/webhooks/"+sub.ID, "owner-1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Delete status = %d, want 204", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/webhooks/"+sub.ID, "owner-1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestListWebhooksPagination(t *testing.T) {
	app, _, cleanup := setupAPITest(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		resp, body := doJSON(t, app, http.MethodPost, "/api/v1/webhooks", "owner-1", map[string]interface{}{
			"name":   fmt.Sprintf("hook %d", i),
			"url":    fmt.Sprintf("https://example.com/hooks/%d", i),
			"events": []string{"order.created"},
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("Register status = %d, body %s", resp.StatusCode, body)
		}
	}

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/webhooks?page=1&page_size=2", "owner-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("List status = %d, body %s", resp.StatusCode, body)
	}

	var list ListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("Failed to decode list response: %v", err)
	}
	if list.Total != 3 || len(list.Webhooks) != 2 || !list.HasMore {
		t.Errorf("List = total %d, page len %d, has_more %v; want 3/2/true",
			list.Total, len(list.Webhooks), list.HasMore)
	}
}

func TestPublishEventEndpoint(t *testing.T) {
	app, _, cleanup := setupAPITest(t)
	defer cleanup()

	registerWebhook(t, app, "owner-1")

	// Producers key the type field event_type on the wire
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/events", "", map[string]interface{}{
		"event_type": "order.created",
		"data":       map[string]interface{}{"order_id": "ord-1"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Publish status = %d, body %s", resp.StatusCode, body)
	}

	var pub PublishResponse
	if err := json.Unmarshal(body, &pub); err != nil {
		t.Fatalf("Failed to decode publish response: %v", err)
	}
	if pub.EventID == "" {
		t.Error("Publish response should carry the assigned event id")
	}
	if pub.DeliveredTo != 1 {
		t.Errorf("delivered_to = %d, want 1", pub.DeliveredTo)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/events", "", map[string]interface{}{
		"data": map[string]interface{}{},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Publish without type status = %d, want 400", resp.StatusCode)
	}
}

func TestStatsEndpointZeroForNewWebhook(t *testing.T) {
	app, _, cleanup := setupAPITest(t)
	defer cleanup()

	sub := registerWebhook(t, app, "owner-1")

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/webhooks/"+sub.ID+"/stats", "owner-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Stats status = %d, body %s", resp.StatusCode, body)
	}

	var stats models.DeliveryStats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.WebhookID != sub.ID {
		t.Errorf("Stats webhook_id = %q, want %q", stats.WebhookID, sub.ID)
	}
	if stats.TotalEvents != 0 || stats.SuccessRatePercentage != 0 {
		t.Errorf("New webhook should have zero stats: %+v", stats)
	}
}

func TestDeliveriesEndpointEmpty(t *testing.T) {
	app, _, cleanup := setupAPITest(t)
	defer cleanup()

	sub := registerWebhook(t, app, "owner-1")

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/webhooks/"+sub.ID+"/deliveries", "owner-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Deliveries status = %d, body %s", resp.StatusCode, body)
	}

	var out struct {
		Deliveries []*models.DeliveryAttempt `json:"deliveries"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("Failed to decode deliveries: %v", err)
	}
	if len(out.Deliveries) != 0 {
		t.Errorf("New webhook should have no delivery history, got %d", len(out.Deliveries))
	}
}

func TestHealthEndpoint(t *testing.T) {
	app, _, cleanup := setupAPITest(t)
	defer cleanup()

	resp, body := doJSON(t, app, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Health status = %d, body %s", resp.StatusCode, body)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if health.Status != "healthy" || health.Services["redis"] != "healthy" {
		t.Errorf("Health = %+v", health)
	}
}
