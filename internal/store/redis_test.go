package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/marminbh/webhook-engine/internal/config"
	"github.com/marminbh/webhook-engine/internal/models"
)

// setupStoreTest creates a miniredis instance and returns the client and a
// cleanup function
func setupStoreTest(t *testing.T) (*Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client, err := Connect(&config.RedisConfig{URL: "redis://" + mr.Addr()}, nil)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create store client: %v", err)
	}

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func testSubscription(id string) *models.Subscription {
	now := time.Now().UTC()
	return &models.Subscription{
		ID:                 id,
		OwnerID:            "owner-1",
		Name:               "test hook",
		URL:                "https://example.com/hook",
		Secret:             "s3cret",
		Events:             []string{"test.event"},
		TimeoutSeconds:     30,
		RetryAttempts:      3,
		RetryDelaySeconds:  60,
		ExponentialBackoff: true,
		Status:             models.SubscriptionActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestCreateAndGetSubscription(t *testing.T) {
	client, mr, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	sub := testSubscription("sub-1")

	if err := client.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}

	got, err := client.GetSubscription(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetSubscription returned error: %v", err)
	}
	if got.URL != sub.URL || got.OwnerID != sub.OwnerID {
		t.Errorf("Round-tripped subscription differs: got %+v", got)
	}

	// A 30-day TTL is set on the record
	ttl := mr.TTL(subscriptionKey("sub-1"))
	if ttl <= 0 || ttl > subscriptionTTL {
		t.Errorf("Expected TTL in (0, 30d], got %v", ttl)
	}
}

func TestGetSubscriptionNotFound(t *testing.T) {
	client, _, cleanup := setupStoreTest(t)
	defer cleanup()

	_, err := client.GetSubscription(context.Background(), "missing")
	if err != models.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCreateSubscriptionPopulatesIndexes(t *testing.T) {
	client, _, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	sub := testSubscription("sub-1")
	sub.Events = []string{"order.created", "order.updated"}

	if err := client.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}

	owned, err := client.OwnerSubscriptions(ctx, "owner-1")
	if err != nil {
		t.Fatalf("OwnerSubscriptions returned error: %v", err)
	}
	if len(owned) != 1 || owned[0] != "sub-1" {
		t.Errorf("Expected [sub-1], got %v", owned)
	}

	for _, eventType := range sub.Events {
		subs, err := client.EventSubscriptions(ctx, eventType)
		if err != nil {
			t.Fatalf("EventSubscriptions returned error: %v", err)
		}
		if len(subs) != 1 || subs[0] != "sub-1" {
			t.Errorf("Expected [sub-1] for %s, got %v", eventType, subs)
		}
	}
}

func TestUpdateSubscriptionReconcilesEventIndexes(t *testing.T) {
	client, _, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	sub := testSubscription("sub-1")
	sub.Events = []string{"order.created", "order.updated"}

	if err := client.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}

	// order.updated dropped, order.shipped added
	sub.Events = []string{"order.created", "order.shipped"}
	if err := client.UpdateSubscription(ctx, sub, []string{"order.updated"}); err != nil {
		t.Fatalf("UpdateSubscription returned error: %v", err)
	}

	got, err := client.GetSubscription(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetSubscription returned error: %v", err)
	}
	if len(got.Events) != 2 || got.Events[0] != "order.created" || got.Events[1] != "order.shipped" {
		t.Errorf("Unexpected events after update: %v", got.Events)
	}

	// Index memberships match the stored events set
	for _, eventType := range []string{"order.created", "order.shipped"} {
		subs, _ := client.EventSubscriptions(ctx, eventType)
		if len(subs) != 1 || subs[0] != "sub-1" {
			t.Errorf("Expected [sub-1] for %s, got %v", eventType, subs)
		}
	}
	dropped, _ := client.EventSubscriptions(ctx, "order.updated")
	if len(dropped) != 0 {
		t.Errorf("Expected empty index for dropped event type, got %v", dropped)
	}
}

func TestDeleteSubscriptionCascades(t *testing.T) {
	client, _, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	sub := testSubscription("sub-1")

	if err := client.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}
	if err := client.AppendHistory(ctx, "sub-1", &models.DeliveryAttempt{ID: "a-1"}); err != nil {
		t.Fatalf("AppendHistory returned error: %v", err)
	}

	if err := client.DeleteSubscription(ctx, sub); err != nil {
		t.Fatalf("DeleteSubscription returned error: %v", err)
	}

	if _, err := client.GetSubscription(ctx, "sub-1"); err != models.ErrNotFound {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	owned, _ := client.OwnerSubscriptions(ctx, "owner-1")
	if len(owned) != 0 {
		t.Errorf("Expected empty owner index after delete, got %v", owned)
	}
	subs, _ := client.EventSubscriptions(ctx, "test.event")
	if len(subs) != 0 {
		t.Errorf("Expected empty event index after delete, got %v", subs)
	}
	history, _ := client.History(ctx, "sub-1", 0)
	if len(history) != 0 {
		t.Errorf("Expected empty history after delete, got %d entries", len(history))
	}
}

func TestAppendHistoryTrimsToLimit(t *testing.T) {
	client, mr, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < historyLimit+50; i++ {
		attempt := &models.DeliveryAttempt{
			ID:             fmt.Sprintf("attempt-%d", i),
			SubscriptionID: "sub-1",
			Status:         models.DeliverySuccess,
			CreatedAt:      time.Now().UTC(),
		}
		if err := client.AppendHistory(ctx, "sub-1", attempt); err != nil {
			t.Fatalf("AppendHistory returned error: %v", err)
		}
	}

	history, err := client.History(ctx, "sub-1", 0)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(history) != historyLimit {
		t.Errorf("Expected history trimmed to %d entries, got %d", historyLimit, len(history))
	}

	// Newest entry first
	if history[0].ID != fmt.Sprintf("attempt-%d", historyLimit+49) {
		t.Errorf("Expected newest entry first, got %s", history[0].ID)
	}

	if ttl := mr.TTL(historyKey("sub-1")); ttl <= 0 || ttl > historyTTL {
		t.Errorf("Expected history TTL in (0, 7d], got %v", ttl)
	}
}

func TestRetrySetPopsOnlyDueEntries(t *testing.T) {
	client, _, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	due := &models.DeliveryAttempt{ID: "due", SubscriptionID: "sub-1"}
	future := &models.DeliveryAttempt{ID: "future", SubscriptionID: "sub-1"}

	if err := client.AddRetry(ctx, due, now.Add(-time.Second)); err != nil {
		t.Fatalf("AddRetry returned error: %v", err)
	}
	if err := client.AddRetry(ctx, future, now.Add(time.Hour)); err != nil {
		t.Fatalf("AddRetry returned error: %v", err)
	}

	entries, err := client.PopDueRetries(ctx, now)
	if err != nil {
		t.Fatalf("PopDueRetries returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 due entry, got %d", len(entries))
	}

	// The due entry was removed, the future one remains
	count, err := client.RetryCount(ctx)
	if err != nil {
		t.Fatalf("RetryCount returned error: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 entry remaining in retry set, got %d", count)
	}

	// A second sweep finds nothing
	entries, err = client.PopDueRetries(ctx, now)
	if err != nil {
		t.Fatalf("PopDueRetries returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no due entries on second sweep, got %d", len(entries))
	}
}

func TestStatsCountersAndWindows(t *testing.T) {
	client, _, cleanup := setupStoreTest(t)
	defer cleanup()

	ctx := context.Background()

	if err := client.IncrStat(ctx, "sub-1", "successful_deliveries", 2); err != nil {
		t.Fatalf("IncrStat returned error: %v", err)
	}
	if err := client.IncrStat(ctx, "sub-1", "failed_deliveries", 1); err != nil {
		t.Fatalf("IncrStat returned error: %v", err)
	}

	fields, err := client.StatsFields(ctx, "sub-1")
	if err != nil {
		t.Fatalf("StatsFields returned error: %v", err)
	}
	if fields["successful_deliveries"] != "2" || fields["failed_deliveries"] != "1" {
		t.Errorf("Unexpected stats fields: %v", fields)
	}

	now := time.Now()
	if err := client.RecordWindowEvent(ctx, "sub-1", "a-1", now); err != nil {
		t.Fatalf("RecordWindowEvent returned error: %v", err)
	}
	if err := client.RecordWindowEvent(ctx, "sub-1", "a-2", now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("RecordWindowEvent returned error: %v", err)
	}

	last24h, err := client.CountWindow(ctx, "sub-1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountWindow returned error: %v", err)
	}
	if last24h != 1 {
		t.Errorf("Expected 1 event in last 24h, got %d", last24h)
	}

	last7d, err := client.CountWindow(ctx, "sub-1", now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("CountWindow returned error: %v", err)
	}
	if last7d != 2 {
		t.Errorf("Expected 2 events in last 7d, got %d", last7d)
	}
}
