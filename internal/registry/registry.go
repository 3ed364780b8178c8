// Package registry implements CRUD over webhook subscriptions, including the
// owner index and per-event-type indexes. Index memberships always mirror a
// subscription's current events set; both are updated together.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/config"
	"github.com/marminbh/webhook-engine/internal/models"
	"github.com/marminbh/webhook-engine/internal/store"
)

// Registry manages webhook subscription records and their indexes
type Registry struct {
	store    *store.Client
	defaults config.EngineConfig
	logger   *zap.Logger
}

// NewRegistry creates a registry with engine defaults applied at register time
func NewRegistry(st *store.Client, defaults config.EngineConfig, logger *zap.Logger) *Registry {
	return &Registry{
		store:    st,
		defaults: defaults,
		logger:   logger,
	}
}

// Register validates and persists a new subscription, filling in the
// generated id, a random secret when none was supplied, policy defaults, and
// timestamps. The owner index and every event-type index are updated in the
// same call.
func (r *Registry) Register(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if sub.OwnerID == "" {
		return nil, models.NewValidationError("owner_id", "must not be empty")
	}
	if sub.Name == "" {
		return nil, models.NewValidationError("name", "must not be empty")
	}
	if err := validateURL(sub.URL); err != nil {
		return nil, err
	}
	if len(sub.Events) == 0 {
		return nil, models.NewValidationError("events", "at least one event type is required")
	}

	now := time.Now().UTC()
	sub.ID = uuid.New().String()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	sub.Status = models.SubscriptionActive

	if sub.Secret == "" {
		secret, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}
		sub.Secret = secret
	}
	if sub.TimeoutSeconds <= 0 {
		sub.TimeoutSeconds = r.defaults.DefaultTimeout
	}
	if sub.RetryAttempts <= 0 {
		sub.RetryAttempts = r.defaults.DefaultMaxAttempts
	}
	if sub.RetryDelaySeconds <= 0 {
		sub.RetryDelaySeconds = r.defaults.DefaultRetryDelay
	}

	// Record and index memberships land in one transaction
	if err := r.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to persist subscription: %w", err)
	}

	r.logger.Info("Registered webhook subscription",
		zap.String("subscription_id", sub.ID),
		zap.String("owner_id", sub.OwnerID),
		zap.Strings("events", sub.Events),
	)
	return sub, nil
}

// Get loads a subscription by id
func (r *Registry) Get(ctx context.Context, id string) (*models.Subscription, error) {
	return r.store.GetSubscription(ctx, id)
}

// Update applies the non-nil fields of upd to the stored subscription after
// an ownership check. When the events set changes, index memberships are
// reconciled in the same transaction as the record write.
func (r *Registry) Update(ctx context.Context, id, ownerID string, upd *models.SubscriptionUpdate) (*models.Subscription, error) {
	sub, err := r.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID != ownerID {
		return nil, models.ErrNotAuthorized
	}

	if upd.URL != nil {
		if err := validateURL(*upd.URL); err != nil {
			return nil, err
		}
		sub.URL = *upd.URL
	}
	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, models.NewValidationError("name", "must not be empty")
		}
		sub.Name = *upd.Name
	}
	if upd.Description != nil {
		sub.Description = *upd.Description
	}
	if upd.Secret != nil && *upd.Secret != "" {
		sub.Secret = *upd.Secret
	}
	if upd.Filters != nil {
		sub.Filters = upd.Filters
	}
	if upd.Headers != nil {
		sub.Headers = upd.Headers
	}
	if upd.TimeoutSeconds != nil && *upd.TimeoutSeconds > 0 {
		sub.TimeoutSeconds = *upd.TimeoutSeconds
	}
	if upd.RetryAttempts != nil && *upd.RetryAttempts > 0 {
		sub.RetryAttempts = *upd.RetryAttempts
	}
	if upd.RetryDelaySeconds != nil && *upd.RetryDelaySeconds > 0 {
		sub.RetryDelaySeconds = *upd.RetryDelaySeconds
	}
	if upd.ExponentialBackoff != nil {
		sub.ExponentialBackoff = *upd.ExponentialBackoff
	}
	if upd.Status != nil {
		if *upd.Status != models.SubscriptionActive && *upd.Status != models.SubscriptionPaused {
			return nil, models.NewValidationError("status", "must be active or paused")
		}
		sub.Status = *upd.Status
	}
	if upd.ProjectIDs != nil {
		sub.ProjectIDs = upd.ProjectIDs
	}
	if upd.Tags != nil {
		sub.Tags = upd.Tags
	}

	var removedEvents []string
	if upd.Events != nil {
		if len(upd.Events) == 0 {
			return nil, models.NewValidationError("events", "at least one event type is required")
		}
		kept := make(map[string]bool, len(upd.Events))
		for _, eventType := range upd.Events {
			kept[eventType] = true
		}
		for _, eventType := range sub.Events {
			if !kept[eventType] {
				removedEvents = append(removedEvents, eventType)
			}
		}
		sub.Events = upd.Events
	}

	sub.UpdatedAt = time.Now().UTC()
	// Record write and index reconciliation land in one transaction
	if err := r.store.UpdateSubscription(ctx, sub, removedEvents); err != nil {
		return nil, fmt.Errorf("failed to persist subscription: %w", err)
	}

	r.logger.Info("Updated webhook subscription",
		zap.String("subscription_id", sub.ID),
		zap.String("owner_id", ownerID),
	)
	return sub, nil
}

// Delete removes a subscription after an ownership check, cascading to the
// owner index, every event-type index, history, and stats
func (r *Registry) Delete(ctx context.Context, id, ownerID string) error {
	sub, err := r.store.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if sub.OwnerID != ownerID {
		return models.ErrNotAuthorized
	}

	if err := r.store.DeleteSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	r.logger.Info("Deleted webhook subscription",
		zap.String("subscription_id", id),
		zap.String("owner_id", ownerID),
	)
	return nil
}

// List returns one page of an owner's subscriptions, newest first
func (r *Registry) List(ctx context.Context, ownerID string, page, pageSize int) ([]*models.Subscription, int, bool, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 25
	}

	ids, err := r.store.OwnerSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, 0, false, err
	}

	subs := make([]*models.Subscription, 0, len(ids))
	for _, id := range ids {
		sub, err := r.store.GetSubscription(ctx, id)
		if err == models.ErrNotFound {
			// Record expired under its TTL but the index entry lingered
			continue
		} else if err != nil {
			return nil, 0, false, err
		}
		subs = append(subs, sub)
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})

	total := len(subs)
	start := (page - 1) * pageSize
	if start >= total {
		return []*models.Subscription{}, total, false, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return subs[start:end], total, end < total, nil
}

// validateURL requires a well-formed absolute http(s) URL
func validateURL(raw string) error {
	if raw == "" {
		return models.NewValidationError("url", "must not be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return models.NewValidationError("url", "must be a well-formed URL")
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return models.NewValidationError("url", "must be an absolute http(s) URL")
	}
	return nil
}

// generateSecret returns a random 256-bit secret, hex encoded
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
