// Package store wraps the Redis backing store. All counter mutations go
// through atomic increment/set-add/set-remove primitives; application code
// never does read-modify-write against shared state.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/marminbh/webhook-engine/internal/config"
	"github.com/marminbh/webhook-engine/internal/models"
)

const (
	subscriptionTTL = 30 * 24 * time.Hour
	historyTTL      = 7 * 24 * time.Hour
	historyLimit    = 1000
	windowRetention = 30 * 24 * time.Hour
)

// Client is the typed Redis store behind the engine
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// Connect parses the Redis URL, applies connection timeouts, and verifies the
// connection with a ping
func Connect(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if logger != nil {
		logger.Info("Successfully connected to Redis",
			zap.String("addr", opts.Addr),
			zap.Int("db", opts.DB),
		)
	}

	return &Client{rdb: rdb, logger: logger}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck verifies Redis connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// CreateSubscription persists the record and its owner and event-type index
// memberships in a single MULTI/EXEC, so the record is never visible without
// its indexes
func (c *Client) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, subscriptionKey(sub.ID), data, subscriptionTTL)
	pipe.SAdd(ctx, ownerKey(sub.OwnerID), sub.ID)
	for _, eventType := range sub.Events {
		pipe.SAdd(ctx, eventIndexKey(eventType), sub.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// UpdateSubscription rewrites the record and reconciles event-type index
// memberships in a single MULTI/EXEC. removedEvents lists event types the
// subscription no longer carries; memberships for the current events set are
// re-added idempotently.
func (c *Client) UpdateSubscription(ctx context.Context, sub *models.Subscription, removedEvents []string) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, subscriptionKey(sub.ID), data, subscriptionTTL)
	for _, eventType := range removedEvents {
		pipe.SRem(ctx, eventIndexKey(eventType), sub.ID)
	}
	for _, eventType := range sub.Events {
		pipe.SAdd(ctx, eventIndexKey(eventType), sub.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetSubscription loads a record by id; returns models.ErrNotFound when the
// key is missing or expired
func (c *Client) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	data, err := c.rdb.Get(ctx, subscriptionKey(id)).Result()
	if err == redis.Nil {
		return nil, models.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var sub models.Subscription
	if err := json.Unmarshal([]byte(data), &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	return &sub, nil
}

// DeleteSubscription removes the record, its history and stats keys, and its
// owner and event-type index memberships in a single MULTI/EXEC
func (c *Client) DeleteSubscription(ctx context.Context, sub *models.Subscription) error {
	pipe := c.rdb.TxPipeline()
	pipe.SRem(ctx, ownerKey(sub.OwnerID), sub.ID)
	for _, eventType := range sub.Events {
		pipe.SRem(ctx, eventIndexKey(eventType), sub.ID)
	}
	pipe.Del(ctx,
		subscriptionKey(sub.ID),
		historyKey(sub.ID),
		statsKey(sub.ID),
		statsWindowKey(sub.ID),
	)
	_, err := pipe.Exec(ctx)
	return err
}

// OwnerSubscriptions returns the subscription ids registered by an owner
func (c *Client) OwnerSubscriptions(ctx context.Context, ownerID string) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	return ids, nil
}

// EventSubscriptions returns the subscription ids subscribed to an event type
func (c *Client) EventSubscriptions(ctx context.Context, eventType string) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, eventIndexKey(eventType)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	return ids, nil
}

// AppendHistory prepends an attempt record to the subscription's delivery
// history, trims it to the last 1000 entries, and refreshes the 7-day TTL
func (c *Client) AppendHistory(ctx context.Context, subID string, attempt *models.DeliveryAttempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery attempt: %w", err)
	}

	key := historyKey(subID)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, historyLimit-1)
	pipe.Expire(ctx, key, historyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// History returns up to limit recent delivery attempts, newest first
func (c *Client) History(ctx context.Context, subID string, limit int) ([]*models.DeliveryAttempt, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}

	raw, err := c.rdb.LRange(ctx, historyKey(subID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	attempts := make([]*models.DeliveryAttempt, 0, len(raw))
	for _, entry := range raw {
		var attempt models.DeliveryAttempt
		if err := json.Unmarshal([]byte(entry), &attempt); err != nil {
			// Corrupt entries are skipped, not fatal
			if c.logger != nil {
				c.logger.Warn("Skipping corrupt history entry",
					zap.String("subscription_id", subID),
					zap.Error(err),
				)
			}
			continue
		}
		attempts = append(attempts, &attempt)
	}
	return attempts, nil
}

// AddRetry schedules an attempt in the retry set, scored by its next retry
// time
func (c *Client) AddRetry(ctx context.Context, attempt *models.DeliveryAttempt, at time.Time) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery attempt: %w", err)
	}
	return c.rdb.ZAdd(ctx, retryKey, &redis.Z{
		Score:  float64(at.UnixMilli()) / 1000.0,
		Member: data,
	}).Err()
}

// PopDueRetries removes and returns every retry entry whose score is at or
// before now. The read and the removal are separate round trips, which is
// safe only because a single scheduler sweeps the set. Entries are returned
// as raw JSON; the caller owns decoding so a corrupt entry can be dropped
// without aborting the sweep.
func (c *Client) PopDueRetries(ctx context.Context, now time.Time) ([]string, error) {
	max := strconv.FormatFloat(float64(now.UnixMilli())/1000.0, 'f', -1, 64)

	entries, err := c.rdb.ZRangeByScore(ctx, retryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore failed: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	members := make([]interface{}, len(entries))
	for i, e := range entries {
		members[i] = e
	}
	if err := c.rdb.ZRem(ctx, retryKey, members...).Err(); err != nil {
		return nil, fmt.Errorf("redis zrem failed: %w", err)
	}

	return entries, nil
}

// RetryCount returns the number of attempts waiting in the retry set
func (c *Client) RetryCount(ctx context.Context) (int64, error) {
	return c.rdb.ZCard(ctx, retryKey).Result()
}

// IncrStat atomically adds delta to a counter field in the subscription's
// stats hash
func (c *Client) IncrStat(ctx context.Context, subID, field string, delta int64) error {
	return c.rdb.HIncrBy(ctx, statsKey(subID), field, delta).Err()
}

// StatsFields returns the raw stats hash for a subscription. A missing hash
// yields an empty map.
func (c *Client) StatsFields(ctx context.Context, subID string) (map[string]string, error) {
	fields, err := c.rdb.HGetAll(ctx, statsKey(subID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	return fields, nil
}

// RecordWindowEvent stamps a terminal outcome into the windowed-count set and
// trims entries past the 30-day retention
func (c *Client) RecordWindowEvent(ctx context.Context, subID, attemptID string, at time.Time) error {
	key := statsWindowKey(subID)
	cutoff := strconv.FormatInt(at.Add(-windowRetention).Unix(), 10)

	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(at.Unix()), Member: attemptID})
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	_, err := pipe.Exec(ctx)
	return err
}

// CountWindow returns the number of terminal outcomes since the given time
func (c *Client) CountWindow(ctx context.Context, subID string, since time.Time) (int64, error) {
	return c.rdb.ZCount(ctx, statsWindowKey(subID),
		strconv.FormatInt(since.Unix(), 10), "+inf").Result()
}
