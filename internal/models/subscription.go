package models

import (
	"time"
)

// SubscriptionStatus represents the delivery state of a subscription
type SubscriptionStatus string

const (
	SubscriptionActive SubscriptionStatus = "active"
	SubscriptionPaused SubscriptionStatus = "paused"
)

// Subscription represents a registered webhook endpoint together with its
// matching rules and delivery policy
type Subscription struct {
	ID                 string             `json:"id"`
	OwnerID            string             `json:"owner_id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	URL                string             `json:"url"`
	Secret             string             `json:"secret,omitempty"`
	Events             []string           `json:"events"`
	Filters            *EventFilters      `json:"filters,omitempty"`
	Headers            map[string]string  `json:"headers,omitempty"`
	TimeoutSeconds     int                `json:"timeout_seconds"`
	RetryAttempts      int                `json:"retry_attempts"`
	RetryDelaySeconds  int                `json:"retry_delay_seconds"`
	ExponentialBackoff bool               `json:"exponential_backoff"`
	Status             SubscriptionStatus `json:"status"`
	ProjectIDs         []string           `json:"project_ids,omitempty"`
	Tags               []string           `json:"tags,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Timeout returns the per-delivery HTTP timeout
func (s *Subscription) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RetryDelay returns the base delay between retry attempts
func (s *Subscription) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds) * time.Second
}

// SubscriptionUpdate carries the optional fields of an update request.
// Only non-nil fields are applied to the stored subscription, which keeps
// arbitrary attributes out of the merge path.
type SubscriptionUpdate struct {
	Name               *string             `json:"name,omitempty"`
	Description        *string             `json:"description,omitempty"`
	URL                *string             `json:"url,omitempty"`
	Secret             *string             `json:"secret,omitempty"`
	Events             []string            `json:"events,omitempty"`
	Filters            *EventFilters       `json:"filters,omitempty"`
	Headers            map[string]string   `json:"headers,omitempty"`
	TimeoutSeconds     *int                `json:"timeout_seconds,omitempty"`
	RetryAttempts      *int                `json:"retry_attempts,omitempty"`
	RetryDelaySeconds  *int                `json:"retry_delay_seconds,omitempty"`
	ExponentialBackoff *bool               `json:"exponential_backoff,omitempty"`
	Status             *SubscriptionStatus `json:"status,omitempty"`
	ProjectIDs         []string            `json:"project_ids,omitempty"`
	Tags               []string            `json:"tags,omitempty"`
}

// EventFilters narrows which events a subscription receives beyond event-type
// membership. An empty filter matches every event; a non-empty filter is a
// structural AND over its populated clauses.
type EventFilters struct {
	UserIDs    []string          `json:"user_ids,omitempty"`
	SessionIDs []string          `json:"session_ids,omitempty"`
	ProjectIDs []string          `json:"project_ids,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}
