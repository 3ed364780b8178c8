package models

import (
	"time"
)

// DeliveryStatus represents the state of a delivery attempt
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "PENDING"
	DeliveryInFlight DeliveryStatus = "IN_FLIGHT"
	DeliverySuccess  DeliveryStatus = "SUCCESS"
	DeliveryRetrying DeliveryStatus = "RETRYING"
	DeliveryFailed   DeliveryStatus = "FAILED"
)

// Terminal reports whether the status ends the attempt's lifecycle
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySuccess || s == DeliveryFailed
}

// DeliveryAttempt is one unit of work sending (or retrying) one event to one
// subscription. The delivery policy of the subscription is snapshotted onto
// the attempt at publish time so workers and the retry scheduler never need a
// registry lookup.
type DeliveryAttempt struct {
	ID                 string            `json:"id"`
	SubscriptionID     string            `json:"subscription_id"`
	EventID            string            `json:"event_id"`
	EventType          string            `json:"event_type"`
	URL                string            `json:"url"`
	Headers            map[string]string `json:"headers,omitempty"`
	Payload            []byte            `json:"payload"`
	Signature          string            `json:"signature"`
	AttemptCount       int               `json:"attempt_count"`
	MaxAttempts        int               `json:"max_attempts"`
	TimeoutSeconds     int               `json:"timeout_seconds"`
	RetryDelaySeconds  int               `json:"retry_delay_seconds"`
	ExponentialBackoff bool              `json:"exponential_backoff"`
	Status             DeliveryStatus    `json:"status"`
	ResponseCode       *int              `json:"response_code,omitempty"`
	ResponseTimeMs     int               `json:"response_time_ms"`
	LastError          *string           `json:"last_error,omitempty"`
	NextRetryAt        *time.Time        `json:"next_retry_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	AttemptedAt        *time.Time        `json:"attempted_at,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
}

// Timeout returns the HTTP timeout for this attempt
func (a *DeliveryAttempt) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RetryDelay returns the base backoff delay for this attempt
func (a *DeliveryAttempt) RetryDelay() time.Duration {
	return time.Duration(a.RetryDelaySeconds) * time.Second
}
