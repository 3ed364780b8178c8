package models

// DeliveryStats holds the per-subscription delivery counters and derived
// values. A subscription with no recorded activity reads back as the zero
// struct, never as an error.
type DeliveryStats struct {
	WebhookID             string  `json:"webhook_id"`
	TotalEvents           int64   `json:"total_events"`
	SuccessfulDeliveries  int64   `json:"successful_deliveries"`
	FailedDeliveries      int64   `json:"failed_deliveries"`
	PendingDeliveries     int64   `json:"pending_deliveries"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
	SuccessRatePercentage float64 `json:"success_rate_percentage"`
	EventsLast24h         int64   `json:"events_last_24h"`
	EventsLast7d          int64   `json:"events_last_7d"`
	EventsLast30d         int64   `json:"events_last_30d"`
}
