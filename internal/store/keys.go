package store

import "fmt"

// Key layout. Subscription records carry a refreshed 30-day TTL; history
// lists are trimmed to the most recent 1000 entries and expire after 7 days;
// the retry set is scored by next_retry_at (unix seconds, fractional).
const (
	retryKey = "webhook:retry"
)

func subscriptionKey(id string) string {
	return fmt.Sprintf("webhook:subscription:%s", id)
}

func ownerKey(ownerID string) string {
	return fmt.Sprintf("webhook:owner:%s", ownerID)
}

func eventIndexKey(eventType string) string {
	return fmt.Sprintf("webhook:event_index:%s", eventType)
}

func historyKey(subscriptionID string) string {
	return fmt.Sprintf("webhook:history:%s", subscriptionID)
}

func statsKey(subscriptionID string) string {
	return fmt.Sprintf("webhook:stats:%s", subscriptionID)
}

func statsWindowKey(subscriptionID string) string {
	return fmt.Sprintf("webhook:stats:events:%s", subscriptionID)
}
