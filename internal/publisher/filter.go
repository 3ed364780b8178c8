package publisher

import (
	"fmt"

	"github.com/marminbh/webhook-engine/internal/models"
)

// matchesFilters evaluates a subscription's filter predicate against an
// event. An empty (or nil) filter matches every event. A non-empty filter is
// an AND over its clauses: allow-lists on user/session/project id, plus
// equality checks against the event payload. A populated allow-list requires
// the event to carry that field with a listed value; an event without the
// field does not match.
func matchesFilters(filters *models.EventFilters, event *models.Event) bool {
	if filters == nil {
		return true
	}

	if len(filters.UserIDs) > 0 && !contains(filters.UserIDs, event.UserID) {
		return false
	}
	if len(filters.SessionIDs) > 0 && !contains(filters.SessionIDs, event.SessionID) {
		return false
	}
	if len(filters.ProjectIDs) > 0 && !contains(filters.ProjectIDs, event.ProjectID) {
		return false
	}

	for field, want := range filters.Data {
		got, ok := event.Data[field]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}

	return true
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
