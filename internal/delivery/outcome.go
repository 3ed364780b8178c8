package delivery

import (
	"fmt"
	"time"

	"github.com/marminbh/webhook-engine/internal/models"
)

// Outcome is the decision derived from one dispatch result
type Outcome struct {
	Status      models.DeliveryStatus // SUCCESS, RETRYING, or FAILED
	NextRetryAt time.Time             // set when Status is RETRYING
	LastError   *string
}

// ClassifyOutcome turns a dispatch result into the attempt's next state.
// attemptCount is the number of failures recorded so far (before this one);
// a failure is retry-eligible while attemptCount < maxAttempts and the
// failure class is transient: a network/timeout error, or a status in the
// retryable set (408, 429, 5xx). The backoff delay is computed from the
// incremented count, so the first retry waits exactly the base delay.
func ClassifyOutcome(
	result *Result,
	attemptCount int,
	maxAttempts int,
	baseDelay time.Duration,
	exponential bool,
	now time.Time,
) Outcome {
	if result.Err == nil && result.HTTPStatus != nil {
		code := *result.HTTPStatus
		if code >= 200 && code < 300 {
			return Outcome{Status: models.DeliverySuccess}
		}
	}

	errorMsg := describeFailure(result)

	transient := result.Err != nil ||
		(result.HTTPStatus != nil && retryableStatus(*result.HTTPStatus)) ||
		result.HTTPStatus == nil

	if attemptCount >= maxAttempts || !transient {
		msg := fmt.Sprintf("terminal failure: %s", errorMsg)
		if attemptCount >= maxAttempts {
			msg = fmt.Sprintf("max attempts reached: %s", errorMsg)
		}
		return Outcome{Status: models.DeliveryFailed, LastError: &msg}
	}

	delay := BackoffDelay(baseDelay, attemptCount+1, exponential)
	return Outcome{
		Status:      models.DeliveryRetrying,
		NextRetryAt: now.Add(delay),
		LastError:   &errorMsg,
	}
}

// BackoffDelay computes the wait before retry number attemptCount
// (1-indexed): base_delay * 2^(attempt_count-1) when exponential, otherwise
// the flat base delay.
func BackoffDelay(baseDelay time.Duration, attemptCount int, exponential bool) time.Duration {
	if !exponential {
		return baseDelay
	}
	if attemptCount < 1 {
		attemptCount = 1
	}
	return baseDelay * time.Duration(1<<uint(attemptCount-1))
}

// retryableStatus reports whether an HTTP status belongs to the retryable
// set. Client errors other than request-timeout and rate-limit indicate the
// request itself is bad and will not improve with retries.
func retryableStatus(code int) bool {
	if code >= 500 {
		return true
	}
	return code == 408 || code == 429
}

func describeFailure(result *Result) string {
	if result.Err != nil {
		return fmt.Sprintf("network error: %v", result.Err)
	}
	if result.HTTPStatus == nil {
		return "no HTTP status received"
	}
	return fmt.Sprintf("HTTP %d", *result.HTTPStatus)
}
