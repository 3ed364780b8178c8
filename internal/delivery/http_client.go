package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marminbh/webhook-engine/internal/models"
)

const (
	userAgent           = "webhook-engine/1.0"
	maxResponseBodySize = 1000
)

// Result represents the outcome of one outbound HTTP dispatch
type Result struct {
	HTTPStatus   *int
	LatencyMs    int
	ResponseBody string
	Err          error
}

// Dispatch performs the HTTP POST for a delivery attempt. The payload bytes
// and signature were fixed at publish time; this function only puts them on
// the wire. The caller bounds ctx with the subscription's timeout.
func Dispatch(ctx context.Context, client *http.Client, attempt *models.DeliveryAttempt) *Result {
	result := &Result{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, attempt.URL, bytes.NewReader(attempt.Payload))
	if err != nil {
		result.Err = fmt.Errorf("failed to create HTTP request: %w", err)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for key, value := range attempt.Headers {
		req.Header.Set(key, value)
	}

	startTime := time.Now()
	resp, err := client.Do(req)
	result.LatencyMs = int(time.Since(startTime).Milliseconds())

	if err != nil {
		// Network error or client-side timeout; the retry policy treats
		// both as transient
		result.Err = fmt.Errorf("HTTP request failed: %w", err)
		return result
	}
	defer resp.Body.Close()

	result.HTTPStatus = &resp.StatusCode

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if readErr == nil {
		result.ResponseBody = string(body)
	}

	return result
}
