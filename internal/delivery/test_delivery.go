package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/marminbh/webhook-engine/internal/models"
	"github.com/marminbh/webhook-engine/internal/signing"
)

// TestRequest describes one ad-hoc diagnostic delivery. It is not tied to a
// stored subscription and mutates no persisted state.
type TestRequest struct {
	URL            string                 `json:"url"`
	EventType      string                 `json:"event_type"`
	Secret         string                 `json:"secret,omitempty"`
	TestData       map[string]interface{} `json:"test_data,omitempty"`
	Headers        map[string]string      `json:"headers,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
}

// TestResult reports the outcome of a diagnostic delivery
type TestResult struct {
	Success         bool              `json:"success"`
	StatusCode      *int              `json:"status_code,omitempty"`
	ResponseTimeMs  int               `json:"response_time_ms"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	SignatureValid  *bool             `json:"signature_valid,omitempty"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
}

// SendTest performs one signed POST to the caller-supplied URL and secret.
// When the target echoes an X-Webhook-Signature header, the echo is checked
// against the signature that was sent.
func SendTest(ctx context.Context, req *TestRequest) *TestResult {
	result := &TestResult{}

	data := req.TestData
	if data == nil {
		data = map[string]interface{}{"test": true}
	}
	event := &models.Event{
		ID:        uuid.New().String(),
		Type:      req.EventType,
		Source:    "test-delivery",
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		msg := fmt.Sprintf("failed to marshal test event: %v", err)
		result.ErrorMessage = &msg
		return result
	}

	var signature string
	if req.Secret != "" {
		signature, err = signing.Sign(payload, req.Secret)
		if err != nil {
			msg := fmt.Sprintf("failed to sign test payload: %v", err)
			result.ErrorMessage = &msg
			return result
		}
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, req.URL, bytes.NewReader(payload))
	if err != nil {
		msg := fmt.Sprintf("failed to create request: %v", err)
		result.ErrorMessage = &msg
		return result
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("X-Webhook-Event", req.EventType)
	httpReq.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(event.Timestamp.Unix(), 10))
	if signature != "" {
		httpReq.Header.Set("X-Webhook-Signature", signature)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	client := &http.Client{}
	startTime := time.Now()
	resp, err := client.Do(httpReq)
	result.ResponseTimeMs = int(time.Since(startTime).Milliseconds())

	if err != nil {
		msg := fmt.Sprintf("request failed: %v", err)
		result.ErrorMessage = &msg
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = &resp.StatusCode
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300

	result.ResponseHeaders = make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			result.ResponseHeaders[key] = values[0]
		}
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if readErr == nil {
		result.ResponseBody = string(body)
	}

	// If the target echoed the signature header back, report whether the
	// echo matches what was sent
	if signature != "" {
		if echoed := resp.Header.Get("X-Webhook-Signature"); echoed != "" {
			valid := signing.Verify(payload, req.Secret, echoed)
			result.SignatureValid = &valid
		}
	}

	return result
}
