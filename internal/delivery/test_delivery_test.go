package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marminbh/webhook-engine/internal/signing"
)

func TestSendTestSignsAndReportsEcho(t *testing.T) {
	secret := "test-secret-key"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		sig := r.Header.Get("X-Webhook-Signature")
		if sig == "" {
			t.Error("Expected X-Webhook-Signature header")
		}
		if !signing.Verify(body, secret, sig) {
			t.Error("Signature does not verify against the request body")
		}
		if r.Header.Get("X-Webhook-Event") != "test.ping" {
			t.Errorf("X-Webhook-Event = %q, want test.ping", r.Header.Get("X-Webhook-Event"))
		}
		if r.Header.Get("X-Request-ID") != "req-42" {
			t.Errorf("Custom header not forwarded, got %q", r.Header.Get("X-Request-ID"))
		}

		var event map[string]interface{}
		if err := json.Unmarshal(body, &event); err != nil {
			t.Errorf("Payload is not valid JSON: %v", err)
		}
		if event["type"] != "test.ping" {
			t.Errorf("Payload type = %v, want test.ping", event["type"])
		}

		w.Header().Set("X-Webhook-Signature", sig)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}))
	defer server.Close()

	result := SendTest(context.Background(), &TestRequest{
		URL:       server.URL,
		EventType: "test.ping",
		Secret:    secret,
		TestData:  map[string]interface{}{"hello": "world"},
		Headers:   map[string]string{"X-Request-ID": "req-42"},
	})

	if !result.Success {
		t.Fatalf("Expected success, got error: %v", result.ErrorMessage)
	}
	if result.StatusCode == nil || *result.StatusCode != http.StatusOK {
		t.Error("Expected status code 200")
	}
	if result.SignatureValid == nil || !*result.SignatureValid {
		t.Error("Echoed signature should validate")
	}
	if result.ResponseBody != `{"received":true}` {
		t.Errorf("ResponseBody = %q", result.ResponseBody)
	}
}

func TestSendTestWithoutSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Webhook-Signature") != "" {
			t.Error("No signature expected without a secret")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	result := SendTest(context.Background(), &TestRequest{
		URL:       server.URL,
		EventType: "test.ping",
	})

	if !result.Success {
		t.Fatalf("Expected success, got error: %v", result.ErrorMessage)
	}
	if result.SignatureValid != nil {
		t.Error("SignatureValid should be unset without a secret")
	}
}

func TestSendTestReportsConnectionFailure(t *testing.T) {
	result := SendTest(context.Background(), &TestRequest{
		URL:            "http://127.0.0.1:1/unreachable",
		EventType:      "test.ping",
		TimeoutSeconds: 1,
	})

	if result.Success {
		t.Fatal("Expected failure for unreachable target")
	}
	if result.ErrorMessage == nil {
		t.Error("Expected an error message")
	}
	if result.StatusCode != nil {
		t.Error("No status code expected for a connection failure")
	}
}
