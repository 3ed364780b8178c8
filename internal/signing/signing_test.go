package signing

import (
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"id":"evt-1","type":"test.event"}`),
		[]byte(""),
		[]byte("not json at all"),
	}
	secrets := []string{"s3cret", "another-much-longer-secret-value-0123456789"}

	for _, payload := range payloads {
		for _, secret := range secrets {
			sig, err := Sign(payload, secret)
			if err != nil {
				t.Fatalf("Sign(%q) returned error: %v", payload, err)
			}
			if !Verify(payload, secret, sig) {
				t.Errorf("Verify rejected its own signature for payload %q", payload)
			}
		}
	}
}

func TestSignEmptySecret(t *testing.T) {
	if _, err := Sign([]byte("payload"), ""); err == nil {
		t.Error("Expected error for empty secret, got nil")
	}
	if Verify([]byte("payload"), "", "deadbeef") {
		t.Error("Verify should fail with empty secret")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt-1","type":"knowledge.created","data":{"id":"abc"}}`)
	secret := "s3cret"

	sig, err := Sign(payload, secret)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	// Flip a single bit in every byte position in turn
	for i := range payload {
		tampered := make([]byte, len(payload))
		copy(tampered, payload)
		tampered[i] ^= 0x01

		if Verify(tampered, secret, sig) {
			t.Errorf("Verify accepted payload with bit flipped at index %d", i)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt-1"}`)

	sig, err := Sign(payload, "secret-a")
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	if Verify(payload, "secret-b", sig) {
		t.Error("Verify accepted signature produced under a different secret")
	}
}

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"id":"evt-1"}`)

	first, err := Sign(payload, "s3cret")
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	second, err := Sign(payload, "s3cret")
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	if first != second {
		t.Errorf("Expected deterministic signatures, got %s and %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("Expected 64 hex chars for SHA-256 digest, got %d", len(first))
	}
}
