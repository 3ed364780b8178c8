// Package signing implements HMAC-SHA256 signing and verification of
// outbound webhook payloads. Signatures are always computed over the exact
// byte sequence transmitted on the wire.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign computes the hex-encoded HMAC-SHA256 digest of payload under secret
func Sign(payload []byte, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write(payload); err != nil {
		return "", fmt.Errorf("failed to write payload to HMAC: %w", err)
	}

	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether candidate is the valid signature of payload under
// secret. The comparison is constant-time.
func Verify(payload []byte, secret, candidate string) bool {
	expected, err := Sign(payload, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(candidate))
}
