package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hmacHex is hex(HMAC-SHA256(secret, message)).
func hmacHex(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyHMAC compares got with the expected signature in constant time.
func verifyHMAC(secret string, message []byte, got string) error {
	got = strings.ToLower(strings.TrimSpace(got))
	if got == "" {
		return ErrInvalidSignature
	}
	want := hmacHex(secret, message)
	if !hmac.Equal([]byte(want), []byte(got)) {
		return ErrInvalidSignature
	}
	return nil
}

// sha256Hex is hex(SHA-256(s)).
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
