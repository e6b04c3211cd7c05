package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MinSecretBytes is the smallest accepted HMAC signing secret.
const MinSecretBytes = 32

// fingerprintLen is the number of hex characters kept by Fingerprint.
const fingerprintLen = 16

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Secret trims raw and enforces a minimum byte length.
// Length is measured in bytes because the secret is used as raw key material.
func Secret(raw string, minBytes int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSecretTooShort
	}
	return b, nil
}

// Fingerprint returns a short stable identifier for tok that is safe to log.
// Empty input yields an empty fingerprint.
func Fingerprint(tok string, key []byte) string {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ""
	}
	var sum string
	if len(key) == 0 {
		sum = HashSHA256Hex(tok)
	} else {
		sum = HashHMACSHA256Hex(tok, key)
	}
	return sum[:fingerprintLen]
}
