package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	HMACEnvKey = "WARDEN_TOKEN_HMAC_KEY"

	// MinBytes is the smallest accepted token entropy (256 bits).
	MinBytes = 32
	// MaxBytes bounds token length for storage and header limits.
	MaxBytes = 64

	// MaxEncodedLen is the longest token string we will ever hash.
	MaxEncodedLen = 4096
)

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

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// NewOpaque returns a URL-safe, unpadded base64 token carrying nBytes of randomness.
// 32 bytes encode to exactly 43 characters.
func NewOpaque(nBytes int) (string, error) {
	if nBytes < MinBytes || nBytes > MaxBytes {
		return "", ErrTokenBytes
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hasher digests tokens for server-side storage.
// The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher. A nil or empty key selects SHA-256 mode.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Hasher{key: k}
}

// HasherFromEnv builds a Hasher from WARDEN_TOKEN_HMAC_KEY.
// When requireHMAC is true a missing or short key is an error; otherwise it falls back to SHA-256.
func HasherFromEnv(requireHMAC bool, minBytes int) (Hasher, error) {
	key, err := HMACKeyFromEnv(minBytes)
	if err != nil {
		if requireHMAC {
			return Hasher{}, err
		}
		if err == ErrHMACKeyTooShort {
			return Hasher{}, err
		}
		return Hasher{}, nil
	}
	return NewHasher(key), nil
}

// HMAC reports whether the hasher is keyed.
func (h Hasher) HMAC() bool { return len(h.key) > 0 }

// Hash returns the 64-char hex digest for tok.
func (h Hasher) Hash(tok string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, h.key)
}
