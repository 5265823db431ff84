package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

var b64 = base64.RawStdEncoding

// phc is a decoded argon2id hash in PHC string form:
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
type phc struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (h phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key),
	)
}

func parsePHC(s string) (phc, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return phc{}, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return phc{}, ErrInvalidHash
	}

	var m, t, p uint64
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return phc{}, ErrInvalidHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return phc{}, ErrInvalidHash
		}
		switch k {
		case "m":
			m = n
		case "t":
			t = n
		case "p":
			p = n
		default:
			return phc{}, ErrInvalidHash
		}
	}
	if m == 0 || t == 0 || p == 0 || p > 255 {
		return phc{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return phc{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return phc{}, ErrInvalidHash
	}

	return phc{
		params: Argon2idParams{
			MemoryKiB:   uint32(m),
			Iterations:  uint32(t),
			Parallelism: uint8(p),
			SaltLength:  uint32(len(salt)),
			KeyLength:   uint32(len(key)),
		},
		salt: salt,
		key:  key,
	}, nil
}

// acceptable bounds a stored hash's cost against the running config so a
// tampered row cannot force an expensive derivation.
func (p Argon2idParams) acceptable(limit Argon2idParams) bool {
	switch {
	case p.MemoryKiB > limit.MemoryKiB*2,
		p.Iterations > limit.Iterations*2,
		p.Parallelism > limit.Parallelism*2:
		return false
	case p.SaltLength < 8 || p.SaltLength > 64:
		return false
	case p.KeyLength < 16 || p.KeyLength > 128:
		return false
	}
	return true
}

func derive(password string, salt []byte, p Argon2idParams) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
}

// Hash validates password against the policy and returns its argon2id PHC string.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	return phc{params: c.Params, salt: salt, key: derive(password, salt, c.Params)}.String(), nil
}

// Verify reports whether password matches encoded. Malformed hashes, and
// hashes whose cost is far above the current config, yield ErrInvalidHash.
func (c Config) Verify(encoded, password string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if !h.params.acceptable(c.Params) {
		return false, ErrInvalidHash
	}
	return subtle.ConstantTimeCompare(derive(password, h.salt, h.params), h.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the current config. Malformed hashes always need a rehash.
func (c Config) NeedsRehash(encoded string) bool {
	h, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return h.params.MemoryKiB < c.Params.MemoryKiB ||
		h.params.Iterations < c.Params.Iterations ||
		h.params.KeyLength < c.Params.KeyLength
}
