package crypto

import (
	"crypto/subtle"
	"errors"
)

const KeySize = 32

var (
	ErrEmptySecret = errors.New("secret must not be empty")
	ErrEmptyBuffer = errors.New("buffer must not be empty")
)

// DeriveKey turns a shared secret into a fixed 32-byte key: truncated when
// longer, zero-padded when shorter. Both sides of the callback protocol must
// derive the same key from the same secret.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, KeySize)
	copy(key, secret)
	return key, nil
}

// Obscure XORs buf in place against the repeating key. The transform is
// symmetric: applying it twice with the same key restores the input.
func Obscure(buf, key []byte) error {
	if len(buf) == 0 {
		return ErrEmptyBuffer
	}
	if len(key) != KeySize {
		return ErrEmptySecret
	}
	for i := range buf {
		buf[i] ^= key[i%KeySize]
	}
	return nil
}

// SecretsEqual compares two shared secrets in constant time.
func SecretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
