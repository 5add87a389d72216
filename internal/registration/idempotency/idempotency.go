// Package idempotency remembers which registration an Idempotency-Key
// produced so a client retrying after a timeout gets the same record back.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

const maxKeyLength = 128

// ErrInvalidKey is returned for empty, oversized or non-printable keys.
var ErrInvalidKey = errors.New("invalid idempotency key")

// Outcome of Reserve.
type Outcome int

const (
	// Reserved means the caller owns the key and must Complete or Release it.
	Reserved Outcome = iota
	// InFlight means another request holding the key has not finished.
	InFlight
	// Completed means the key already produced Code.
	Completed
)

// Store records key -> registration code with a TTL.
type Store interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (Outcome, string, error)
	Complete(ctx context.Context, key, code string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// ValidateKey checks a client-supplied key.
func ValidateKey(key string) error {
	if key == "" || len(key) > maxKeyLength {
		return ErrInvalidKey
	}
	if strings.IndexFunc(key, func(r rune) bool { return r < 0x21 || r > 0x7e }) >= 0 {
		return ErrInvalidKey
	}
	return nil
}
