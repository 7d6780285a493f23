// Package revocation tracks bearer tokens invalidated before their natural expiry.
package revocation

import (
	"context"
	"time"
)

// Backend names reported by Registry.Backend.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Store records revoked tokens with a time-to-live.
type Store interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	Close() error
}

const keyPrefix = "bl_"

func key(token string) string { return keyPrefix + token }
