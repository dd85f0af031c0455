package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

const keyPrefix = "claimdesk:v1:"

// CacheKey generates a cache key for name within a profile. Profiles keep
// the state of separate adjusters or environments apart.
func CacheKey(profile, name string) string {
	hash := sha256.Sum256([]byte(profile + "/" + name))
	return keyPrefix + hex.EncodeToString(hash[:])
}
