package cachify

import (
	"context"
	"time"
)

// Store is the shared key-value contract every backend implements. It is the
// sole synchronization point: both caching and locking go through it, and
// correctness must hold across processes sharing the same backend.
//
// A miss is (nil, false, nil) from Get and a lost acquisition is
// (false, nil) from TryAcquire; backend failures are returned as errors and
// never folded into those results.
type Store interface {
	Driver() Driver

	// Get returns the value stored at key, or ok=false when absent/expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value at key with the given ttl (backend-enforced expiry).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// TryAcquire atomically claims key for token with a ttl safety bound.
	// Exactly one concurrent caller observes true; the rest observe false.
	TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release deletes key only while it still holds token. It returns false
	// when the key is absent or owned by another token.
	Release(ctx context.Context, key, token string) (bool, error)
}

func cloneBytes(body []byte) []byte {
	if body == nil {
		return nil
	}
	clone := make([]byte, len(body))
	copy(clone, body)
	return clone
}
