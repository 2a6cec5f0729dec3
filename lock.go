package cachify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lock is a handle on one store-backed mutual exclusion key. Each
// acquisition mints a fresh holder token, and Release only drops the key
// while it still carries that token, so a lock that expired and was
// reacquired elsewhere cannot be stolen back.
//
// The ttl is a crash-safety bound: if the holder dies without releasing,
// the store reclaims the key after ttl. A protected section that outlives
// its own ttl loses exclusivity; size ttl accordingly.
type Lock struct {
	client *Client
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// NewLock creates a reusable lock handle for a key/ttl pair.
func (c *Client) NewLock(key string, ttl time.Duration) *Lock {
	return &Lock{
		client: c,
		key:    key,
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock once (non-blocking).
func (l *Lock) Acquire() (bool, error) {
	return l.AcquireCtx(context.Background())
}

// AcquireCtx is the context-aware variant of Acquire. A held lock is
// ordinary contention: (false, nil).
func (l *Lock) AcquireCtx(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.TryAcquireCtx(ctx, l.key, token, l.ttl)
	if err != nil || !acquired {
		return acquired, err
	}
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

// Release drops the lock if this handle holds it. Releasing an unheld
// handle is a no-op; a token mismatch in the store (the lock expired and
// someone else took it) returns ErrLockNotHeld.
func (l *Lock) Release() error {
	return l.ReleaseCtx(context.Background())
}

// ReleaseCtx is the context-aware variant of Release.
func (l *Lock) ReleaseCtx(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	released, err := l.client.ReleaseCtx(ctx, l.key, token)
	if err != nil {
		return err
	}
	if !released {
		return ErrLockNotHeld
	}
	return nil
}

// Do takes the lock once, runs fn while holding it, and releases on every
// exit path. It reports whether the lock was acquired; when contended, fn
// does not run and the error is nil.
func (l *Lock) Do(fn func() error) (bool, error) {
	return l.DoCtx(context.Background(), func(context.Context) error { return fn() })
}

// DoCtx is the context-aware variant of Do. The release runs even when ctx
// is cancelled mid-call, so cancellation cannot leak the lock until ttl.
func (l *Lock) DoCtx(ctx context.Context, fn func(context.Context) error) (bool, error) {
	acquired, err := l.AcquireCtx(ctx)
	if err != nil || !acquired {
		return acquired, err
	}
	defer func() {
		_ = l.ReleaseCtx(context.WithoutCancel(ctx))
	}()
	return true, fn(ctx)
}
