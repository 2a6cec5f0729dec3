package cachify

import (
	"context"
	"time"
)

// OnceFunc wraps a function with store-backed mutual exclusion. Build one
// with Once.
//
// Per rendered key, at most one call across every process sharing the store
// executes the wrapped function at a time. There is no re-entrant fast
// path: a second call with the same key while the first is in flight is
// contention, even from the same goroutine.
type OnceFunc[A, R any] struct {
	client      *Client
	tmpl        *KeyTemplate
	ttl         time.Duration
	fn          func(context.Context, A) (R, error)
	fallback    R
	hasFallback bool
	storePolicy StorePolicy
}

// Once wraps fn so that concurrent calls resolving to the same key are
// mutually exclusive across processes. Losers of the acquisition race get
// the WithFallback value when configured, otherwise a *LockContentionError;
// the wrapped function never runs unlocked unless FailOpen is chosen for
// store outages.
//
// ttl bounds how long a crashed holder can block the key. It is not
// refreshed while the call runs: a call outliving ttl loses exclusivity.
func Once[A, R any](client *Client, template string, ttl time.Duration, fn func(context.Context, A) (R, error), opts ...OnceOption[R]) (*OnceFunc[A, R], error) {
	tmpl, err := ParseKeyTemplate(template)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	cfg := onceConfig[R]{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &OnceFunc[A, R]{
		client:      client,
		tmpl:        tmpl,
		ttl:         ttl,
		fn:          fn,
		fallback:    cfg.fallback,
		hasFallback: cfg.hasFallback,
		storePolicy: cfg.storePolicy,
	}, nil
}

// Call invokes the wrapped function under the lock, blocking form.
func (f *OnceFunc[A, R]) Call(arg A) (R, error) {
	return f.CallCtx(context.Background(), arg)
}

// CallCtx invokes the wrapped function under the lock. The lock is released
// on every exit path — error, panic, or caller cancellation — before the
// call returns.
func (f *OnceFunc[A, R]) CallCtx(ctx context.Context, arg A) (R, error) {
	var zero R
	key, err := f.tmpl.Render(arg)
	if err != nil {
		return zero, err
	}

	lock := f.client.NewLock(key, f.ttl)
	acquired, err := lock.AcquireCtx(ctx)
	if err != nil {
		if f.storePolicy == FailOpen {
			// Exclusivity is unverifiable during the outage; the caller
			// opted into duplicate execution over unavailability.
			return f.fn(ctx, arg)
		}
		return zero, err
	}
	if !acquired {
		if f.hasFallback {
			return f.fallback, nil
		}
		return zero, &LockContentionError{Key: key}
	}
	defer func() {
		// WithoutCancel: a cancelled caller must still release, otherwise
		// the key stays blocked until ttl.
		_ = lock.ReleaseCtx(context.WithoutCancel(ctx))
	}()
	return f.fn(ctx, arg)
}

// Key renders the lock key arg would use, without touching the store.
func (f *OnceFunc[A, R]) Key(arg A) (string, error) {
	return f.tmpl.Render(arg)
}
