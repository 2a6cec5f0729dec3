package cachify

import (
	"context"
	"time"
)

// CachedFunc wraps a function with a store-backed result cache. Build one
// with Cached; the zero value is not usable.
//
// The cache holds only successful results. A hit returns the stored value
// without invoking the wrapped function; a miss invokes it, stores the
// encoded result with the wrapper's TTL, and returns it. Errors from the
// wrapped function propagate verbatim and cache nothing. The wrapper keeps
// no local copy of values: the store owns every entry, so expiry and early
// eviction both surface as ordinary misses.
type CachedFunc[A, R any] struct {
	client     *Client
	tmpl       *KeyTemplate
	ttl        time.Duration
	fn         func(context.Context, A) (R, error)
	codec      ValueCodec[R]
	failClosed bool
}

// Cached wraps fn with a result cache keyed by template and expiring after
// ttl. The template is parsed once; malformed templates fail here rather
// than on the first call.
//
// By default a store outage degrades to a forced miss: the wrapped function
// runs and its result is returned even though it could not be read from or
// written to the store. WithCacheFailClosed surfaces the outage instead.
func Cached[A, R any](client *Client, template string, ttl time.Duration, fn func(context.Context, A) (R, error), opts ...CachedOption[R]) (*CachedFunc[A, R], error) {
	tmpl, err := ParseKeyTemplate(template)
	if err != nil {
		return nil, err
	}
	cfg := cachedConfig[R]{codec: JSONCodec[R]()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CachedFunc[A, R]{
		client:     client,
		tmpl:       tmpl,
		ttl:        ttl,
		fn:         fn,
		codec:      cfg.codec,
		failClosed: cfg.failClosed,
	}, nil
}

// Call invokes the wrapped function through the cache, blocking form.
func (f *CachedFunc[A, R]) Call(arg A) (R, error) {
	return f.CallCtx(context.Background(), arg)
}

// CallCtx invokes the wrapped function through the cache. The context
// covers the store round trips and the wrapped call.
func (f *CachedFunc[A, R]) CallCtx(ctx context.Context, arg A) (R, error) {
	var zero R
	key, err := f.tmpl.Render(arg)
	if err != nil {
		return zero, err
	}

	body, ok, err := f.client.GetCtx(ctx, key)
	if err != nil && f.failClosed {
		return zero, err
	}
	if err == nil && ok {
		value, decodeErr := f.codec.Decode(body)
		if decodeErr == nil {
			f.client.observe(ctx, OpHit, key, true, nil, time.Now())
			return value, nil
		}
		// Corrupt entry: fall through and overwrite with a fresh result.
	}
	f.client.observe(ctx, OpMiss, key, false, nil, time.Now())

	value, err := f.fn(ctx, arg)
	if err != nil {
		return zero, err
	}
	encoded, err := f.codec.Encode(value)
	if err != nil {
		return zero, err
	}
	if err := f.client.SetCtx(ctx, key, encoded, f.ttl); err != nil && f.failClosed {
		return zero, err
	}
	return value, nil
}

// Reset invalidates the entry for arg, blocking form.
func (f *CachedFunc[A, R]) Reset(arg A) error {
	return f.ResetCtx(context.Background(), arg)
}

// ResetCtx invalidates the entry the same argument shape would hit. It is
// idempotent: resetting an absent key succeeds. This is the sole
// invalidation path; keeping the cache fresh after a mutation is the
// caller's responsibility.
func (f *CachedFunc[A, R]) ResetCtx(ctx context.Context, arg A) error {
	key, err := f.tmpl.Render(arg)
	if err != nil {
		return err
	}
	if err := f.client.DeleteCtx(ctx, key); err != nil {
		return err
	}
	f.client.observe(ctx, OpReset, key, false, nil, time.Now())
	return nil
}

// Key renders the cache key arg would use, without touching the store.
func (f *CachedFunc[A, R]) Key(arg A) (string, error) {
	return f.tmpl.Render(arg)
}
