package cachify

import (
	"context"
	"encoding/json"
	"time"
)

// Client is the process handle the wrappers share: a store plus the policy
// applied around it (key prefix, default TTL, observer). Construct one with
// New and inject it into Cached/Once, or register it globally with Init.
type Client struct {
	store      Store
	prefix     string
	defaultTTL time.Duration
	observer   Observer
}

// New binds a client to a concrete store.
func New(store Store, opts ...Option) *Client {
	c := &Client{
		store:      store,
		defaultTTL: defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying store implementation.
func (c *Client) Store() Store { return c.store }

// Driver reports the underlying store driver.
func (c *Client) Driver() Driver { return c.store.Driver() }

// Get returns the raw bytes stored at key when present.
func (c *Client) Get(key string) ([]byte, bool, error) {
	return c.GetCtx(context.Background(), key)
}

// GetCtx is the context-aware variant of Get. A miss is (nil, false, nil);
// backend failures come back as *StoreUnavailableError.
func (c *Client) GetCtx(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	body, ok, err := c.store.Get(ctx, c.storeKey(key))
	err = storeErr("get", key, err)
	c.observe(ctx, OpGet, key, ok, err, start)
	return body, ok, err
}

// Set writes raw bytes to key with the given ttl.
func (c *Client) Set(key string, value []byte, ttl time.Duration) error {
	return c.SetCtx(context.Background(), key, value, ttl)
}

// SetCtx is the context-aware variant of Set.
func (c *Client) SetCtx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := storeErr("set", key, c.store.Set(ctx, c.storeKey(key), value, c.resolveTTL(ttl)))
	c.observe(ctx, OpSet, key, false, err, start)
	return err
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Client) Delete(key string) error {
	return c.DeleteCtx(context.Background(), key)
}

// DeleteCtx is the context-aware variant of Delete.
func (c *Client) DeleteCtx(ctx context.Context, key string) error {
	start := time.Now()
	err := storeErr("delete", key, c.store.Delete(ctx, c.storeKey(key)))
	c.observe(ctx, OpDelete, key, err == nil, err, start)
	return err
}

// TryAcquire claims key for token. Exactly one concurrent caller wins;
// (false, nil) is ordinary contention, not an error.
func (c *Client) TryAcquire(key, token string, ttl time.Duration) (bool, error) {
	return c.TryAcquireCtx(context.Background(), key, token, ttl)
}

// TryAcquireCtx is the context-aware variant of TryAcquire.
func (c *Client) TryAcquireCtx(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	start := time.Now()
	acquired, err := c.store.TryAcquire(ctx, c.storeKey(key), token, c.resolveTTL(ttl))
	err = storeErr("acquire", key, err)
	op := OpAcquire
	if err == nil && !acquired {
		op = OpContended
	}
	c.observe(ctx, op, key, acquired, err, start)
	return acquired, err
}

// Release drops key while it still holds token; it reports false when the
// key expired or was reacquired under a different token.
func (c *Client) Release(key, token string) (bool, error) {
	return c.ReleaseCtx(context.Background(), key, token)
}

// ReleaseCtx is the context-aware variant of Release.
func (c *Client) ReleaseCtx(ctx context.Context, key, token string) (bool, error) {
	start := time.Now()
	released, err := c.store.Release(ctx, c.storeKey(key), token)
	err = storeErr("release", key, err)
	c.observe(ctx, OpRelease, key, released, err, start)
	return released, err
}

func (c *Client) storeKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *Client) resolveTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return c.defaultTTL
}

func (c *Client) observe(ctx context.Context, op Op, key string, hit bool, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.OnOp(ctx, op, key, hit, err, time.Since(start), c.Driver())
}

// ValueCodec defines how wrapper results are (de)serialized for storage.
type ValueCodec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// JSONCodec is the default ValueCodec, encoding results as JSON.
func JSONCodec[T any]() ValueCodec[T] {
	return ValueCodec[T]{
		Encode: func(v T) ([]byte, error) { return json.Marshal(v) },
		Decode: func(b []byte) (T, error) {
			var out T
			err := json.Unmarshal(b, &out)
			return out, err
		},
	}
}
