package cachify

import "time"

// StoreOption mutates StoreConfig when constructing a store.
type StoreOption func(StoreConfig) StoreConfig

// WithDefaultTTL overrides the fallback TTL used when ttl <= 0.
func WithDefaultTTL(ttl time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DefaultTTL = ttl
		return cfg
	}
}

// WithMemoryCleanupInterval overrides the sweep interval for the memory driver.
func WithMemoryCleanupInterval(interval time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MemoryCleanupInterval = interval
		return cfg
	}
}

// WithRedisClient sets the redis client; required for DriverRedis.
func WithRedisClient(client RedisClient) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.RedisClient = client
		return cfg
	}
}

// WithNATSKeyValue sets the JetStream bucket; required for DriverNATS.
func WithNATSKeyValue(kv NATSKeyValue) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.NATSKeyValue = kv
		return cfg
	}
}

// WithNATSBucketTTL marks the bucket TTL-managed so entries are stored raw.
func WithNATSBucketTTL() StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.NATSBucketTTL = true
		return cfg
	}
}

// WithMemcachedAddresses sets memcached servers for DriverMemcached.
func WithMemcachedAddresses(addrs ...string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MemcachedAddresses = addrs
		return cfg
	}
}

// WithFileDir sets the directory used by the file driver.
func WithFileDir(dir string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.FileDir = dir
		return cfg
	}
}

// WithDynamoClient injects a prebuilt DynamoDB client.
func WithDynamoClient(client DynamoAPI) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoClient = client
		return cfg
	}
}

// WithDynamoTable overrides the DynamoDB table name.
func WithDynamoTable(table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoTable = table
		return cfg
	}
}

// WithDynamoRegion sets the AWS region used when building a client.
func WithDynamoRegion(region string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoRegion = region
		return cfg
	}
}

// WithDynamoEndpoint points the client at a custom endpoint (e.g. local).
func WithDynamoEndpoint(endpoint string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoEndpoint = endpoint
		return cfg
	}
}

// WithSQL configures the SQL driver: driverName is mysql, pgx or sqlite.
func WithSQL(driverName, dsn string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.SQLDriverName = driverName
		cfg.SQLDSN = dsn
		return cfg
	}
}

// WithSQLTable overrides the SQL table name.
func WithSQLTable(table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.SQLTable = table
		return cfg
	}
}

// Option configures a Client.
type Option func(*Client)

// WithClientPrefix namespaces every key rendered through the client.
func WithClientPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = prefix
	}
}

// WithClientDefaultTTL is the TTL applied when a wrapper passes ttl <= 0.
func WithClientDefaultTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithObserver attaches an observer receiving one event per store operation.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// CachedOption configures a Cached wrapper.
type CachedOption[R any] func(*cachedConfig[R])

type cachedConfig[R any] struct {
	codec      ValueCodec[R]
	failClosed bool
}

// WithCodec replaces the default JSON codec for stored results.
func WithCodec[R any](codec ValueCodec[R]) CachedOption[R] {
	return func(cfg *cachedConfig[R]) {
		cfg.codec = codec
	}
}

// WithCacheFailClosed makes store failures surface as errors instead of
// degrading to a recompute. The default is fail-open: a store outage forces
// a miss-and-call-through so callers keep getting correct values.
func WithCacheFailClosed[R any]() CachedOption[R] {
	return func(cfg *cachedConfig[R]) {
		cfg.failClosed = true
	}
}

// StorePolicy decides what a Once wrapper does when the store itself fails
// during acquisition (as opposed to ordinary contention).
type StorePolicy int

const (
	// FailClosed propagates the StoreUnavailableError; the wrapped function
	// does not run. This is the default: exclusivity cannot be verified.
	FailClosed StorePolicy = iota

	// FailOpen calls the wrapped function without the lock. Mutual
	// exclusion is silently lost for the duration of the outage; choose
	// this only when duplicate execution is preferable to unavailability.
	FailOpen
)

// OnceOption configures a Once wrapper.
type OnceOption[R any] func(*onceConfig[R])

type onceConfig[R any] struct {
	fallback    R
	hasFallback bool
	storePolicy StorePolicy
}

// WithFallback returns v to callers that lose the lock race instead of a
// *LockContentionError.
func WithFallback[R any](v R) OnceOption[R] {
	return func(cfg *onceConfig[R]) {
		cfg.fallback = v
		cfg.hasFallback = true
	}
}

// WithStorePolicy sets the store-outage policy for lock acquisition.
func WithStorePolicy[R any](p StorePolicy) OnceOption[R] {
	return func(cfg *onceConfig[R]) {
		cfg.storePolicy = p
	}
}
