package cachify

import (
	"os"
	"path/filepath"
	"time"
)

const (
	defaultCacheTTL              = 5 * time.Minute
	defaultLockTTL               = 30 * time.Second
	defaultMemoryCleanupInterval = 10 * time.Minute
)

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "cachify-file")
}

// StoreConfig controls how a Store is constructed.
type StoreConfig struct {
	Driver Driver

	// DefaultTTL is used when a call provides ttl <= 0.
	DefaultTTL time.Duration

	// MemoryCleanupInterval controls in-process expiry sweeps.
	MemoryCleanupInterval time.Duration

	// RedisClient is required when DriverRedis is used.
	RedisClient RedisClient

	// NATSKeyValue is required when DriverNATS is used. NATSBucketTTL marks
	// the bucket as TTL-managed, skipping per-entry expiry envelopes.
	NATSKeyValue  NATSKeyValue
	NATSBucketTTL bool

	// MemcachedAddresses lists memcached servers for DriverMemcached.
	MemcachedAddresses []string

	// FileDir controls where the file driver keeps entries.
	FileDir string

	// DynamoClient, DynamoTable, DynamoRegion and DynamoEndpoint configure
	// DriverDynamo. A client is built from region/endpoint when nil.
	DynamoClient   DynamoAPI
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string

	// SQLDriverName, SQLDSN and SQLTable configure DriverSQL
	// (mysql, pgx or sqlite).
	SQLDriverName string
	SQLDSN        string
	SQLTable      string
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultCacheTTL
	}
	if c.MemoryCleanupInterval <= 0 {
		c.MemoryCleanupInterval = defaultMemoryCleanupInterval
	}
	if c.FileDir == "" {
		c.FileDir = defaultFileDir()
	}
	if c.DynamoTable == "" {
		c.DynamoTable = "cachify_entries"
	}
	if c.SQLTable == "" {
		c.SQLTable = "cachify_entries"
	}
	return c
}
