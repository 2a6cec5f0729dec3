package cachify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewStoreDefaultsToMemory(t *testing.T) {
	store := NewStore(context.Background(), StoreConfig{})
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory default, got %q", store.Driver())
	}
	ctx := context.Background()
	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); !ok {
		t.Fatalf("expected usable default store")
	}
}

func TestNewStoreWithOptions(t *testing.T) {
	store := NewStoreWith(context.Background(), DriverNull, WithDefaultTTL(time.Second))
	if store.Driver() != DriverNull {
		t.Fatalf("expected null driver, got %q", store.Driver())
	}
}

func TestNewStoreSQLFailureReturnsErrorStore(t *testing.T) {
	// No DSN: construction fails, every operation surfaces the error.
	store := NewStore(context.Background(), StoreConfig{Driver: DriverSQL})
	if store.Driver() != DriverSQL {
		t.Fatalf("error store must keep the driver identity, got %q", store.Driver())
	}
	ctx := context.Background()
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("expected construction error on get")
	}
	if err := store.Set(ctx, "k", nil, 0); err == nil {
		t.Fatalf("expected construction error on set")
	}
	if _, err := store.TryAcquire(ctx, "k", "tok", 0); err == nil {
		t.Fatalf("expected construction error on acquire")
	}

	// Wrappers over a broken store degrade per their policy instead of
	// panicking.
	client := New(store)
	wrapped, err := Cached(client, "k-{UserID}", time.Minute,
		func(_ context.Context, a userArgs) (string, error) { return "fresh", nil })
	if err != nil {
		t.Fatalf("cached failed: %v", err)
	}
	if got, err := wrapped.Call(userArgs{UserID: 1}); err != nil || got != "fresh" {
		t.Fatalf("expected fail-open call-through: %q err=%v", got, err)
	}
}

func TestNewStoreInvalidSQLTableFails(t *testing.T) {
	store := NewStore(context.Background(), StoreConfig{
		Driver:        DriverSQL,
		SQLDriverName: "sqlite",
		SQLDSN:        ":memory:",
		SQLTable:      "bad;table",
	})
	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected invalid table name to fail construction")
	}
}

func TestConvenienceConstructorsPickDrivers(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		store Store
		want  Driver
	}{
		{NewMemoryStore(ctx), DriverMemory},
		{NewNullStore(ctx), DriverNull},
		{NewRedisStore(ctx, newStubRedisClient()), DriverRedis},
		{NewNATSStore(ctx, newFakeKeyValue()), DriverNATS},
		{NewMemcachedStore(ctx, []string{"127.0.0.1:11211"}), DriverMemcached},
		{NewFileStore(ctx, t.TempDir()), DriverFile},
	}
	for _, tc := range cases {
		if got := tc.store.Driver(); got != tc.want {
			t.Fatalf("expected driver %q, got %q", tc.want, got)
		}
	}
}

func TestStoreConfigWithDefaults(t *testing.T) {
	cfg := StoreConfig{}.withDefaults()
	if cfg.Driver != DriverMemory {
		t.Fatalf("expected memory driver default, got %q", cfg.Driver)
	}
	if cfg.DefaultTTL != defaultCacheTTL {
		t.Fatalf("expected default ttl, got %v", cfg.DefaultTTL)
	}
	if cfg.SQLTable != "cachify_entries" || cfg.DynamoTable != "cachify_entries" {
		t.Fatalf("expected default table names, got %q/%q", cfg.SQLTable, cfg.DynamoTable)
	}
	if cfg.FileDir == "" {
		t.Fatalf("expected default file dir")
	}

	custom := StoreConfig{DefaultTTL: time.Second, SQLTable: "t"}.withDefaults()
	if custom.DefaultTTL != time.Second || custom.SQLTable != "t" {
		t.Fatalf("explicit values overridden: %+v", custom)
	}
}

func TestErrorStoreSurfacesConstructionError(t *testing.T) {
	cause := errors.New("bad config")
	store := &errorStore{driver: DriverDynamo, err: cause}
	ctx := context.Background()
	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, cause) {
		t.Fatalf("expected construction error, got %v", err)
	}
	if _, err := store.Release(ctx, "k", "tok"); !errors.Is(err, cause) {
		t.Fatalf("expected construction error, got %v", err)
	}
	if err := store.Delete(ctx, "k"); !errors.Is(err, cause) {
		t.Fatalf("expected construction error, got %v", err)
	}
}
