package cachify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLStore(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "cachify.db")
	store, err := newSQLStore(StoreConfig{
		SQLDriverName: "sqlite",
		SQLDSN:        dsn,
		SQLTable:      "cachify_entries",
	})
	if err != nil {
		t.Fatalf("new sql store failed: %v", err)
	}
	return store
}

func TestSQLStoreSetGetDelete(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "absent"); err != nil || ok {
		t.Fatalf("expected miss: ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "alpha", []byte("hello"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, "alpha")
	if err != nil || !ok || string(body) != "hello" {
		t.Fatalf("get failed: ok=%v err=%v body=%q", ok, err, body)
	}

	// Overwrite replaces the value in place.
	if err := store.Set(ctx, "alpha", []byte("bye"), time.Minute); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	body, ok, err = store.Get(ctx, "alpha")
	if err != nil || !ok || string(body) != "bye" {
		t.Fatalf("get after overwrite failed: ok=%v err=%v body=%q", ok, err, body)
	}

	if err := store.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "alpha"); ok {
		t.Fatalf("expected deleted key to be missing")
	}
}

func TestSQLStoreExpiry(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	if err := store.Set(ctx, "ttl-key", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok, err := store.Get(ctx, "ttl-key"); err != nil || ok {
		t.Fatalf("expected expiry: ok=%v err=%v", ok, err)
	}
}

func TestSQLStoreTryAcquireIsExclusive(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	acquired, err := store.TryAcquire(ctx, "lock", "one", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("first acquire failed: acquired=%v err=%v", acquired, err)
	}
	acquired, err = store.TryAcquire(ctx, "lock", "two", time.Minute)
	if err != nil || acquired {
		t.Fatalf("expected contention: acquired=%v err=%v", acquired, err)
	}

	// A lock row has no readable value.
	if _, ok, err := store.Get(ctx, "lock"); err != nil || ok {
		t.Fatalf("lock token leaked through Get: ok=%v err=%v", ok, err)
	}
}

func TestSQLStoreExpiredLockRowIsReused(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	if _, err := store.TryAcquire(ctx, "lock", "one", 20*time.Millisecond); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	acquired, err := store.TryAcquire(ctx, "lock", "two", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected expired row reuse: acquired=%v err=%v", acquired, err)
	}
	// The old token can no longer release.
	released, err := store.Release(ctx, "lock", "one")
	if err != nil || released {
		t.Fatalf("stale token released the lock: released=%v err=%v", released, err)
	}
	released, err = store.Release(ctx, "lock", "two")
	if err != nil || !released {
		t.Fatalf("owner release failed: released=%v err=%v", released, err)
	}
}

func TestSQLStoreReleaseChecksToken(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	if _, err := store.TryAcquire(ctx, "lock", "one", time.Minute); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	released, err := store.Release(ctx, "lock", "wrong")
	if err != nil || released {
		t.Fatalf("foreign token released the lock: released=%v err=%v", released, err)
	}
	released, err = store.Release(ctx, "lock", "one")
	if err != nil || !released {
		t.Fatalf("owner release failed: released=%v err=%v", released, err)
	}
	if released, _ := store.Release(ctx, "lock", "one"); released {
		t.Fatalf("expected released=false on absent key")
	}
}

func TestSQLStoreRequiresDriverAndDSN(t *testing.T) {
	if _, err := newSQLStore(StoreConfig{}); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestSQLStoreDriver(t *testing.T) {
	if got := newTestSQLStore(t).Driver(); got != DriverSQL {
		t.Fatalf("unexpected driver %q", got)
	}
}

func TestValidateSQLTableName(t *testing.T) {
	for _, ok := range []string{"cachify_entries", "app.cache", "T1"} {
		if err := validateSQLTableName(ok); err != nil {
			t.Fatalf("expected %q to validate: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "  ", "1table", "ca-che", "t;drop", "a..b"} {
		if err := validateSQLTableName(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestIsDuplicateErr(t *testing.T) {
	cases := []struct {
		driver string
		msg    string
		want   bool
	}{
		{"sqlite", "constraint failed: UNIQUE constraint failed: cachify_entries.k", true},
		{"pgx", `ERROR: duplicate key value violates unique constraint "cachify_entries_pkey"`, true},
		{"mysql", "Error 1062: Duplicate entry 'k' for key 'PRIMARY'", true},
		{"sqlite", "database is locked", false},
		{"mysql", "connection refused", false},
	}
	for _, tc := range cases {
		if got := isDuplicateErr(errors.New(tc.msg), tc.driver); got != tc.want {
			t.Fatalf("%s %q: expected %v, got %v", tc.driver, tc.msg, tc.want, got)
		}
	}
}
