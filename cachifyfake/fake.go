package cachifyfake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cachify/cachify"
)

// Op identifies a store operation for assertions.
type Op string

const (
	OpGet     Op = "get"
	OpSet     Op = "set"
	OpDelete  Op = "delete"
	OpAcquire Op = "acquire"
	OpRelease Op = "release"
)

// Fake exposes a deterministic in-memory client plus assertion helpers for
// tests. It wraps the memory store so no external services are needed.
type Fake struct {
	client *cachify.Client
	counts map[Op]map[string]int
	mu     sync.Mutex
}

// New creates a Fake backed by an in-memory store.
func New(opts ...cachify.Option) *Fake {
	store := &countingStore{inner: cachify.NewMemoryStore(context.Background())}
	f := &Fake{
		client: cachify.New(store, opts...),
		counts: make(map[Op]map[string]int),
	}
	store.onCount = f.record
	return f
}

// Client returns the client to inject into code under test.
func (f *Fake) Client() *cachify.Client { return f.client }

// Reset clears recorded counts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies key was touched by op the expected number of times.
// Keys are matched after prefixing, so pass the fully rendered store key.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		return 0
	}
	return f.counts[op][key]
}

// Total returns total calls for an op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

// countingStore wraps a Store to record calls.
type countingStore struct {
	inner   cachify.Store
	onCount func(Op, string)
}

func (s *countingStore) Driver() cachify.Driver { return s.inner.Driver() }

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.bump(OpGet, key)
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.bump(OpSet, key)
	return s.inner.Set(ctx, key, val, ttl)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.bump(OpDelete, key)
	return s.inner.Delete(ctx, key)
}

func (s *countingStore) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.bump(OpAcquire, key)
	return s.inner.TryAcquire(ctx, key, token, ttl)
}

func (s *countingStore) Release(ctx context.Context, key, token string) (bool, error) {
	s.bump(OpRelease, key)
	return s.inner.Release(ctx, key, token)
}

func (s *countingStore) bump(op Op, key string) {
	if s.onCount != nil {
		s.onCount(op, key)
	}
}
