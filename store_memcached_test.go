package cachify

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeMemcached struct {
	mu   sync.Mutex
	data map[string][]byte
}

func startFakeMemcached(t *testing.T) (stop func(), accept chan net.Conn) {
	t.Helper()
	server := &fakeMemcached{data: make(map[string][]byte)}
	accept = make(chan net.Conn, 4)
	go func() {
		for conn := range accept {
			go server.handle(conn)
		}
	}()
	return func() { close(accept) }, accept
}

func (s *fakeMemcached) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "get":
			key := parts[1]
			s.mu.Lock()
			v, ok := s.data[key]
			s.mu.Unlock()
			if ok {
				fmt.Fprintf(w, "VALUE %s 0 %d\r\n", key, len(v))
				w.Write(v)
				w.WriteString("\r\n")
			}
			w.WriteString("END\r\n")
		case "set", "add":
			// <verb> <key> <flags> <exptime> <bytes>
			key := parts[1]
			n, _ := strconv.Atoi(parts[4])
			buf := make([]byte, n)
			if _, err := readFullReader(r, buf); err != nil {
				return
			}
			r.ReadString('\n') // trailing \r\n
			s.mu.Lock()
			if parts[0] == "add" {
				if _, exists := s.data[key]; exists {
					s.mu.Unlock()
					w.WriteString("NOT_STORED\r\n")
					w.Flush()
					continue
				}
			}
			s.data[key] = buf
			s.mu.Unlock()
			w.WriteString("STORED\r\n")
		case "delete":
			key := parts[1]
			s.mu.Lock()
			_, existed := s.data[key]
			delete(s.data, key)
			s.mu.Unlock()
			if existed {
				w.WriteString("DELETED\r\n")
			} else {
				w.WriteString("NOT_FOUND\r\n")
			}
		default:
			w.WriteString("ERROR\r\n")
		}
		w.Flush()
	}
}

func readFullReader(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func newTestMemcachedStore(t *testing.T) Store {
	t.Helper()
	origDial := dialMemcached
	stop, accept := startFakeMemcached(t)
	t.Cleanup(func() {
		dialMemcached = origDial
		stop()
	})
	dialMemcached = func(_ context.Context, _, _ string) (net.Conn, error) {
		server, client := net.Pipe()
		accept <- server
		return client, nil
	}
	return newMemcachedStore([]string{"pipe"}, time.Minute)
}

func TestMemcachedStoreSetGetDelete(t *testing.T) {
	store := newTestMemcachedStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss: ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "alpha", []byte("hello"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, "alpha")
	if err != nil || !ok || string(body) != "hello" {
		t.Fatalf("get failed: ok=%v err=%v body=%q", ok, err, body)
	}
	if err := store.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "alpha"); ok {
		t.Fatalf("expected deleted key to be missing")
	}
}

func TestMemcachedStoreTryAcquireUsesAdd(t *testing.T) {
	store := newTestMemcachedStore(t)
	ctx := context.Background()

	acquired, err := store.TryAcquire(ctx, "lock", "one", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("first acquire failed: acquired=%v err=%v", acquired, err)
	}
	acquired, err = store.TryAcquire(ctx, "lock", "two", time.Minute)
	if err != nil || acquired {
		t.Fatalf("expected contention: acquired=%v err=%v", acquired, err)
	}
}

func TestMemcachedStoreReleaseChecksToken(t *testing.T) {
	store := newTestMemcachedStore(t)
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

func TestMemcachedExptimeFloorsAtOneSecond(t *testing.T) {
	store := newMemcachedStore(nil, time.Minute).(*memcachedStore)
	if got := store.exptime(10 * time.Millisecond); got != 1 {
		t.Fatalf("expected sub-second ttl to floor at 1, got %d", got)
	}
	if got := store.exptime(0); got != 60 {
		t.Fatalf("expected default ttl seconds, got %d", got)
	}
	if got := store.exptime(2 * time.Second); got != 2 {
		t.Fatalf("expected 2s, got %d", got)
	}
}

func TestMemcachedStoreDriver(t *testing.T) {
	if got := newMemcachedStore(nil, 0).Driver(); got != DriverMemcached {
		t.Fatalf("unexpected driver %q", got)
	}
}
