package cachify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var dialMemcached = func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: 3 * time.Second}
	return d.DialContext(ctx, network, addr)
}

// memcachedStore speaks the memcached text protocol over a small per-server
// connection pool. TryAcquire maps onto the atomic "add" command with an
// exptime; Release has no compare-and-delete in the protocol, so it reads
// the held token and deletes on match. The read/delete window is narrow but
// real: prefer redis or dynamo when release safety after expiry matters.
type memcachedStore struct {
	addrs      []string
	defaultTTL time.Duration
	pools      map[string]chan *memcachedConn
	rr         uint32
}

type memcachedConn struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
}

func newMemcachedStore(addrs []string, defaultTTL time.Duration) Store {
	if len(addrs) == 0 {
		addrs = []string{"127.0.0.1:11211"}
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	pools := make(map[string]chan *memcachedConn, len(addrs))
	for _, addr := range addrs {
		pools[addr] = make(chan *memcachedConn, 16)
	}
	return &memcachedStore{addrs: addrs, defaultTTL: defaultTTL, pools: pools}
}

func (s *memcachedStore) Driver() Driver { return DriverMemcached }

func (s *memcachedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	mc, err := s.acquireConn(ctx)
	if err != nil {
		return nil, false, err
	}
	bad := false
	defer func() { s.releaseConn(mc, bad) }()

	value, ok, err := readValue(mc, "get", key)
	if err != nil {
		bad = true
		return nil, false, err
	}
	return value, ok, nil
}

func (s *memcachedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	mc, err := s.acquireConn(ctx)
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.releaseConn(mc, bad) }()

	line, err := storeCommand(mc, "set", key, value, s.exptime(ttl))
	if err != nil {
		bad = true
		return err
	}
	if !strings.HasPrefix(line, "STORED") {
		bad = true
		return fmt.Errorf("memcached set failed: %s", strings.TrimSpace(line))
	}
	return nil
}

func (s *memcachedStore) Delete(ctx context.Context, key string) error {
	mc, err := s.acquireConn(ctx)
	if err != nil {
		return err
	}
	bad := false
	defer func() { s.releaseConn(mc, bad) }()
	if err := deleteKey(mc, key); err != nil {
		bad = true
		return err
	}
	return nil
}

func (s *memcachedStore) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	mc, err := s.acquireConn(ctx)
	if err != nil {
		return false, err
	}
	bad := false
	defer func() { s.releaseConn(mc, bad) }()

	line, err := storeCommand(mc, "add", key, []byte(token), s.exptime(ttl))
	if err != nil {
		bad = true
		return false, err
	}
	switch {
	case strings.HasPrefix(line, "STORED"):
		return true, nil
	case strings.HasPrefix(line, "NOT_STORED"):
		return false, nil
	default:
		bad = true
		return false, fmt.Errorf("memcached add failed: %s", strings.TrimSpace(line))
	}
}

func (s *memcachedStore) Release(ctx context.Context, key, token string) (bool, error) {
	mc, err := s.acquireConn(ctx)
	if err != nil {
		return false, err
	}
	bad := false
	defer func() { s.releaseConn(mc, bad) }()

	held, ok, err := readValue(mc, "get", key)
	if err != nil {
		bad = true
		return false, err
	}
	if !ok || string(held) != token {
		return false, nil
	}
	if err := deleteKey(mc, key); err != nil {
		bad = true
		return false, err
	}
	return true, nil
}

func (s *memcachedStore) exptime(ttl time.Duration) int {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func readValue(mc *memcachedConn, verb, key string) ([]byte, bool, error) {
	if _, err := fmt.Fprintf(mc.conn, "%s %s\r\n", verb, key); err != nil {
		return nil, false, err
	}
	line, err := mc.reader.ReadString('\n')
	if err != nil {
		return nil, false, err
	}
	if line == "END\r\n" {
		return nil, false, nil
	}
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 4 || fields[0] != "VALUE" {
		return nil, false, fmt.Errorf("unexpected response: %s", strings.TrimSpace(line))
	}
	bytesLen, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, false, fmt.Errorf("parse length: %w", err)
	}
	value := make([]byte, bytesLen)
	if _, err := io.ReadFull(mc.reader, value); err != nil {
		return nil, false, err
	}
	// consume trailing \r\n and END
	if _, err := mc.reader.ReadString('\n'); err != nil {
		return nil, false, err
	}
	if _, err := mc.reader.ReadString('\n'); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func storeCommand(mc *memcachedConn, verb, key string, value []byte, exptime int) (string, error) {
	if _, err := fmt.Fprintf(mc.conn, "%s %s 0 %d %d\r\n", verb, key, exptime, len(value)); err != nil {
		return "", err
	}
	if _, err := mc.conn.Write(value); err != nil {
		return "", err
	}
	if _, err := mc.conn.Write([]byte("\r\n")); err != nil {
		return "", err
	}
	return mc.reader.ReadString('\n')
}

func deleteKey(mc *memcachedConn, key string) error {
	if _, err := fmt.Fprintf(mc.conn, "delete %s\r\n", key); err != nil {
		return err
	}
	// DELETED or NOT_FOUND; both satisfy idempotent delete.
	_, err := mc.reader.ReadString('\n')
	return err
}

func (s *memcachedStore) acquireConn(ctx context.Context) (*memcachedConn, error) {
	if len(s.addrs) == 0 {
		return nil, errors.New("memcached: no addresses configured")
	}
	var errs bytes.Buffer
	start := int(atomic.AddUint32(&s.rr, 1)-1) % len(s.addrs)
	for i := 0; i < len(s.addrs); i++ {
		addr := s.addrs[(start+i)%len(s.addrs)]
		if pool, ok := s.pools[addr]; ok {
			select {
			case mc := <-pool:
				if mc != nil {
					return mc, nil
				}
			default:
			}
		}
		conn, err := dialMemcached(ctx, "tcp", addr)
		if err == nil {
			return &memcachedConn{
				addr:   addr,
				conn:   conn,
				reader: bufio.NewReader(conn),
			}, nil
		}
		fmt.Fprintf(&errs, "%s: %v; ", addr, err)
	}
	return nil, fmt.Errorf("memcached dial failed: %s", errs.String())
}

func (s *memcachedStore) releaseConn(mc *memcachedConn, bad bool) {
	if mc == nil || mc.conn == nil {
		return
	}
	if bad {
		_ = mc.conn.Close()
		return
	}
	pool, ok := s.pools[mc.addr]
	if !ok {
		_ = mc.conn.Close()
		return
	}
	select {
	case pool <- mc:
	default:
		_ = mc.conn.Close()
	}
}
