package cachify

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	fileMagic      = "CFY1"
	fileHeaderSize = 13 // magic(4) + kind(1) + expiry millis(8)

	fileKindValue byte = 0
	fileKindLock  byte = 1

	fileAcquireAttempts = 4
)

// fileStore persists each entry in its own file under dir, named by the
// SHA-256 of the key. Cache values are written via temp file + rename so
// readers never observe a torn record. Lock acquisition uses O_EXCL create,
// which is atomic on POSIX filesystems; release is read-compare-remove and
// therefore best effort against a holder whose lock expired mid-release.
type fileStore struct {
	dir        string
	defaultTTL time.Duration
	mu         sync.Mutex // serializes in-process acquire/release on the same dir
}

func newFileStore(dir string, defaultTTL time.Duration) (Store, error) {
	if dir == "" {
		dir = defaultFileDir()
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &fileStore{dir: dir, defaultTTL: defaultTTL}, nil
}

func (s *fileStore) Driver() Driver { return DriverFile }

func (s *fileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := s.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	kind, exp, payload, err := decodeFileRecord(data)
	if err != nil {
		// Corrupt or foreign file; treat as a miss and clear it.
		_ = os.Remove(path)
		return nil, false, nil
	}
	if time.Now().UnixMilli() > exp {
		_ = os.Remove(path)
		return nil, false, nil
	}
	if kind != fileKindValue {
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *fileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	exp := time.Now().Add(ttl).UnixMilli()
	return s.writeAtomic(s.path(key), encodeFileRecord(fileKindValue, exp, value))
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *fileStore) TryAcquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	for attempt := 0; attempt < fileAcquireAttempts; attempt++ {
		exp := time.Now().Add(ttl).UnixMilli()
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			record := encodeFileRecord(fileKindLock, exp, []byte(token))
			if _, werr := f.Write(record); werr != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return false, werr
			}
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(path)
				return false, cerr
			}
			return true, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return false, err
		}
		// The file exists; it only blocks us while its record is live.
		data, readErr := os.ReadFile(path)
		if errors.Is(readErr, os.ErrNotExist) {
			continue
		}
		if readErr != nil {
			return false, readErr
		}
		_, recExp, _, decodeErr := decodeFileRecord(data)
		if decodeErr != nil || time.Now().UnixMilli() > recExp {
			_ = os.Remove(path)
			continue
		}
		return false, nil
	}
	return false, nil
}

func (s *fileStore) Release(_ context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	kind, exp, payload, err := decodeFileRecord(data)
	if err != nil {
		return false, nil
	}
	if kind != fileKindLock || time.Now().UnixMilli() > exp {
		return false, nil
	}
	if string(payload) != token {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	return true, nil
}

func (s *fileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".cache")
}

func (s *fileStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func encodeFileRecord(kind byte, expiresAt int64, payload []byte) []byte {
	record := make([]byte, fileHeaderSize+len(payload))
	copy(record, fileMagic)
	record[4] = kind
	binary.BigEndian.PutUint64(record[5:13], uint64(expiresAt))
	copy(record[fileHeaderSize:], payload)
	return record
}

func decodeFileRecord(data []byte) (kind byte, expiresAt int64, payload []byte, err error) {
	if len(data) < fileHeaderSize || string(data[:4]) != fileMagic {
		return 0, 0, nil, errors.New("malformed cache record")
	}
	kind = data[4]
	expiresAt = int64(binary.BigEndian.Uint64(data[5:13]))
	payload = cloneBytes(data[fileHeaderSize:])
	return kind, expiresAt, payload, nil
}
