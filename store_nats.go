package cachify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const natsEnvelopeMarker = "cachify-v1"

// natsAcquireAttempts bounds the create/purge retry loop when a logically
// expired lock has to be cleared before reacquisition.
const natsAcquireAttempts = 4

// NATSKeyValue captures the subset of nats.KeyValue used by the store.
type NATSKeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Create(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Purge(key string, opts ...nats.DeleteOpt) error
}

// natsStore maps the adapter onto a JetStream KV bucket. JetStream KV has
// per-bucket TTLs rather than per-entry ones, so entries carry an expiry
// envelope unless the bucket itself is TTL-managed (bucketTTL).
type natsStore struct {
	kv         NATSKeyValue
	defaultTTL time.Duration
	bucketTTL  bool
}

type natsEnvelope struct {
	Marker    string `json:"m"`
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"ea"`
}

func newNATSStore(kv NATSKeyValue, defaultTTL time.Duration, bucketTTL bool) Store {
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	return &natsStore{
		kv:         kv,
		defaultTTL: defaultTTL,
		bucketTTL:  bucketTTL,
	}
}

func (s *natsStore) Driver() Driver { return DriverNATS }

func (s *natsStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.kv == nil {
		return nil, false, errors.New("nats key-value unavailable")
	}
	entryKey := encodeNATSKey(key)
	entry, err := s.kv.Get(entryKey)
	if isNATSMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
		return nil, false, nil
	}
	if s.bucketTTL {
		return cloneBytes(entry.Value()), true, nil
	}
	envelope, wrapped, err := decodeNATSEnvelope(entry.Value())
	if err != nil {
		return nil, false, err
	}
	if wrapped {
		if envelope.expired() {
			_ = s.kv.Purge(entryKey)
			return nil, false, nil
		}
		return cloneBytes(envelope.Value), true, nil
	}
	return cloneBytes(entry.Value()), true, nil
}

func (s *natsStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.kv == nil {
		return errors.New("nats key-value unavailable")
	}
	body := cloneBytes(value)
	if !s.bucketTTL {
		var err error
		body, err = s.encodeNATSEnvelope(value, ttl)
		if err != nil {
			return err
		}
	}
	_, err := s.kv.Put(encodeNATSKey(key), body)
	return err
}

func (s *natsStore) Delete(_ context.Context, key string) error {
	if s.kv == nil {
		return errors.New("nats key-value unavailable")
	}
	err := s.kv.Purge(encodeNATSKey(key))
	if isNATSMiss(err) {
		return nil
	}
	return err
}

func (s *natsStore) TryAcquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	if s.kv == nil {
		return false, errors.New("nats key-value unavailable")
	}
	entryKey := encodeNATSKey(key)
	body := []byte(token)
	if !s.bucketTTL {
		var err error
		body, err = s.encodeNATSEnvelope([]byte(token), ttl)
		if err != nil {
			return false, err
		}
	}
	for attempt := 0; attempt < natsAcquireAttempts; attempt++ {
		_, err := s.kv.Create(entryKey, body)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, nats.ErrKeyExists) {
			return false, err
		}
		if s.bucketTTL {
			return false, nil
		}
		// The key exists; it only blocks us while its envelope is live.
		entry, getErr := s.kv.Get(entryKey)
		if isNATSMiss(getErr) {
			continue
		}
		if getErr != nil {
			return false, getErr
		}
		envelope, wrapped, decodeErr := decodeNATSEnvelope(entry.Value())
		if decodeErr != nil {
			return false, decodeErr
		}
		if wrapped && envelope.expired() {
			if purgeErr := s.kv.Purge(entryKey, nats.LastRevision(entry.Revision())); purgeErr != nil && !isNATSMiss(purgeErr) {
				return false, nil
			}
			continue
		}
		return false, nil
	}
	return false, nil
}

func (s *natsStore) Release(_ context.Context, key, token string) (bool, error) {
	if s.kv == nil {
		return false, errors.New("nats key-value unavailable")
	}
	entryKey := encodeNATSKey(key)
	entry, err := s.kv.Get(entryKey)
	if isNATSMiss(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	held := entry.Value()
	if !s.bucketTTL {
		envelope, wrapped, decodeErr := decodeNATSEnvelope(entry.Value())
		if decodeErr != nil {
			return false, decodeErr
		}
		if wrapped {
			if envelope.expired() {
				return false, nil
			}
			held = envelope.Value
		}
	}
	if string(held) != token {
		return false, nil
	}
	// Revision-guarded purge: a concurrent reacquire bumps the revision and
	// the purge fails instead of dropping someone else's lock.
	if err := s.kv.Purge(entryKey, nats.LastRevision(entry.Revision())); err != nil {
		if isNATSMiss(err) {
			return false, nil
		}
		return false, nil
	}
	return true, nil
}

func (e natsEnvelope) expired() bool {
	return e.ExpiresAt > 0 && time.Now().UnixMilli() > e.ExpiresAt
}

func (s *natsStore) encodeNATSEnvelope(value []byte, ttl time.Duration) ([]byte, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	envelope := natsEnvelope{
		Marker:    natsEnvelopeMarker,
		Value:     cloneBytes(value),
		ExpiresAt: time.Now().Add(ttl).UnixMilli(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal nats envelope: %w", err)
	}
	return body, nil
}

func decodeNATSEnvelope(body []byte) (natsEnvelope, bool, error) {
	var envelope natsEnvelope
	if len(body) == 0 || body[0] != '{' {
		return envelope, false, nil
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return natsEnvelope{}, false, fmt.Errorf("decode nats envelope: %w", err)
	}
	if envelope.Marker != natsEnvelopeMarker {
		return natsEnvelope{}, false, nil
	}
	return envelope, true, nil
}

func isNATSMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

// encodeNATSKey maps arbitrary rendered keys onto the restricted KV key
// alphabet.
func encodeNATSKey(key string) string {
	if key == "" {
		return "_"
	}
	return "k." + base64.RawURLEncoding.EncodeToString([]byte(key))
}
