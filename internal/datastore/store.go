// Package datastore implements the process-wide keyed VersionedData store
// (§3 DataStore, §4.2), its access control and expiration mechanisms, and
// domain-scoped typed accessors.
package datastore

import (
	"fmt"
	"sync"
	"time"

	"github.com/mxrc-robotics/mxrc/internal/versioneddata"
	"github.com/mxrc-robotics/mxrc/pkg/mxerrors"
)

// entry is one registered key's storage slot: its fixed type, its value
// wrapper, and whether it's a hot key (exempt from expiration and LRU
// tracking; the write hook still fires for it).
type entry struct {
	typeName string
	hot      bool
	data     *versioneddata.VersionedData[any]
}

// WriteHook is invoked after every successful Set, once the write has
// passed the access-control and type checks — used to tee writes to the bag recorder
// (C11) and to publish "key_updated" events (C6).
type WriteHook func(key string, value any, version uint64, timestampNS int64)

// Store is the process-wide key -> VersionedData map described in §3/§4.2.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	access     *AccessControl
	expiration *ExpirationManager
	metrics    *MetricsCollector

	onWrite      WriteHook
	deniedEvents func(key, moduleID string)
}

// Option configures a Store at construction.
type Option func(*Store)

func WithWriteHook(h WriteHook) Option { return func(s *Store) { s.onWrite = h } }

func WithAccessDeniedHook(h func(key, moduleID string)) Option {
	return func(s *Store) { s.deniedEvents = h }
}

// New creates an empty Store. lruCapacity bounds the non-hot-key LRU index.
func New(lruCapacity int, opts ...Option) *Store {
	s := &Store{
		entries:    make(map[string]*entry),
		access:     NewAccessControl(),
		expiration: NewExpirationManager(lruCapacity),
		metrics:    NewMetricsCollector(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) AccessControl() *AccessControl       { return s.access }
func (s *Store) Expiration() *ExpirationManager       { return s.expiration }
func (s *Store) Metrics() *MetricsCollector           { return s.metrics }

// Register declares key with a fixed type and hot-key designation. Must be
// called before any Get/Set against key; a write to an unregistered key
// fails per the §3 invariant that a key's type is fixed at registration.
func (s *Store) Register(key, typeName string, hot bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{
		typeName: typeName,
		hot:      hot,
		data:     versioneddata.New[any](),
	}
}

// Set writes value to key on behalf of moduleID. moduleID == "" bypasses
// access control (used internally by RT-path writers that own the key
// outright, e.g. the fieldbus driver writing sensor.* under its own
// registration).
func (s *Store) Set(key, moduleID string, value any) (uint64, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return 0, mxerrors.UnknownKey(key)
	}

	if moduleID != "" && !s.access.HasAccess(key, moduleID) {
		if s.deniedEvents != nil {
			s.deniedEvents(key, moduleID)
		}
		return 0, mxerrors.AccessDenied(key, moduleID)
	}

	if err := checkType(key, e.typeName, value); err != nil {
		return 0, err
	}

	version := e.data.Store(value)
	s.metrics.IncrementSet()

	if !e.hot {
		s.expiration.RecordAccess(key)
	}

	if s.onWrite != nil {
		snap := e.data.Load()
		s.onWrite(key, snap.Value, version, snap.TimestampNS)
	}
	return version, nil
}

// Get returns a consistent snapshot of key's current value.
func (s *Store) Get(key, moduleID string) (versioneddata.Snapshot[any], error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return versioneddata.Snapshot[any]{}, mxerrors.UnknownKey(key)
	}
	if moduleID != "" && !s.access.HasAccess(key, moduleID) {
		if s.deniedEvents != nil {
			s.deniedEvents(key, moduleID)
		}
		return versioneddata.Snapshot[any]{}, mxerrors.AccessDenied(key, moduleID)
	}

	s.metrics.IncrementGet()
	if !e.hot {
		s.expiration.RecordAccess(key)
	}
	return e.data.Load(), nil
}

// Poll is semantically identical to Get but counted separately (§4.2
// metrics distinguish poll_calls from get_calls for periodic-read callers).
func (s *Store) Poll(key, moduleID string) (versioneddata.Snapshot[any], error) {
	snap, err := s.Get(key, moduleID)
	if err == nil {
		s.metrics.IncrementPoll()
	}
	return snap, err
}

// Delete removes a key's registration entirely.
func (s *Store) Delete(key, moduleID string) error {
	s.mu.Lock()
	_, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return mxerrors.UnknownKey(key)
	}
	if moduleID != "" && !s.access.HasAccess(key, moduleID) {
		s.mu.Unlock()
		if s.deniedEvents != nil {
			s.deniedEvents(key, moduleID)
		}
		return mxerrors.AccessDenied(key, moduleID)
	}
	delete(s.entries, key)
	s.mu.Unlock()

	s.metrics.IncrementDelete()
	s.expiration.RemoveTTLPolicy(key)
	s.expiration.RemoveLRUPolicy(key)
	return nil
}

// ApplyTTL schedules key for expiration in ttl, unless key is a hot key
// (hot keys are exempt per §4.2).
func (s *Store) ApplyTTL(key string, ttl time.Duration) error {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return mxerrors.UnknownKey(key)
	}
	if e.hot {
		return nil
	}
	s.expiration.ApplyTTLPolicy(key, ttl)
	return nil
}

// SweepExpired deletes and returns all keys whose TTL elapsed as of now.
// Intended to be invoked periodically by a PeriodicScheduler task.
func (s *Store) SweepExpired(now time.Time) []string {
	expired := s.expiration.ExpiredKeys(now)
	s.mu.Lock()
	for _, k := range expired {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	for _, k := range expired {
		s.metrics.IncrementDelete()
	}
	return expired
}

// HotKeyCount returns the number of keys registered as hot keys.
func (s *Store) HotKeyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.hot {
			n++
		}
	}
	return n
}

func (s *Store) IsRegistered(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

func checkType(key, wantType string, value any) error {
	gotType := fmt.Sprintf("%T", value)
	if wantType == "" || wantType == "any" {
		return nil
	}
	if gotType != wantType {
		return mxerrors.TypeMismatch(key, wantType, gotType)
	}
	return nil
}
