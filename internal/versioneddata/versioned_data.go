// Package versioneddata implements the seqlock-style value wrapper shared
// between the RT and Non-RT halves of the runtime: VersionedData[T].
//
// Writers are single-writer per key, so a full seqlock parity bit isn't
// needed — an odd version never transiently exists. A writer stores the new
// value behind an atomic pointer swap (itself torn-read-free) and then bumps
// the version counter. A reader loads the version, loads the value, and
// reloads the version; equality confirms the value wasn't replaced mid-read.
package versioneddata

import (
	"sync/atomic"
	"time"
)

// Snapshot is an immutable observation of a VersionedData[T] at a point in
// time: the value plus the version and timestamp it was written with.
type Snapshot[T any] struct {
	Value       T
	Version     uint64
	TimestampNS int64
}

// IsConsistentWith reports whether two snapshots were taken from the same
// write (by version equality).
func (s Snapshot[T]) IsConsistentWith(other Snapshot[T]) bool {
	return s.Version == other.Version
}

// IsNewerThan reports whether s was written strictly after other.
func (s Snapshot[T]) IsNewerThan(other Snapshot[T]) bool {
	return s.Version > other.Version
}

// VersionedData holds a single value of type T with a monotonically
// increasing version and a write timestamp. Safe for one writer and any
// number of concurrent readers.
type VersionedData[T any] struct {
	value   atomic.Pointer[T]
	version atomic.Uint64
	tsNS    atomic.Int64
}

// New creates a VersionedData initialized to the zero value of T at version 0.
func New[T any]() *VersionedData[T] {
	v := &VersionedData[T]{}
	var zero T
	v.value.Store(&zero)
	return v
}

// NewWithValue creates a VersionedData initialized to initial at version 1.
func NewWithValue[T any](initial T) *VersionedData[T] {
	v := New[T]()
	v.Store(initial)
	return v
}

// Store writes a new value, incrementing the version and stamping the
// current wall-clock time. Must only be called by the single designated
// writer for this key.
func (v *VersionedData[T]) Store(value T) uint64 {
	v.value.Store(&value)
	v.tsNS.Store(time.Now().UnixNano())
	return v.version.Add(1)
}

// Load returns a consistent snapshot of the current value, version, and
// timestamp. On the RT writer's own goroutine this is always consistent by
// construction (no concurrent writer). Non-RT readers retry internally up
// to a small bound to ride out a write in progress; Load never blocks.
func (v *VersionedData[T]) Load() Snapshot[T] {
	for i := 0; i < 8; i++ {
		v1 := v.version.Load()
		ptr := v.value.Load()
		ts := v.tsNS.Load()
		v2 := v.version.Load()
		if v1 == v2 {
			return Snapshot[T]{Value: *ptr, Version: v1, TimestampNS: ts}
		}
	}
	// Extremely unlikely under single-writer semantics: fall back to a
	// single unsynchronized read rather than spin indefinitely.
	return Snapshot[T]{Value: *v.value.Load(), Version: v.version.Load(), TimestampNS: v.tsNS.Load()}
}

// Version returns the current version without loading the value.
func (v *VersionedData[T]) Version() uint64 { return v.version.Load() }
