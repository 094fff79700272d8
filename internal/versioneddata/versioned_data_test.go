package versioneddata

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionedData_MonotonicVersion(t *testing.T) {
	vd := New[int]()
	require.Equal(t, uint64(0), vd.Version())

	v1 := vd.Store(1)
	v2 := vd.Store(2)
	v3 := vd.Store(3)

	assert.Equal(t, uint64(1), v1)
	assert.Equal(t, uint64(2), v2)
	assert.Equal(t, uint64(3), v3)
	assert.True(t, v2 > v1)
	assert.True(t, v3 > v2)
}

func TestVersionedData_LoadReflectsLastStore(t *testing.T) {
	vd := NewWithValue(42)

	snap := vd.Load()
	assert.Equal(t, 42, snap.Value)
	assert.Equal(t, uint64(1), snap.Version)

	vd.Store(100)
	snap2 := vd.Load()
	assert.Equal(t, 100, snap2.Value)
	assert.True(t, snap2.IsNewerThan(snap))
}

func TestVersionedData_ConsistentReadPair(t *testing.T) {
	vd := NewWithValue("a")
	a := vd.Load()
	b := vd.Load()
	require.True(t, a.IsConsistentWith(b))
	assert.Equal(t, a.Value, b.Value)
}

func TestVersionedData_ConcurrentReadsDuringWrites(t *testing.T) {
	vd := New[int]()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			vd.Store(i)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		var lastVersion uint64
		for i := 0; i < 1000; i++ {
			snap := vd.Load()
			assert.GreaterOrEqual(t, snap.Version, lastVersion)
			lastVersion = snap.Version
		}
	}()

	wg.Wait()
	final := vd.Load()
	assert.Equal(t, uint64(1000), final.Version)
	assert.Equal(t, 1000, final.Value)
}
