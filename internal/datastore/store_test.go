package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxrc-robotics/mxrc/pkg/mxerrors"
)

func TestStore_WriteToUnregisteredKeyFails(t *testing.T) {
	s := New(100)
	_, err := s.Set("sensor.unregistered", "", 1.0)
	require.Error(t, err)
	assert.Equal(t, mxerrors.CodeUnknownKey, mxerrors.CodeOf(err))
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	s := New(100)
	s.Register("sensor.joint1", "float64", false)

	version, err := s.Set("sensor.joint1", "", 3.14)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)

	snap, err := s.Get("sensor.joint1", "")
	require.NoError(t, err)
	assert.Equal(t, 3.14, snap.Value)
	assert.Equal(t, version, snap.Version)
}

func TestStore_VersionsStrictlyIncreasing(t *testing.T) {
	s := New(100)
	s.Register("k", "int", false)
	var last uint64
	for i := 0; i < 10; i++ {
		v, err := s.Set("k", "", i)
		require.NoError(t, err)
		assert.Greater(t, v, last)
		last = v
	}
}

func TestStore_TypeMismatch(t *testing.T) {
	s := New(100)
	s.Register("k", "int", false)
	_, err := s.Set("k", "", "not an int")
	require.Error(t, err)
	assert.Equal(t, mxerrors.CodeTypeMismatch, mxerrors.CodeOf(err))
}

func TestStore_AccessControlDefaultDeny(t *testing.T) {
	s := New(100)
	s.Register("robot_state.mode", "string", false)
	s.AccessControl().SetPolicy("robot_state.mode", "rt_cycle", true)

	_, err := s.Set("robot_state.mode", "rt_cycle", "running")
	require.NoError(t, err)

	_, err = s.Set("robot_state.mode", "untrusted_module", "idle")
	require.Error(t, err)
	assert.Equal(t, mxerrors.CodeAccessDenied, mxerrors.CodeOf(err))
}

func TestStore_AccessControlDefaultDenyWithNoPolicyAtAll(t *testing.T) {
	s := New(100)
	s.Register("robot_state.unguarded", "string", false)

	_, err := s.Set("robot_state.unguarded", "some_module", "running")
	require.Error(t, err)
	assert.Equal(t, mxerrors.CodeAccessDenied, mxerrors.CodeOf(err))

	_, err = s.Get("robot_state.unguarded", "some_module")
	require.Error(t, err)
	assert.Equal(t, mxerrors.CodeAccessDenied, mxerrors.CodeOf(err))

	err = s.Delete("robot_state.unguarded", "some_module")
	require.Error(t, err)
	assert.Equal(t, mxerrors.CodeAccessDenied, mxerrors.CodeOf(err))

	// The empty moduleID path (internal RT-path writers) still bypasses
	// access control entirely, unaffected by the key having no policy.
	_, err = s.Set("robot_state.unguarded", "", "running")
	require.NoError(t, err)
}

func TestStore_TTLExpiration(t *testing.T) {
	s := New(100)
	s.Register("task_status.temp", "string", false)
	_, err := s.Set("task_status.temp", "", "x")
	require.NoError(t, err)

	require.NoError(t, s.ApplyTTL("task_status.temp", -time.Second))

	expired := s.SweepExpired(time.Now())
	assert.Contains(t, expired, "task_status.temp")
	assert.False(t, s.IsRegistered("task_status.temp"))
}

func TestStore_HotKeysExemptFromTTL(t *testing.T) {
	s := New(100)
	s.Register("sensor.hot", "float64", true)
	require.NoError(t, s.ApplyTTL("sensor.hot", time.Millisecond))
	assert.False(t, s.Expiration().HasTTLPolicy("sensor.hot"))
}

func TestStore_WriteHookFires(t *testing.T) {
	var gotKey string
	var gotVersion uint64
	s := New(100, WithWriteHook(func(key string, value any, version uint64, ts int64) {
		gotKey = key
		gotVersion = version
	}))
	s.Register("k", "int", false)
	v, err := s.Set("k", "", 7)
	require.NoError(t, err)
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, v, gotVersion)
}

func TestAccessControl_DefaultDenyWithoutAnyRule(t *testing.T) {
	ac := NewAccessControl()
	assert.False(t, ac.HasAccess("any.key", "any.module"))
}
