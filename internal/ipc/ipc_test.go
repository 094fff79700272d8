package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuffer_ReadEmptyReturnsFalse(t *testing.T) {
	b := NewLogBuffer(4)
	_, ok := b.Read()
	assert.False(t, ok)
}

func TestLogBuffer_OldestOverwriteOnOverflow(t *testing.T) {
	b := NewLogBuffer(4) // rounds to 4
	for i := 0; i < 6; i++ {
		b.Write(NewLogRecord(int64(i), 0, 0, 0, "msg"))
	}
	assert.Equal(t, uint64(2), b.DroppedCount())

	rec, ok := b.Read()
	require.True(t, ok)
	assert.Equal(t, int64(2), rec.TimestampNS) // records 0,1 were dropped
}

func TestLogBuffer_MessageRoundTrip(t *testing.T) {
	b := NewLogBuffer(8)
	b.Write(NewLogRecord(1, 1, 0, 42, "hello world"))
	rec, ok := b.Read()
	require.True(t, ok)
	assert.Equal(t, "hello world", rec.MessageString())
	assert.Equal(t, uint32(42), rec.ThreadID)
}

func TestIpcQueue_PushFailsWhenFull(t *testing.T) {
	q := NewIpcQueue(2)
	assert.True(t, q.Push(HeartbeatMessage()))
	assert.True(t, q.Push(HeartbeatMessage()))
	assert.False(t, q.Push(HeartbeatMessage()))
}

func TestIpcQueue_PopEmptyReturnsFalse(t *testing.T) {
	q := NewIpcQueue(2)
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestIpcQueue_FIFOOrder(t *testing.T) {
	q := NewIpcQueue(4)
	q.Push(ConfigUpdateLogLevelMessage(1, 2))
	q.Push(ConfigUpdateLogLevelMessage(3, 4))

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint32(1), first.ModuleID)

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint32(3), second.ModuleID)
}

func TestIpcQueue_WrapAround(t *testing.T) {
	q := NewIpcQueue(2)
	for round := 0; round < 5; round++ {
		require.True(t, q.Push(ConfigUpdateLogLevelMessage(uint32(round), 0)))
		msg, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, uint32(round), msg.ModuleID)
	}
}
