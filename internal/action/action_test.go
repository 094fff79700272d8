package action

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAction sleeps for `sleepFor` before completing, unless cancelled first.
type fakeAction struct {
	id        string
	sleepFor  time.Duration
	failWith  error
	status    atomic.Value // Status
	progress  atomic.Value // float64
	cancelled atomic.Bool
}

func newFakeAction(id string, sleepFor time.Duration) *fakeAction {
	fa := &fakeAction{id: id, sleepFor: sleepFor}
	fa.status.Store(StatusPending)
	fa.progress.Store(0.0)
	return fa
}

func (a *fakeAction) ID() string   { return a.id }
func (a *fakeAction) Type() string { return "fake" }

func (a *fakeAction) Execute(ctx context.Context, ec *ExecutionContext) error {
	a.status.Store(StatusRunning)
	select {
	case <-time.After(a.sleepFor):
		if a.cancelled.Load() {
			a.status.Store(StatusCancelled)
			return nil
		}
		if a.failWith != nil {
			a.status.Store(StatusFailed)
			return a.failWith
		}
		a.status.Store(StatusCompleted)
		a.progress.Store(1.0)
		return nil
	case <-ctx.Done():
		a.status.Store(StatusCancelled)
		return ctx.Err()
	}
}

func (a *fakeAction) Cancel()            { a.cancelled.Store(true) }
func (a *fakeAction) Status() Status     { return a.status.Load().(Status) }
func (a *fakeAction) Progress() float64  { return a.progress.Load().(float64) }

func TestExecutor_SyncExecuteCompletes(t *testing.T) {
	e := NewExecutor(nil)
	act := newFakeAction("a1", 10*time.Millisecond)
	res, err := e.Execute(context.Background(), act, NewExecutionContext(), 0)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1.0, res.Progress)

	assert.False(t, e.Running("a1"), "result retrieval must remove the running entry")
}

func TestExecutor_TimeoutPromotesToTimeout(t *testing.T) {
	e := NewExecutor(nil)
	act := newFakeAction("a2", 500*time.Millisecond)

	start := time.Now()
	res, err := e.Execute(context.Background(), act, NewExecutionContext(), 200)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, res.Status)
	assert.GreaterOrEqual(t, elapsed.Milliseconds(), int64(200))
	assert.LessOrEqual(t, elapsed.Milliseconds(), int64(600))
}

func TestExecutor_CancelInvokesActionCancel(t *testing.T) {
	e := NewExecutor(nil)
	act := newFakeAction("a3", 200*time.Millisecond)

	id := e.ExecuteAsync(context.Background(), act, NewExecutionContext(), 0)
	require.NoError(t, e.Cancel(id))
	require.NoError(t, e.WaitForCompletion(id))

	res, err := e.Result(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
}

func TestExecutor_ResultNotRemovedUntilRetrieved(t *testing.T) {
	e := NewExecutor(nil)
	act := newFakeAction("a4", 5*time.Millisecond)

	id := e.ExecuteAsync(context.Background(), act, NewExecutionContext(), 0)
	require.NoError(t, e.WaitForCompletion(id))

	assert.True(t, e.Running(id), "entry must persist until Result is called")
	_, err := e.Result(id)
	require.NoError(t, err)
	assert.False(t, e.Running(id))
}

func TestExecutor_ClearCompletedSweepsFinishedUnretrieved(t *testing.T) {
	e := NewExecutor(nil)
	done := newFakeAction("a5", 5*time.Millisecond)
	inFlight := newFakeAction("a6", 200*time.Millisecond)

	doneID := e.ExecuteAsync(context.Background(), done, NewExecutionContext(), 0)
	inFlightID := e.ExecuteAsync(context.Background(), inFlight, NewExecutionContext(), 0)
	require.NoError(t, e.WaitForCompletion(doneID))

	assert.Equal(t, 1, e.ClearCompleted())
	assert.False(t, e.Running(doneID))
	assert.True(t, e.Running(inFlightID), "in-flight execution must survive the sweep")

	require.NoError(t, e.Cancel(inFlightID))
	require.NoError(t, e.WaitForCompletion(inFlightID))
}

func TestExecutor_UnknownActionIDErrors(t *testing.T) {
	e := NewExecutor(nil)
	_, err := e.Result("nonexistent")
	assert.Error(t, err)
	assert.Error(t, e.Cancel("nonexistent"))
	assert.Error(t, e.WaitForCompletion("nonexistent"))
}

func TestExecutionContext_SetGetRoundTrip(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("foo", 42)
	v, ok := ec.Get("foo")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = ec.Get("missing")
	assert.False(t, ok)

	ec.SetResult("a1", "done")
	v, ok = ec.Result("a1")
	require.True(t, ok)
	assert.Equal(t, "done", v)
}

func TestRegistry_ReRegistrationOverwrites(t *testing.T) {
	r := NewRegistry(nil)
	calls := 0
	r.RegisterType("fake", func(def Definition) (IAction, error) {
		calls++
		return newFakeAction(def.ID, time.Millisecond), nil
	})
	r.RegisterType("fake", func(def Definition) (IAction, error) {
		calls++
		return newFakeAction(def.ID, 2*time.Millisecond), nil
	})

	inst, err := r.CreateFromParameters("fake", nil, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID())
	assert.Equal(t, 1, calls)
}

func TestRegistry_UnknownTypeErrors(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.CreateFromParameters("missing", nil, 0)
	assert.Error(t, err)
}

func TestRegistry_CreateInstanceAssignsFreshID(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterType("fake", func(def Definition) (IAction, error) {
		return newFakeAction(def.ID, time.Millisecond), nil
	})
	r.RegisterDefinition(Definition{ID: "def1", Type: "fake"})

	i1, err := r.CreateInstance("def1")
	require.NoError(t, err)
	i2, err := r.CreateInstance("def1")
	require.NoError(t, err)
	assert.NotEqual(t, i1.ID(), i2.ID())
}
