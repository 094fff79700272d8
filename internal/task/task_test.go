package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxrc-robotics/mxrc/internal/action"
	"github.com/mxrc-robotics/mxrc/internal/sequence"
)

type okAction struct{ id string }

func (a *okAction) ID() string                          { return a.id }
func (a *okAction) Type() string                        { return "ok" }
func (a *okAction) Execute(context.Context, *action.ExecutionContext) error { return nil }
func (a *okAction) Cancel()                             {}
func (a *okAction) Status() action.Status               { return action.StatusCompleted }
func (a *okAction) Progress() float64                   { return 1.0 }

func newActionSetup() (*action.Registry, *action.Executor) {
	r := action.NewRegistry(nil)
	r.RegisterType("ok", func(def action.Definition) (action.IAction, error) {
		return &okAction{id: def.ID}, nil
	})
	r.RegisterDefinition(action.Definition{ID: "ok-def", Type: "ok", TimeoutMS: 1000})
	return r, action.NewExecutor(nil)
}

func TestExecutor_SingleActionDispatch(t *testing.T) {
	ar, ae := newActionSetup()
	sr := sequence.NewRegistry()
	se := sequence.NewEngine(ar, ae, nil, nil)
	exec := NewExecutor(ar, ae, sr, se, nil)

	def := Definition{ID: "t1", Kind: KindSingleAction, ActionID: "ok-def", ExecutionMode: ModeOnce}
	res := exec.Execute(context.Background(), def)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestExecutor_SequenceDispatch(t *testing.T) {
	ar, ae := newActionSetup()
	sr := sequence.NewRegistry()
	se := sequence.NewEngine(ar, ae, nil, nil)
	exec := NewExecutor(ar, ae, sr, se, nil)

	sr.Register(sequence.Definition{
		ID:    "seq1",
		Steps: []sequence.ActionStep{{ActionID: "s1", ActionType: "ok"}},
	})

	def := Definition{ID: "t2", Kind: KindSequenceBased, SequenceID: "seq1", ExecutionMode: ModeOnce}
	res := exec.Execute(context.Background(), def)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1.0, res.Progress)
}

func TestExecutor_UnknownKindFails(t *testing.T) {
	ar, ae := newActionSetup()
	sr := sequence.NewRegistry()
	se := sequence.NewEngine(ar, ae, nil, nil)
	exec := NewExecutor(ar, ae, sr, se, nil)

	res := exec.Execute(context.Background(), Definition{ID: "t3", Kind: "BOGUS"})
	assert.Equal(t, StatusFailed, res.Status)
}

func TestExecutor_CancelWhilePausedSkipsDispatch(t *testing.T) {
	ar, ae := newActionSetup()
	sr := sequence.NewRegistry()
	se := sequence.NewEngine(ar, ae, nil, nil)
	exec := NewExecutor(ar, ae, sr, se, nil)

	def := Definition{ID: "t4", Kind: KindSingleAction, ActionID: "ok-def", ExecutionMode: ModeOnce}

	// Pause ahead of the call so Execute's wait loop is entered
	// deterministically instead of racing dispatch.
	exec.getOrCreateState("t4")
	exec.Pause("t4")

	done := make(chan Result, 1)
	go func() {
		done <- exec.Execute(context.Background(), def)
	}()

	time.Sleep(40 * time.Millisecond)
	exec.Cancel("t4")

	select {
	case res := <-done:
		assert.Equal(t, StatusCancelled, res.Status)
		assert.Equal(t, StatusCancelled, exec.Status("t4"))
	case <-time.After(2 * time.Second):
		t.Fatal("execute did not observe cancel while paused")
	}
}

func TestExecutor_PauseBlocksUntilResume(t *testing.T) {
	ar, ae := newActionSetup()
	sr := sequence.NewRegistry()
	se := sequence.NewEngine(ar, ae, nil, nil)
	exec := NewExecutor(ar, ae, sr, se, nil)

	exec.getOrCreateState("t5")
	exec.Pause("t5")
	assert.Equal(t, StatusPaused, exec.Status("t5"))

	done := make(chan Result, 1)
	go func() {
		def := Definition{ID: "t5", Kind: KindSingleAction, ActionID: "ok-def", ExecutionMode: ModeOnce}
		done <- exec.Execute(context.Background(), def)
	}()

	time.Sleep(80 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("execute returned before resume")
	default:
	}

	exec.Resume("t5")
	select {
	case res := <-done:
		assert.Equal(t, StatusCompleted, res.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("execute did not unblock after resume")
	}
}

func TestPeriodicScheduler_StopAndRestart(t *testing.T) {
	s := NewPeriodicScheduler(nil)
	defer s.Shutdown()

	var calls atomic.Int32
	s.Start("t1", 100*time.Millisecond, func(ec *action.ExecutionContext) {
		calls.Add(1)
	})

	time.Sleep(550 * time.Millisecond)
	firstCount := s.ExecutionCount("t1")
	assert.GreaterOrEqual(t, firstCount, uint64(4))
	assert.LessOrEqual(t, firstCount, uint64(6))

	done := make(chan struct{})
	go func() {
		s.Start("t1", 50*time.Millisecond, func(ec *action.ExecutionContext) {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("restart deadlocked")
	}

	time.Sleep(150 * time.Millisecond)
	secondCount := s.ExecutionCount("t1")
	assert.Greater(t, secondCount, uint64(0))
	s.Stop("t1")
}

func TestPeriodicScheduler_StopIsIdempotentOnUnknownTask(t *testing.T) {
	s := NewPeriodicScheduler(nil)
	defer s.Shutdown()
	s.Stop("nonexistent")
}

func TestTriggerManager_FireEventInvokesSubscribers(t *testing.T) {
	tm := NewTriggerManager(nil)
	var received any
	tm.RegisterTrigger("t1", "door_opened", func(ec *action.ExecutionContext) {
		v, _ := ec.Get("event_data")
		received = v
	})

	tm.FireEvent("door_opened", "payload")
	require.NotNil(t, received)
	assert.Equal(t, "payload", received)
	assert.Equal(t, uint64(1), tm.ExecutionCount("t1"))
}

func TestTriggerManager_UnregisterAllRemovesEverySubscription(t *testing.T) {
	tm := NewTriggerManager(nil)
	var calls atomic.Int32
	tm.RegisterTrigger("t1", "a", func(*action.ExecutionContext) { calls.Add(1) })
	tm.RegisterTrigger("t1", "b", func(*action.ExecutionContext) { calls.Add(1) })

	tm.UnregisterTrigger("t1", "")
	tm.FireEvent("a", nil)
	tm.FireEvent("b", nil)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTriggerManager_PanicInCallbackDoesNotStopOthers(t *testing.T) {
	tm := NewTriggerManager(nil)
	var secondCalled atomic.Bool
	tm.RegisterTrigger("bad", "ev", func(*action.ExecutionContext) { panic("boom") })
	tm.RegisterTrigger("good", "ev", func(*action.ExecutionContext) { secondCalled.Store(true) })

	tm.FireEvent("ev", nil)
	assert.True(t, secondCalled.Load())
}

func TestMonitor_EndTaskCompletedNormalizesProgress(t *testing.T) {
	m := NewMonitor()
	m.StartTask("t1")
	m.UpdateProgress("t1", 0.4)
	m.EndTask("t1", StatusCompleted, "")

	st, ok := m.State("t1")
	require.True(t, ok)
	assert.Equal(t, 1.0, st.Progress)
	assert.Equal(t, StatusCompleted, st.Status)
}

func TestMonitor_AggregateCounts(t *testing.T) {
	m := NewMonitor()
	m.StartTask("a")
	m.StartTask("b")
	m.EndTask("a", StatusCompleted, "")
	m.EndTask("b", StatusFailed, "boom")

	counts := m.AggregateCounts()
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 0, counts.Running)
}
