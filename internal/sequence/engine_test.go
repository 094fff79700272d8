package sequence

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxrc-robotics/mxrc/internal/action"
)

// flakyAction fails its first `failCount` executions, then completes.
type flakyAction struct {
	id        string
	failCount int32
	attempts  atomic.Int32
	status    atomic.Value
}

func newFlakyAction(id string, failCount int32) *flakyAction {
	a := &flakyAction{id: id, failCount: failCount}
	a.status.Store(action.StatusPending)
	return a
}

func (a *flakyAction) ID() string   { return a.id }
func (a *flakyAction) Type() string { return "flaky" }

func (a *flakyAction) Execute(ctx context.Context, ec *action.ExecutionContext) error {
	a.status.Store(action.StatusRunning)
	n := a.attempts.Add(1)
	if n <= a.failCount {
		a.status.Store(action.StatusFailed)
		return assertError("flaky failure")
	}
	a.status.Store(action.StatusCompleted)
	return nil
}

func (a *flakyAction) Cancel()           {}
func (a *flakyAction) Status() action.Status { return a.status.Load().(action.Status) }
func (a *flakyAction) Progress() float64 { return 0 }

type assertError string

func (e assertError) Error() string { return string(e) }

func newTestRegistryWithFlaky(failCount int32) (*action.Registry, *flakyAction) {
	r := action.NewRegistry(nil)
	var created *flakyAction
	r.RegisterType("flaky", func(def action.Definition) (action.IAction, error) {
		created = newFlakyAction(def.ID, failCount)
		return created, nil
	})
	r.RegisterType("always_ok", func(def action.Definition) (action.IAction, error) {
		return newFlakyAction(def.ID, 0), nil
	})
	return r, created
}

func TestEngine_SucceedsOnAllStepsCompleted(t *testing.T) {
	r, _ := newTestRegistryWithFlaky(0)
	exec := action.NewExecutor(nil)
	eng := NewEngine(r, exec, nil, nil)

	def := Definition{
		ID: "seq1",
		Steps: []ActionStep{
			{ActionID: "s1", ActionType: "always_ok"},
			{ActionID: "s2", ActionType: "always_ok"},
		},
	}

	res := eng.Execute(context.Background(), def, action.NewExecutionContext())
	assert.Equal(t, action.StatusCompleted, res.Status)
	assert.Len(t, res.Steps, 2)
}

func TestEngine_RetryThenSucceed(t *testing.T) {
	r, _ := newTestRegistryWithFlaky(0)
	exec := action.NewExecutor(nil)
	eng := NewEngine(r, exec, nil, nil)

	def := Definition{
		ID: "seq2",
		Steps: []ActionStep{
			{ActionID: "s1", ActionType: "flaky"},
		},
		RetryPolicy: &RetryPolicy{
			MaxRetries:         3,
			RetryDelayMS:       10,
			ExponentialBackoff: true,
			BackoffMultiplier:  2,
		},
	}
	// override registry constructor so the *same* underlying attempt counter
	// persists across the engine's per-attempt action construction.
	shared := newFlakyAction("s1", 2)
	r.RegisterType("flaky", func(def action.Definition) (action.IAction, error) {
		return shared, nil
	})

	start := time.Now()
	res := eng.Execute(context.Background(), def, action.NewExecutionContext())
	elapsed := time.Since(start)

	require.Equal(t, action.StatusCompleted, res.Status)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, 2, res.Steps[0].RetryCount)
	assert.GreaterOrEqual(t, elapsed.Milliseconds(), int64(30)) // 10 + 20ms
}

func TestEngine_FailFastWithoutRetryPolicy(t *testing.T) {
	r, _ := newTestRegistryWithFlaky(5)
	exec := action.NewExecutor(nil)
	eng := NewEngine(r, exec, nil, nil)

	def := Definition{
		ID: "seq3",
		Steps: []ActionStep{
			{ActionID: "s1", ActionType: "flaky"},
			{ActionID: "s2", ActionType: "always_ok"},
		},
	}

	res := eng.Execute(context.Background(), def, action.NewExecutionContext())
	assert.Equal(t, action.StatusFailed, res.Status)
	assert.Equal(t, "s1", res.FailedStep)
	assert.Len(t, res.Steps, 1, "second step must not execute after fail-fast")
}

func TestEngine_ConditionalBranchSelectsTrueActions(t *testing.T) {
	r, _ := newTestRegistryWithFlaky(0)
	exec := action.NewExecutor(nil)
	eng := NewEngine(r, exec, nil, nil)

	def := Definition{
		ID: "seq4",
		Steps: []ActionStep{
			{ActionID: "s1", ActionType: "always_ok"},
			{ActionID: "s2", ActionType: "always_ok"},
			{ActionID: "s3", ActionType: "always_ok"},
		},
		ConditionalBranches: map[string]Branch{
			"s1": {Condition: "1 == 1", TrueActions: []string{"s3"}, FalseActions: []string{"s2"}},
		},
	}

	res := eng.Execute(context.Background(), def, action.NewExecutionContext())
	require.Equal(t, action.StatusCompleted, res.Status)

	var ids []string
	for _, s := range res.Steps {
		ids = append(ids, s.ActionID)
	}
	assert.Equal(t, []string{"s1", "s3", "s2"}, ids, "s3 (true branch) then the next sequential step s2")
}

func TestRetryPolicy_CalculateDelay(t *testing.T) {
	p := RetryPolicy{RetryDelayMS: 100, ExponentialBackoff: false}
	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(5))

	exp := RetryPolicy{RetryDelayMS: 100, ExponentialBackoff: true, BackoffMultiplier: 2}
	assert.Equal(t, 100*time.Millisecond, exp.CalculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, exp.CalculateDelay(1))
	assert.Equal(t, 400*time.Millisecond, exp.CalculateDelay(2))
}

func TestRetryPolicy_MaxRetriesZeroNeverRetries(t *testing.T) {
	r, _ := newTestRegistryWithFlaky(1)
	exec := action.NewExecutor(nil)
	eng := NewEngine(r, exec, nil, nil)

	def := Definition{
		ID:          "seq5",
		Steps:       []ActionStep{{ActionID: "s1", ActionType: "flaky"}},
		RetryPolicy: &RetryPolicy{MaxRetries: 0, RetryDelayMS: 1},
	}
	res := eng.Execute(context.Background(), def, action.NewExecutionContext())
	assert.Equal(t, action.StatusFailed, res.Status)
	assert.Equal(t, 0, res.Steps[0].RetryCount)
}
