package action

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// pollInterval is the timeout monitor's polling cadence (§4.7).
const pollInterval = 50 * time.Millisecond

// Result is the outcome of one action execution (§4.7 ExecutionResult).
type Result struct {
	ActionID        string
	Status          Status
	Progress        float64
	ErrorMessage    string
	ExecutionTimeMS int64
	RetryCount      int
}

// state tracks one in-flight execution. Not exported: callers interact with
// it only through the Executor's id-keyed API.
type state struct {
	action    IAction
	done      chan struct{}
	startTime time.Time
	timeout   time.Duration

	mu              sync.Mutex
	err             error
	cancelRequested atomic.Bool
	timedOut        atomic.Bool
	retrieved       atomic.Bool
	retryCount      int
}

// Executor runs IAction instances asynchronously, tracking in-flight state
// under running and enforcing a soft timeout via a polling monitor (§4.7).
// An entry is removed from running when its result is retrieved via
// Result, or, once finished, by ClearCompleted.
type Executor struct {
	mu      sync.RWMutex
	running map[string]*state
	logger  *mxlog.Logger
}

func NewExecutor(logger *mxlog.Logger) *Executor {
	return &Executor{running: make(map[string]*state), logger: logger}
}

// ExecuteAsync starts action in the background and returns immediately.
// If timeoutMS > 0 a monitor goroutine polls every pollInterval and
// requests cancellation once the deadline has elapsed.
func (e *Executor) ExecuteAsync(ctx context.Context, act IAction, ec *ExecutionContext, timeoutMS int64) string {
	st := &state{
		action:    act,
		done:      make(chan struct{}),
		startTime: time.Now(),
		timeout:   time.Duration(timeoutMS) * time.Millisecond,
	}

	e.mu.Lock()
	e.running[act.ID()] = st
	e.mu.Unlock()

	go func() {
		err := act.Execute(ctx, ec)
		st.mu.Lock()
		st.err = err
		st.mu.Unlock()
		close(st.done)
	}()

	if timeoutMS > 0 {
		go e.monitor(act.ID(), st)
	}

	return act.ID()
}

func (e *Executor) monitor(actionID string, st *state) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-st.done:
			return
		case <-ticker.C:
			if time.Since(st.startTime) > st.timeout && !st.cancelRequested.Load() {
				st.timedOut.Store(true)
				st.cancelRequested.Store(true)
				st.action.Cancel()
				if e.logger != nil {
					e.logger.WithComponent("action_executor").Warnf("action %s exceeded timeout %s, cancel requested", actionID, st.timeout)
				}
			}
		}
	}
}

// Cancel marks actionID's cancel-requested flag and invokes the action's
// own Cancel outside any executor lock.
func (e *Executor) Cancel(actionID string) error {
	e.mu.RLock()
	st, ok := e.running[actionID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("action: %q is not running", actionID)
	}
	st.cancelRequested.Store(true)
	st.action.Cancel()
	return nil
}

// WaitForCompletion blocks until actionID's execution goroutine returns.
// It does not remove the running entry; call Result to retrieve and clear
// it.
func (e *Executor) WaitForCompletion(actionID string) error {
	e.mu.RLock()
	st, ok := e.running[actionID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("action: %q is not running", actionID)
	}
	<-st.done
	return nil
}

// Result returns actionID's current outcome. If the execution has finished,
// the result carries actual timing, and the running entry is removed on
// first retrieval (the executor's id-reuse invariant). An execution cancelled
// by the timeout monitor, or a cancel-requested action that never reported
// CANCELLED, is promoted to TIMEOUT.
func (e *Executor) Result(actionID string) (Result, error) {
	e.mu.RLock()
	st, ok := e.running[actionID]
	e.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("action: %q is not running", actionID)
	}

	select {
	case <-st.done:
	default:
		return Result{
			ActionID:        actionID,
			Status:          st.action.Status(),
			Progress:        st.action.Progress(),
			ExecutionTimeMS: time.Since(st.startTime).Milliseconds(),
			RetryCount:      st.retryCount,
		}, nil
	}

	status := st.action.Status()
	st.mu.Lock()
	execErr := st.err
	st.mu.Unlock()

	if st.timedOut.Load() || (st.cancelRequested.Load() && status != StatusCancelled) {
		status = StatusTimeout
	}

	res := Result{
		ActionID:        actionID,
		Status:          status,
		Progress:        st.action.Progress(),
		ExecutionTimeMS: time.Since(st.startTime).Milliseconds(),
		RetryCount:      st.retryCount,
	}
	if execErr != nil {
		res.ErrorMessage = execErr.Error()
	}

	if st.retrieved.CompareAndSwap(false, true) {
		e.mu.Lock()
		delete(e.running, actionID)
		e.mu.Unlock()
	}

	return res, nil
}

// Execute runs act synchronously: start, wait, retrieve.
func (e *Executor) Execute(ctx context.Context, act IAction, ec *ExecutionContext, timeoutMS int64) (Result, error) {
	id := e.ExecuteAsync(ctx, act, ec, timeoutMS)
	if err := e.WaitForCompletion(id); err != nil {
		return Result{}, err
	}
	return e.Result(id)
}

// Running reports whether actionID still has a tracked execution state.
func (e *Executor) Running(actionID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.running[actionID]
	return ok
}

// RunningCount returns the number of in-flight or unretrieved executions.
func (e *Executor) RunningCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.running)
}

// ClearCompleted sweeps finished executions out of running, bounding its
// growth for callers that poll Running/status elsewhere and never retrieve
// a Result. Returns the number of entries removed.
func (e *Executor) ClearCompleted() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, st := range e.running {
		select {
		case <-st.done:
			delete(e.running, id)
			removed++
		default:
		}
	}
	return removed
}
