package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mxrc-robotics/mxrc/internal/action"
	"github.com/mxrc-robotics/mxrc/internal/sequence"
	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// pausePollInterval is how often Execute rechecks a paused task's flag
// while waiting to be resumed or cancelled.
const pausePollInterval = 20 * time.Millisecond

// taskState is one task's cooperative control state, guarded by
// Executor.stateMu. Entries persist across calls so Cancel/Pause/Resume can
// reach a task from outside its own Execute goroutine, mirroring the
// stateMutex_-guarded state map pattern.
type taskState struct {
	status          Status
	progress        float64
	cancelRequested bool
	pauseRequested  bool
}

// Executor dispatches a Definition to the action or sequence layer
// depending on its Kind (§4.9).
type Executor struct {
	actionRegistry   *action.Registry
	actionExecutor   *action.Executor
	sequenceRegistry *sequence.Registry
	sequenceEngine   *sequence.Engine
	logger           *mxlog.Logger

	stateMu sync.Mutex
	states  map[string]*taskState
}

func NewExecutor(actionRegistry *action.Registry, actionExecutor *action.Executor, sequenceRegistry *sequence.Registry, sequenceEngine *sequence.Engine, logger *mxlog.Logger) *Executor {
	return &Executor{
		actionRegistry:   actionRegistry,
		actionExecutor:   actionExecutor,
		sequenceRegistry: sequenceRegistry,
		sequenceEngine:   sequenceEngine,
		logger:           logger,
		states:           make(map[string]*taskState),
	}
}

func (e *Executor) getOrCreateState(taskID string) *taskState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st, ok := e.states[taskID]
	if !ok {
		st = &taskState{status: StatusIdle}
		e.states[taskID] = st
	}
	return st
}

// Cancel requests cooperative cancellation of taskID. If the task is paused
// before dispatch, Execute observes the flag at its next poll and returns
// StatusCancelled without starting dispatch. A cancel made once dispatch
// has started is not forwarded to the running action or sequence.
func (e *Executor) Cancel(taskID string) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st, ok := e.states[taskID]
	if !ok {
		return
	}
	st.cancelRequested = true
}

// Pause marks taskID PAUSED, whatever its current state. Execute polls the flag
// before starting dispatch and blocks there until Resume or Cancel.
func (e *Executor) Pause(taskID string) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st, ok := e.states[taskID]
	if !ok {
		return
	}
	st.pauseRequested = true
	st.status = StatusPaused
}

// Resume is the inverse of Pause: it clears the pause flag and returns the
// task to RUNNING.
func (e *Executor) Resume(taskID string) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st, ok := e.states[taskID]
	if !ok {
		return
	}
	st.pauseRequested = false
	st.status = StatusRunning
}

// Status reports taskID's last-known cooperative state, IDLE if unknown.
func (e *Executor) Status(taskID string) Status {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st, ok := e.states[taskID]
	if !ok {
		return StatusIdle
	}
	return st.status
}

// Progress reports taskID's last-recorded progress, 0 if unknown.
func (e *Executor) Progress(taskID string) float64 {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st, ok := e.states[taskID]
	if !ok {
		return 0
	}
	return st.progress
}

// waitWhilePaused blocks while taskID is paused, returning true if a
// cancellation was observed (either while paused or on the initial check)
// so the caller can skip dispatch.
func (e *Executor) waitWhilePaused(ctx context.Context, taskID string) (cancelled bool) {
	for {
		e.stateMu.Lock()
		st := e.states[taskID]
		if st.cancelRequested {
			e.stateMu.Unlock()
			return true
		}
		if !st.pauseRequested {
			e.stateMu.Unlock()
			return false
		}
		e.stateMu.Unlock()

		select {
		case <-ctx.Done():
			return true
		case <-time.After(pausePollInterval):
		}
	}
}

// Execute runs def once, synchronously, against a fresh ExecutionContext.
// It honors Cancel/Pause/Resume requests made against def.ID before
// dispatch begins; once dispatch has started the underlying action or
// sequence layer owns cooperative cancellation for its own duration.
func (e *Executor) Execute(ctx context.Context, def Definition) Result {
	start := time.Now()
	ec := action.NewExecutionContext()

	// A fresh run clears any stale cancellation left by a prior completed
	// execution, but a pause requested ahead of this call (the task is
	// queued to start paused) is left standing for waitWhilePaused below.
	st := e.getOrCreateState(def.ID)
	e.stateMu.Lock()
	st.cancelRequested = false
	if !st.pauseRequested {
		st.status = StatusRunning
	}
	e.stateMu.Unlock()

	if e.logger != nil {
		e.logger.LogTaskExecution(ctx, def.ID, string(def.ExecutionMode), nil)
	}

	if cancelled := e.waitWhilePaused(ctx, def.ID); cancelled {
		res := Result{TaskID: def.ID, Status: StatusCancelled, ExecutionTimeMS: time.Since(start).Milliseconds()}
		e.recordTerminal(def.ID, res)
		return res
	}

	var res Result
	switch def.Kind {
	case KindSingleAction:
		res = e.executeSingleAction(ctx, def, ec, start)
	case KindSequenceBased:
		res = e.executeSequence(ctx, def, ec, start)
	default:
		res = Result{
			TaskID:          def.ID,
			Status:          StatusFailed,
			ErrorMessage:    fmt.Sprintf("task: unknown kind %q", def.Kind),
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		}
	}

	e.recordTerminal(def.ID, res)
	return res
}

func (e *Executor) recordTerminal(taskID string, res Result) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	st, ok := e.states[taskID]
	if !ok {
		return
	}
	st.status = res.Status
	st.progress = res.Progress
}

func (e *Executor) executeSingleAction(ctx context.Context, def Definition, ec *action.ExecutionContext, start time.Time) Result {
	act, err := e.actionRegistry.CreateInstance(def.ActionID)
	if err != nil {
		return Result{TaskID: def.ID, Status: StatusFailed, ErrorMessage: err.Error(), ExecutionTimeMS: time.Since(start).Milliseconds()}
	}

	timeoutMS := int64(0)
	if adef, ok := e.actionRegistry.Definition(def.ActionID); ok {
		timeoutMS = adef.TimeoutMS
	}

	execRes, err := e.actionExecutor.Execute(ctx, act, ec, timeoutMS)
	if err != nil {
		return Result{TaskID: def.ID, Status: StatusFailed, ErrorMessage: err.Error(), ExecutionTimeMS: time.Since(start).Milliseconds()}
	}

	return Result{
		TaskID:          def.ID,
		Status:          mapActionStatus(execRes.Status),
		Progress:        execRes.Progress,
		ErrorMessage:    execRes.ErrorMessage,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		ActionResult:    &execRes,
	}
}

func (e *Executor) executeSequence(ctx context.Context, def Definition, ec *action.ExecutionContext, start time.Time) Result {
	seqDef, err := e.sequenceRegistry.Get(def.SequenceID)
	if err != nil {
		return Result{TaskID: def.ID, Status: StatusFailed, ErrorMessage: err.Error(), ExecutionTimeMS: time.Since(start).Milliseconds()}
	}

	seqRes := e.sequenceEngine.Execute(ctx, seqDef, ec)

	progress := 0.0
	if len(seqRes.Steps) > 0 {
		completed := 0
		for _, s := range seqRes.Steps {
			if s.Status == action.StatusCompleted {
				completed++
			}
		}
		progress = float64(completed) / float64(len(seqRes.Steps))
	}

	errMsg := ""
	if seqRes.Status != action.StatusCompleted {
		errMsg = fmt.Sprintf("sequence failed at step %q", seqRes.FailedStep)
	}

	return Result{
		TaskID:          def.ID,
		Status:          mapActionStatus(seqRes.Status),
		Progress:        progress,
		ErrorMessage:    errMsg,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
}

func mapActionStatus(s action.Status) Status {
	switch s {
	case action.StatusCompleted:
		return StatusCompleted
	case action.StatusCancelled:
		return StatusCancelled
	case action.StatusFailed, action.StatusTimeout:
		return StatusFailed
	default:
		return StatusRunning
	}
}
