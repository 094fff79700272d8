package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/mxrc-robotics/mxrc/internal/action"
	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// Engine drives a Definition's steps through an action.Executor, handling
// conditional branches and per-step retries (§4.8).
type Engine struct {
	registry  *action.Registry
	executor  *action.Executor
	condition ConditionProvider
	logger    *mxlog.Logger
}

func NewEngine(registry *action.Registry, executor *action.Executor, condition ConditionProvider, logger *mxlog.Logger) *Engine {
	if condition == nil {
		condition = NewGvalConditionProvider()
	}
	return &Engine{registry: registry, executor: executor, condition: condition, logger: logger}
}

// Execute walks def.Steps in order, following conditional branches and
// retrying failed steps per def.RetryPolicy. COMPLETED requires every
// executed step to have completed; the first non-completed step fails the
// whole sequence fast. A step already run as a branch target is not run
// again when the in-order walk reaches it.
func (e *Engine) Execute(ctx context.Context, def Definition, ec *action.ExecutionContext) Result {
	start := time.Now()
	idToIndex := make(map[string]int, len(def.Steps))
	for i, s := range def.Steps {
		idToIndex[s.ActionID] = i
	}

	res := Result{SequenceID: def.ID, Status: action.StatusRunning}

	idx := 0
	ranAsBranch := make(map[int]bool)
	for idx < len(def.Steps) {
		if ranAsBranch[idx] {
			idx++
			continue
		}
		step := def.Steps[idx]
		stepRes := e.runStepWithRetry(ctx, def.ID, step, ec, def.RetryPolicy)
		res.Steps = append(res.Steps, stepRes)

		if stepRes.Status != action.StatusCompleted {
			res.Status = stepRes.Status
			res.FailedStep = step.ActionID
			res.TotalTimeMS = time.Since(start).Milliseconds()
			return res
		}

		if branch, ok := def.ConditionalBranches[step.ActionID]; ok {
			matched, err := e.condition.Evaluate(ctx, branch.Condition, ec)
			if err != nil && e.logger != nil {
				e.logger.WithComponent("sequence_engine").WithError(err).Warn("condition evaluation failed, treating as false")
			}
			chosen := branch.FalseActions
			if err == nil && matched {
				chosen = branch.TrueActions
			}
			for _, actionID := range chosen {
				ci, ok := idToIndex[actionID]
				if !ok {
					continue
				}
				detour := def.Steps[ci]
				ranAsBranch[ci] = true
				detourRes := e.runStepWithRetry(ctx, def.ID, detour, ec, def.RetryPolicy)
				res.Steps = append(res.Steps, detourRes)
				if detourRes.Status != action.StatusCompleted {
					res.Status = detourRes.Status
					res.FailedStep = detour.ActionID
					res.TotalTimeMS = time.Since(start).Milliseconds()
					return res
				}
			}
		}

		idx++
	}

	res.Status = action.StatusCompleted
	res.TotalTimeMS = time.Since(start).Milliseconds()
	return res
}

func (e *Engine) runStepWithRetry(ctx context.Context, sequenceID string, step ActionStep, ec *action.ExecutionContext, policy *RetryPolicy) StepResult {
	start := time.Now()
	var errs *multierror.Error
	attempt := 0

	for {
		act, err := e.registry.CreateFromParameters(step.ActionType, step.Parameters, step.TimeoutMS)
		if err != nil {
			errs = multierror.Append(errs, err)
			return StepResult{
				ActionID:   step.ActionID,
				Status:     action.StatusFailed,
				Error:      errs.Error(),
				RetryCount: attempt,
				DurationMS: time.Since(start).Milliseconds(),
			}
		}

		execRes, err := e.executor.Execute(ctx, act, ec, step.TimeoutMS)
		if e.logger != nil {
			e.logger.LogSequenceStep(ctx, sequenceID, step.ActionID, attempt, err)
		}
		if err == nil && execRes.Status == action.StatusCompleted {
			ec.SetResult(step.ActionID, execRes)
			return StepResult{
				ActionID:   step.ActionID,
				Status:     action.StatusCompleted,
				RetryCount: attempt,
				DurationMS: time.Since(start).Milliseconds(),
			}
		}

		status := action.StatusFailed
		if err == nil {
			status = execRes.Status
		}
		if err != nil {
			errs = multierror.Append(errs, err)
		} else if execRes.ErrorMessage != "" {
			errs = multierror.Append(errs, &stepError{msg: execRes.ErrorMessage})
		} else {
			errs = multierror.Append(errs, &stepError{msg: fmt.Sprintf("action %s ended in status %s", step.ActionID, status)})
		}

		if policy == nil || attempt >= policy.MaxRetries {
			return StepResult{
				ActionID:   step.ActionID,
				Status:     status,
				Error:      errs.Error(),
				RetryCount: attempt,
				DurationMS: time.Since(start).Milliseconds(),
			}
		}

		delay := policy.CalculateDelay(attempt)
		select {
		case <-ctx.Done():
			return StepResult{
				ActionID:   step.ActionID,
				Status:     action.StatusCancelled,
				Error:      ctx.Err().Error(),
				RetryCount: attempt,
				DurationMS: time.Since(start).Milliseconds(),
			}
		case <-time.After(delay):
		}
		attempt++
	}
}

type stepError struct{ msg string }

func (e *stepError) Error() string { return e.msg }
