// Package task implements the task layer (§4.9): task definitions over
// single actions or sequences, a dispatching executor, a periodic
// scheduler, a trigger manager, and a status monitor.
package task

import "github.com/mxrc-robotics/mxrc/internal/action"

// Kind is what a TaskDefinition wraps: a single action or a sequence.
type Kind string

const (
	KindSingleAction Kind = "SINGLE_ACTION"
	KindSequenceBased Kind = "SEQUENCE_BASED"
)

// ExecutionMode is how a task is scheduled to run.
type ExecutionMode string

const (
	ModeOnce      ExecutionMode = "ONCE"
	ModePeriodic  ExecutionMode = "PERIODIC"
	ModeTriggered ExecutionMode = "TRIGGERED"
)

// Status is a task's run-state (§4.9).
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Definition describes one schedulable unit of work (§3 TaskDefinition).
type Definition struct {
	ID               string
	Name             string
	Kind             Kind
	ActionID         string // set when Kind == KindSingleAction
	SequenceID       string // set when Kind == KindSequenceBased
	ExecutionMode    ExecutionMode
	IntervalMS       int64
	CronExpr         string // optional, alternative to IntervalMS for PERIODIC
	TriggerCondition string
	Priority         int // 0..100
}

// Result is a task run's outcome, produced by the Executor and recorded by
// the Monitor.
type Result struct {
	TaskID          string
	Status          Status
	Progress        float64
	ErrorMessage    string
	ExecutionTimeMS int64
	ActionResult    *action.Result
}
