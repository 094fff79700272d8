// Package sequence implements the sequence layer (§4.8): ordered action
// steps with conditional branching and a retry policy, driven by an
// action.Executor.
package sequence

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mxrc-robotics/mxrc/internal/action"
)

// ActionStep is one entry in a SequenceDefinition's ordered step list (§3).
type ActionStep struct {
	ActionID   string
	ActionType string
	Parameters map[string]string
	TimeoutMS  int64
}

// Branch describes the true/false continuations evaluated after ActionID
// completes (§3 conditional_branches).
type Branch struct {
	Condition    string
	TrueActions  []string
	FalseActions []string
}

// RetryPolicy governs per-step retry-on-failure (§3).
type RetryPolicy struct {
	MaxRetries         int
	RetryDelayMS       int64
	ExponentialBackoff bool
	BackoffMultiplier  float64
}

// CalculateDelay returns the wait before retry attempt n (0-indexed): a
// constant RetryDelayMS, or RetryDelayMS × BackoffMultiplier^n when
// exponential backoff is enabled.
func (p RetryPolicy) CalculateDelay(n int) time.Duration {
	if !p.ExponentialBackoff {
		return time.Duration(p.RetryDelayMS) * time.Millisecond
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	ms := float64(p.RetryDelayMS) * math.Pow(mult, float64(n))
	return time.Duration(ms) * time.Millisecond
}

// Definition is an ordered sequence of action steps (§3 SequenceDefinition).
type Definition struct {
	ID                  string
	Name                string
	Steps               []ActionStep
	TimeoutMS           int64
	RetryPolicy         *RetryPolicy
	ConditionalBranches map[string]Branch
}

// StepResult captures one executed step's outcome, including retries spent
// getting there.
type StepResult struct {
	ActionID   string
	Status     action.Status
	Error      string
	RetryCount int
	DurationMS int64
}

// Result is a sequence's aggregate outcome (§4.8).
type Result struct {
	SequenceID  string
	Status      action.Status
	Steps       []StepResult
	FailedStep  string
	TotalTimeMS int64
}

// Registry holds SequenceDefinitions by id, looked up by the task layer
// when dispatching a SEQUENCE_BASED task.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
}

func (r *Registry) Get(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("sequence: unknown definition %q", id)
	}
	return d, nil
}
