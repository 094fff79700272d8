package task

import (
	"sync"
	"time"
)

// TaskState is one task's monitored status (§4.9).
type TaskState struct {
	TaskID       string
	Status       Status
	Progress     float64
	StartTime    time.Time
	EndTime      time.Time
	ErrorMessage string
	RetryCount   int
}

// Counts is an aggregate view across all monitored tasks.
type Counts struct {
	Running   int
	Completed int
	Failed    int
	Cancelled int
}

// Monitor tracks per-task status under a single mutex, keeping aggregate
// run counts alongside individual task state (§4.9).
type Monitor struct {
	mu     sync.Mutex
	states map[string]*TaskState
}

func NewMonitor() *Monitor {
	return &Monitor{states: make(map[string]*TaskState)}
}

// StartTask records a task entering RUNNING.
func (m *Monitor) StartTask(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[taskID] = &TaskState{TaskID: taskID, Status: StatusRunning, StartTime: time.Now()}
}

// UpdateProgress records progress for a running task.
func (m *Monitor) UpdateProgress(taskID string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[taskID]; ok {
		st.Progress = progress
	}
}

// EndTask transitions taskID to a terminal status. COMPLETED always
// normalizes progress to 1.0.
func (m *Monitor) EndTask(taskID string, status Status, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[taskID]
	if !ok {
		st = &TaskState{TaskID: taskID, StartTime: time.Now()}
		m.states[taskID] = st
	}
	st.Status = status
	st.EndTime = time.Now()
	st.ErrorMessage = errMsg
	if status == StatusCompleted {
		st.Progress = 1.0
	}
}

// IncrementRetryCount records a retry against taskID's current state.
func (m *Monitor) IncrementRetryCount(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[taskID]; ok {
		st.RetryCount++
	}
}

// State returns a copy of taskID's current monitored state.
func (m *Monitor) State(taskID string) (TaskState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[taskID]
	if !ok {
		return TaskState{}, false
	}
	return *st, true
}

// AggregateCounts summarizes status across every monitored task.
func (m *Monitor) AggregateCounts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c Counts
	for _, st := range m.states {
		switch st.Status {
		case StatusRunning, StatusPaused, StatusIdle:
			c.Running++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		case StatusCancelled:
			c.Cancelled++
		}
	}
	return c
}
