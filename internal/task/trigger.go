package task

import (
	"sync"
	"sync/atomic"

	"github.com/mxrc-robotics/mxrc/internal/action"
	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

type triggerEntry struct {
	taskID   string
	callback Callback
}

// TriggerManager maps event names to the tasks listening for them (§4.9).
// FireEvent snapshots the listener list under lock, releases the lock, then
// invokes callbacks so a callback that registers or fires another trigger
// cannot deadlock against the manager's own mutex.
type TriggerManager struct {
	mu         sync.RWMutex
	byEvent    map[string][]*triggerEntry
	execCounts map[string]*atomic.Uint64
	logger     *mxlog.Logger
}

func NewTriggerManager(logger *mxlog.Logger) *TriggerManager {
	return &TriggerManager{
		byEvent:    make(map[string][]*triggerEntry),
		execCounts: make(map[string]*atomic.Uint64),
		logger:     logger,
	}
}

// RegisterTrigger subscribes taskID's callback to eventName.
func (m *TriggerManager) RegisterTrigger(taskID, eventName string, cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEvent[eventName] = append(m.byEvent[eventName], &triggerEntry{taskID: taskID, callback: cb})
	if _, ok := m.execCounts[taskID]; !ok {
		m.execCounts[taskID] = &atomic.Uint64{}
	}
}

// UnregisterTrigger removes taskID's subscription to eventName. An empty
// eventName removes every subscription held by taskID.
func (m *TriggerManager) UnregisterTrigger(taskID, eventName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if eventName == "" {
		for ev, entries := range m.byEvent {
			m.byEvent[ev] = filterOutTask(entries, taskID)
		}
		return
	}
	m.byEvent[eventName] = filterOutTask(m.byEvent[eventName], taskID)
}

func filterOutTask(entries []*triggerEntry, taskID string) []*triggerEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.taskID != taskID {
			out = append(out, e)
		}
	}
	return out
}

// FireEvent invokes every callback subscribed to eventName with a fresh
// ExecutionContext carrying event_name and event_data.
func (m *TriggerManager) FireEvent(eventName string, data any) {
	m.mu.RLock()
	entries := make([]*triggerEntry, len(m.byEvent[eventName]))
	copy(entries, m.byEvent[eventName])
	m.mu.RUnlock()

	for _, e := range entries {
		ec := action.NewExecutionContext()
		ec.Set("event_name", eventName)
		ec.Set("event_data", data)

		func() {
			defer func() {
				if r := recover(); r != nil && m.logger != nil {
					m.logger.WithComponent("trigger_manager").Errorf("task %s trigger callback panicked: %v", e.taskID, r)
				}
			}()
			e.callback(ec)
		}()

		m.mu.Lock()
		counter, ok := m.execCounts[e.taskID]
		if !ok {
			counter = &atomic.Uint64{}
			m.execCounts[e.taskID] = counter
		}
		m.mu.Unlock()
		counter.Add(1)
	}
}

// ExecutionCount returns how many times taskID's trigger callbacks have
// fired across all subscribed events.
func (m *TriggerManager) ExecutionCount(taskID string) uint64 {
	m.mu.RLock()
	counter, ok := m.execCounts[taskID]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return counter.Load()
}
