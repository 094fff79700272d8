package datastore

import (
	"fmt"

	"github.com/mxrc-robotics/mxrc/internal/versioneddata"
)

// Domain accessors wrap the Store with a dotted-namespace prefix and a
// fixed moduleID, giving each domain's caller-context (RT or Non-RT) a
// narrow, typed surface instead of direct key-string access.

// SensorDataAccessor reads/writes keys under sensor.*. In the normal
// deployment, the fieldbus driver (RT) is the sole writer and both RT and
// Non-RT may read.
type SensorDataAccessor struct {
	store    *Store
	moduleID string
}

func NewSensorDataAccessor(store *Store, moduleID string) *SensorDataAccessor {
	return &SensorDataAccessor{store: store, moduleID: moduleID}
}

func (a *SensorDataAccessor) key(name string) string { return fmt.Sprintf("sensor.%s", name) }

func (a *SensorDataAccessor) Register(name, typeName string, hot bool) {
	a.store.Register(a.key(name), typeName, hot)
}

func (a *SensorDataAccessor) Set(name string, value any) (uint64, error) {
	return a.store.Set(a.key(name), a.moduleID, value)
}

func (a *SensorDataAccessor) Get(name string) (versioneddata.Snapshot[any], error) {
	return a.store.Get(a.key(name), a.moduleID)
}

// RobotStateAccessor reads/writes keys under robot_state.*, the RT cycle's
// computed state consumed by orchestration layers.
type RobotStateAccessor struct {
	store    *Store
	moduleID string
}

func NewRobotStateAccessor(store *Store, moduleID string) *RobotStateAccessor {
	return &RobotStateAccessor{store: store, moduleID: moduleID}
}

func (a *RobotStateAccessor) key(name string) string { return fmt.Sprintf("robot_state.%s", name) }

func (a *RobotStateAccessor) Register(name, typeName string, hot bool) {
	a.store.Register(a.key(name), typeName, hot)
}

func (a *RobotStateAccessor) Set(name string, value any) (uint64, error) {
	return a.store.Set(a.key(name), a.moduleID, value)
}

func (a *RobotStateAccessor) Get(name string) (versioneddata.Snapshot[any], error) {
	return a.store.Get(a.key(name), a.moduleID)
}

// TaskStatusAccessor reads/writes keys under task_status.*, written by the
// task/sequence/action layers and polled by monitoring.
type TaskStatusAccessor struct {
	store    *Store
	moduleID string
}

func NewTaskStatusAccessor(store *Store, moduleID string) *TaskStatusAccessor {
	return &TaskStatusAccessor{store: store, moduleID: moduleID}
}

func (a *TaskStatusAccessor) key(name string) string { return fmt.Sprintf("task_status.%s", name) }

func (a *TaskStatusAccessor) Register(name, typeName string, hot bool) {
	a.store.Register(a.key(name), typeName, hot)
}

func (a *TaskStatusAccessor) Set(name string, value any) (uint64, error) {
	return a.store.Set(a.key(name), a.moduleID, value)
}

func (a *TaskStatusAccessor) Poll(name string) (versioneddata.Snapshot[any], error) {
	return a.store.Poll(a.key(name), a.moduleID)
}
