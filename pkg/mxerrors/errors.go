// Package mxerrors provides the runtime's unified error taxonomy.
package mxerrors

import (
	"errors"
	"fmt"
)

// Code identifies which of the six error categories a RuntimeError belongs
// to.
type Code string

const (
	// CodeInitFatal: missing shared memory, invalid schema, fieldbus
	// unreachable at startup. Terminates the process.
	CodeInitFatal Code = "INIT_FATAL"
	// CodeDeadlineMiss: the RT cycle overran its period budget.
	CodeDeadlineMiss Code = "DEADLINE_MISS"
	// CodeCommFailure: fieldbus WKC mismatch, IPC queue full, shared-memory
	// attach failure during normal operation.
	CodeCommFailure Code = "COMM_FAILURE"
	// CodeExecutionFailure: an action failed, timed out, or was cancelled.
	CodeExecutionFailure Code = "EXECUTION_FAILURE"
	// CodeAccessDenied: DataStore access-control policy rejected a caller.
	CodeAccessDenied Code = "ACCESS_DENIED"
	// CodeTypeMismatch: a DataStore write's type didn't match the key's
	// registered type.
	CodeTypeMismatch Code = "TYPE_MISMATCH"
	// CodeUnknownKey: a DataStore operation referenced an unregistered key.
	CodeUnknownKey Code = "UNKNOWN_KEY"
	// CodeBagCorrupt: a bag file reader encountered a malformed record.
	CodeBagCorrupt Code = "BAG_CORRUPT"
)

// Severity determines how a call site should react to a RuntimeError.
type Severity int

const (
	// SeverityFatal: terminate the process and let the supervisor restart it.
	SeverityFatal Severity = iota
	// SeverityRecoverable: log, count, and continue; local recovery applies.
	SeverityRecoverable
	// SeverityPolicy: always surfaced to the caller; never kills the process.
	SeverityPolicy
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityRecoverable:
		return "recoverable"
	case SeverityPolicy:
		return "policy"
	default:
		return "unknown"
	}
}

var defaultSeverity = map[Code]Severity{
	CodeInitFatal:        SeverityFatal,
	CodeDeadlineMiss:     SeverityRecoverable,
	CodeCommFailure:      SeverityRecoverable,
	CodeExecutionFailure: SeverityRecoverable,
	CodeAccessDenied:     SeverityPolicy,
	CodeTypeMismatch:     SeverityPolicy,
	CodeUnknownKey:       SeverityPolicy,
	CodeBagCorrupt:       SeverityRecoverable,
}

// RuntimeError is a structured, code-tagged error carrying enough context
// for metrics and logs without string-matching on messages.
type RuntimeError struct {
	Code     Code
	Severity Severity
	Message  string
	Details  map[string]interface{}
	Err      error
}

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// WithDetail attaches a key/value pair for structured logging and returns
// the error for chaining.
func (e *RuntimeError) WithDetail(key string, value interface{}) *RuntimeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a RuntimeError with the default severity for code.
func New(code Code, message string) *RuntimeError {
	return &RuntimeError{Code: code, Severity: defaultSeverity[code], Message: message}
}

// Wrap creates a RuntimeError wrapping an underlying cause.
func Wrap(code Code, message string, err error) *RuntimeError {
	return &RuntimeError{Code: code, Severity: defaultSeverity[code], Message: message, Err: err}
}

// Init-fatal constructors.

func InitFatal(message string, err error) *RuntimeError {
	return Wrap(CodeInitFatal, message, err)
}

func SharedMemoryMissing(segment string) *RuntimeError {
	return New(CodeInitFatal, "shared memory segment not found").WithDetail("segment", segment)
}

func SchemaInvalid(path string, err error) *RuntimeError {
	return Wrap(CodeInitFatal, "datastore schema invalid", err).WithDetail("path", path)
}

// Deadline-miss constructors.

func DeadlineMiss(cycleIndex uint64, overrunNS int64) *RuntimeError {
	return New(CodeDeadlineMiss, "RT cycle deadline missed").
		WithDetail("cycle_index", cycleIndex).
		WithDetail("overrun_ns", overrunNS)
}

// Communication-failure constructors.

func CommFailure(operation string, err error) *RuntimeError {
	return Wrap(CodeCommFailure, "communication failure", err).WithDetail("operation", operation)
}

func IPCQueueFull(channel string) *RuntimeError {
	return New(CodeCommFailure, "ipc queue full").WithDetail("channel", channel)
}

// Execution-failure constructors.

func ExecutionFailed(actionID string, err error) *RuntimeError {
	return Wrap(CodeExecutionFailure, "action execution failed", err).WithDetail("action_id", actionID)
}

func ExecutionTimedOut(actionID string) *RuntimeError {
	return New(CodeExecutionFailure, "action execution timed out").WithDetail("action_id", actionID)
}

func ExecutionCancelled(actionID string) *RuntimeError {
	return New(CodeExecutionFailure, "action execution cancelled").WithDetail("action_id", actionID)
}

// Policy-error constructors (access/type/unknown-key — §4.2 AccessControl,
// ExpirationManager, registration invariants).

func AccessDenied(key, moduleID string) *RuntimeError {
	return New(CodeAccessDenied, "access denied").
		WithDetail("key", key).
		WithDetail("module_id", moduleID)
}

func TypeMismatch(key, wantType, gotType string) *RuntimeError {
	return New(CodeTypeMismatch, "type mismatch").
		WithDetail("key", key).
		WithDetail("want_type", wantType).
		WithDetail("got_type", gotType)
}

func UnknownKey(key string) *RuntimeError {
	return New(CodeUnknownKey, "unknown key").WithDetail("key", key)
}

// Bag-corrupt constructors.

func BagCorrupt(path string, lineNumber int, err error) *RuntimeError {
	return Wrap(CodeBagCorrupt, "bag record corrupt", err).
		WithDetail("path", path).
		WithDetail("line", lineNumber)
}

// Helpers mirroring errors.As/Is usage at call sites.

func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

func As(err error) *RuntimeError {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re
	}
	return nil
}

func CodeOf(err error) Code {
	if re := As(err); re != nil {
		return re.Code
	}
	return ""
}

func SeverityOf(err error) Severity {
	if re := As(err); re != nil {
		return re.Severity
	}
	return SeverityRecoverable
}
