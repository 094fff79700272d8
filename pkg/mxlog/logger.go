// Package mxlog provides structured logging shared by the RT and Non-RT
// processes, with field names chosen to map directly onto the journald
// structured-logging contract (SYSLOG_IDENTIFIER, PRIORITY, TRACE_ID,
// SPAN_ID, COMPONENT).
package mxlog

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mxrc-robotics/mxrc/pkg/mxruntime"
)

// ContextKey is the type for context keys carried through log calls.
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	SpanIDKey    ContextKey = "span_id"
	ComponentKey ContextKey = "component"
)

// Logger wraps logrus.Logger with the runtime's field conventions.
type Logger struct {
	*logrus.Logger
	syslogIdentifier string
}

// New creates a Logger identified by syslogIdentifier (the process name as
// it will appear in SYSLOG_IDENTIFIER), at the given level ("debug", "info",
// "warn", "error") and format ("json" or "text").
func New(syslogIdentifier, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "priority",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, syslogIdentifier: syslogIdentifier}
}

// NewFromEnv builds a logger from MXRC_LOG_LEVEL / MXRC_LOG_FORMAT, defaulting
// to "info" / "json" in production and "info" / "text" otherwise.
func NewFromEnv(syslogIdentifier string) *Logger {
	level := strings.TrimSpace(os.Getenv("MXRC_LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("MXRC_LOG_FORMAT"))
	if format == "" {
		if mxruntime.IsProduction() {
			format = "json"
		} else {
			format = "text"
		}
	}
	return New(syslogIdentifier, level, format)
}

// WithContext builds a logrus entry carrying the syslog identifier plus any
// trace/span/component values found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("syslog_identifier", l.syslogIdentifier)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if spanID := ctx.Value(SpanIDKey); spanID != nil {
		entry = entry.WithField("span_id", spanID)
	}
	if component := ctx.Value(ComponentKey); component != nil {
		entry = entry.WithField("component", component)
	}
	return entry
}

// WithComponent tags an entry with a static component name, for call sites
// that don't thread a context (RT-path hot loops in particular never
// allocate a context per cycle).
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"syslog_identifier": l.syslogIdentifier,
		"component":         component,
	})
}

// Context helpers.

func NewTraceID() string { return uuid.New().String() }

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ComponentKey, component)
}

// Domain logging helpers, replacing the teacher's HTTP/blockchain helpers
// with the runtime's own event vocabulary.

// LogDeadlineMiss logs an RT cycle deadline miss (§7.ii).
func (l *Logger) LogDeadlineMiss(ctx context.Context, cycleIndex uint64, overrun time.Duration, consecutive int) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"cycle_index":      cycleIndex,
		"overrun_us":       overrun.Microseconds(),
		"consecutive_miss": consecutive,
	}).Warn("RT cycle deadline missed")
}

// LogFieldbusTransition logs a fieldbus lifecycle state transition (§4.4).
func (l *Logger) LogFieldbusTransition(ctx context.Context, busName, from, to string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"bus":  busName,
		"from": from,
		"to":   to,
	})
	if err != nil {
		entry.WithError(err).Error("fieldbus state transition failed")
		return
	}
	entry.Info("fieldbus state transition")
}

// LogActionExecution logs an action executor lifecycle event (§4.7).
func (l *Logger) LogActionExecution(ctx context.Context, actionID, actionType, status string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"action_id":   actionID,
		"action_type": actionType,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("action execution failed")
		return
	}
	entry.Info("action execution")
}

// LogSequenceStep logs a single sequence-engine step transition (§4.8).
func (l *Logger) LogSequenceStep(ctx context.Context, sequenceID, stepActionID string, retryCount int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"sequence_id": sequenceID,
		"step":        stepActionID,
		"retry_count": retryCount,
	})
	if err != nil {
		entry.WithError(err).Warn("sequence step failed")
		return
	}
	entry.Debug("sequence step completed")
}

// LogTaskExecution logs a task executor run (§4.9).
func (l *Logger) LogTaskExecution(ctx context.Context, taskID string, executionMode string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"task_id": taskID,
		"mode":    executionMode,
	})
	if err != nil {
		entry.WithError(err).Error("task execution failed")
		return
	}
	entry.Info("task execution")
}

// LogAccessDenied logs a DataStore access-control rejection (§4.2, §7.v).
func (l *Logger) LogAccessDenied(ctx context.Context, key, moduleID string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"key":       key,
		"module_id": moduleID,
	}).Warn("datastore access denied")
}

// LogBagEvent logs a bag recorder/replayer lifecycle event (§4.11).
func (l *Logger) LogBagEvent(ctx context.Context, path, event string, recordCount int64, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"path":         path,
		"event":        event,
		"record_count": recordCount,
	})
	if err != nil {
		entry.WithError(err).Error("bag event error")
		return
	}
	entry.Info("bag event")
}

// Global logger.

var defaultLogger *Logger

// InitDefault initializes the process-wide default logger. Call once at
// startup; never re-entered.
func InitDefault(syslogIdentifier, level, format string) {
	defaultLogger = New(syslogIdentifier, level, format)
}

// Default returns the process-wide logger, lazily falling back to a basic
// one if InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = NewFromEnv("mxrc")
	}
	return defaultLogger
}
