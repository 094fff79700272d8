// Package watchdog implements the liveness layer (§4.10): a periodic
// keep-alive notifier to the supervisor, ready/status transitions, and a
// collector over supervisor-reported host properties.
package watchdog

import (
	"sync/atomic"
	"time"

	"github.com/mxrc-robotics/mxrc/internal/ipc"
	"github.com/mxrc-robotics/mxrc/pkg/metrics"
	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// Notifier is the capability set a WatchdogTimer drives (§9 IWatchdogNotifier).
type Notifier interface {
	SendReady() error
	SendKeepAlive() error
	SendStatus(msg string) error
}

// IpcNotifier implements Notifier over the RT/Non-RT shared IpcQueue.
// SendReady and SendKeepAlive both push a heartbeat message — the wire
// protocol does not distinguish them, only cadence does (one immediately
// after init, then one per interval). SendStatus has no wire
// representation and is logged instead.
type IpcNotifier struct {
	queue  *ipc.IpcQueue
	logger *mxlog.Logger
}

func NewIpcNotifier(queue *ipc.IpcQueue, logger *mxlog.Logger) *IpcNotifier {
	return &IpcNotifier{queue: queue, logger: logger}
}

func (n *IpcNotifier) SendReady() error      { return n.push() }
func (n *IpcNotifier) SendKeepAlive() error  { return n.push() }

func (n *IpcNotifier) push() error {
	if !n.queue.Push(ipc.HeartbeatMessage()) {
		return errQueueFull
	}
	return nil
}

func (n *IpcNotifier) SendStatus(msg string) error {
	if n.logger != nil {
		n.logger.WithComponent("watchdog").Info(msg)
	}
	return nil
}

type watchdogError string

func (e watchdogError) Error() string { return string(e) }

const errQueueFull = watchdogError("watchdog: ipc queue full, keep-alive dropped")

// DefaultInterval is the keep-alive cadence when none is configured,
// typically at most half the supervisor's configured watchdog timeout.
const DefaultInterval = 10 * time.Second

// Timer sends periodic keep-alive notifications to notifier on a
// background goroutine. Start is idempotent (a compare-and-swap guards
// double-start); Stop joins the goroutine before returning.
type Timer struct {
	interval time.Duration
	notifier Notifier
	logger   *mxlog.Logger
	metrics  *metrics.NonRTMetrics // optional

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewTimer(notifier Notifier, interval time.Duration, logger *mxlog.Logger) *Timer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Timer{interval: interval, notifier: notifier, logger: logger}
}

// WithMetrics attaches a NonRTMetrics set that every subsequent keep-alive
// send/drop is recorded against.
func (t *Timer) WithMetrics(m *metrics.NonRTMetrics) *Timer {
	t.metrics = m
	return t
}

// Start begins the keep-alive loop. Calling Start while already running is
// a no-op.
func (t *Timer) Start() {
	if !t.running.CompareAndSwap(false, true) {
		return
	}
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.loop()
}

func (t *Timer) loop() {
	defer close(t.doneCh)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if err := t.notifier.SendKeepAlive(); err != nil {
				if t.logger != nil {
					t.logger.WithComponent("watchdog").WithError(err).Warn("keep-alive send failed")
				}
				if t.metrics != nil {
					t.metrics.KeepAlivesDropped.Inc()
				}
			} else if t.metrics != nil {
				t.metrics.KeepAlivesSent.Inc()
			}
		}
	}
}

// Stop halts the keep-alive loop and joins its goroutine. A no-op if the
// timer was never started or already stopped.
func (t *Timer) Stop() {
	if !t.running.CompareAndSwap(true, false) {
		return
	}
	close(t.stopCh)
	<-t.doneCh
}

// SendReady notifies the supervisor that initialization has completed. Call
// once, before Start.
func (t *Timer) SendReady() error { return t.notifier.SendReady() }

// SendStatus pushes human-readable status text through the notifier.
func (t *Timer) SendStatus(msg string) error { return t.notifier.SendStatus(msg) }
