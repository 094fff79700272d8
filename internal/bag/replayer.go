package bag

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/mxrc-robotics/mxrc/internal/datastore"
	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// ReplayState is a Replayer's run-state (§4.11).
type ReplayState string

const (
	ReplayIdle      ReplayState = "IDLE"
	ReplayRunning   ReplayState = "RUNNING"
	ReplayPaused    ReplayState = "PAUSED"
	ReplayCompleted ReplayState = "COMPLETED"
	ReplayFailed    ReplayState = "FAILED"
)

// MismatchFunc is invoked when a pre-existing DataStore value differs from
// the value about to be replayed for the same topic.
type MismatchFunc func(topic string, expected, actual any)

// Replayer drives a datastore.Store from a Reader on a background
// goroutine, sleeping between records scaled by speedFactor (§4.11).
type Replayer struct {
	reader      *Reader
	store       *datastore.Store
	moduleID    string
	speedFactor float64
	onMismatch  MismatchFunc
	logger      *mxlog.Logger

	state         atomic.Value // ReplayState
	pauseCh       chan struct{}
	resumeCh      chan struct{}
	stopCh        chan struct{}
	doneCh        chan struct{}
	mismatchCount atomic.Uint64
	replayedCount atomic.Uint64
}

// NewReplayer builds a Replayer. speedFactor is clamped to [0.1, 10.0].
func NewReplayer(reader *Reader, store *datastore.Store, moduleID string, speedFactor float64, onMismatch MismatchFunc, logger *mxlog.Logger) *Replayer {
	if speedFactor < 0.1 {
		speedFactor = 0.1
	}
	if speedFactor > 10.0 {
		speedFactor = 10.0
	}
	r := &Replayer{
		reader:      reader,
		store:       store,
		moduleID:    moduleID,
		speedFactor: speedFactor,
		onMismatch:  onMismatch,
		logger:      logger,
		pauseCh:     make(chan struct{}),
		resumeCh:    make(chan struct{}),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	r.state.Store(ReplayIdle)
	return r
}

func (r *Replayer) State() ReplayState { return r.state.Load().(ReplayState) }

// Start begins replay on a background goroutine.
func (r *Replayer) Start(ctx context.Context) {
	r.state.Store(ReplayRunning)
	go r.run(ctx)
}

func (r *Replayer) run(ctx context.Context) {
	defer close(r.doneCh)

	var lastTS int64
	first := true

	for {
		select {
		case <-ctx.Done():
			r.state.Store(ReplayFailed)
			return
		case <-r.stopCh:
			return
		default:
		}

		rec, err := r.reader.Next()
		if err == io.EOF {
			r.state.Store(ReplayCompleted)
			return
		}
		if err != nil {
			if r.logger != nil {
				r.logger.WithComponent("bag_replayer").WithError(err).Error("read failed")
			}
			r.state.Store(ReplayFailed)
			return
		}

		if !first {
			gap := time.Duration(rec.TimestampNS-lastTS) * time.Nanosecond
			if gap > 0 {
				scaled := time.Duration(float64(gap) / r.speedFactor)
				select {
				case <-time.After(scaled):
				case <-ctx.Done():
					r.state.Store(ReplayFailed)
					return
				case <-r.stopCh:
					return
				}
			}
		}
		first = false
		lastTS = rec.TimestampNS

		r.waitWhilePaused()
		r.apply(rec)
	}
}

func (r *Replayer) waitWhilePaused() {
	for r.State() == ReplayPaused {
		select {
		case <-r.resumeCh:
		case <-r.stopCh:
			return
		}
	}
}

func (r *Replayer) apply(rec Record) {
	if existing, err := r.store.Get(rec.Topic, r.moduleID); err == nil {
		if r.onMismatch != nil && existing.Value != nil && !valuesEqual(existing.Value, rec.Value) {
			r.onMismatch(rec.Topic, existing.Value, rec.Value)
			r.mismatchCount.Add(1)
		}
	}
	if _, err := r.store.Set(rec.Topic, r.moduleID, rec.Value); err != nil && r.logger != nil {
		r.logger.WithComponent("bag_replayer").WithError(err).Warn("replay write rejected")
	}
	r.replayedCount.Add(1)
}

func valuesEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Pause transitions RUNNING → PAUSED.
func (r *Replayer) Pause() {
	r.state.CompareAndSwap(ReplayRunning, ReplayPaused)
}

// Resume transitions PAUSED → RUNNING.
func (r *Replayer) Resume() {
	if r.state.CompareAndSwap(ReplayPaused, ReplayRunning) {
		select {
		case r.resumeCh <- struct{}{}:
		default:
		}
	}
}

// Stop halts replay and joins the background goroutine.
func (r *Replayer) Stop() {
	select {
	case <-r.doneCh:
		return
	default:
	}
	close(r.stopCh)
	<-r.doneCh
}

func (r *Replayer) MismatchCount() uint64 { return r.mismatchCount.Load() }
func (r *Replayer) ReplayedCount() uint64 { return r.replayedCount.Load() }
