// Package eventbus implements the three-tier priority event bus (§4.6):
// CRITICAL/NORMAL/DEBUG sub-queues with configurable backpressure and
// per-event-type throttling.
package eventbus

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Priority is one of the three event tiers.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityNormal
	PriorityDebug
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityNormal:
		return "NORMAL"
	case PriorityDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// BackpressurePolicy governs what happens when a sub-queue is at or above
// its fill threshold.
type BackpressurePolicy int

const (
	DropOldest BackpressurePolicy = iota
	DropNewest                    // default
	Block
)

// Thresholds are fill-ratio cutoffs per tier (validated low < normal <= high,
// all within [0,1]).
type Thresholds struct {
	Low    float64 // DEBUG drop threshold
	Normal float64 // NORMAL drop threshold
	High   float64 // CRITICAL tier's value; Push evicts or blocks for CRITICAL without consulting it
}

func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.80, Normal: 0.90, High: 1.00}
}

// Valid enforces low < normal <= high, all in [0,1].
func (t Thresholds) Valid() bool {
	inRange := func(v float64) bool { return v >= 0 && v <= 1 }
	return inRange(t.Low) && inRange(t.Normal) && inRange(t.High) && t.Low < t.Normal && t.Normal <= t.High
}

// Event is a PrioritizedEvent (§3): immutable once constructed.
type Event struct {
	Priority    Priority
	Type        string
	Payload     any
	TimestampNS int64
}

func NewEvent(priority Priority, eventType string, payload any) Event {
	return Event{Priority: priority, Type: eventType, Payload: payload, TimestampNS: time.Now().UnixNano()}
}

// Metrics tracks pushed/dropped counters per tier; queue depth is read
// from Bus.QueueDepth.
type Metrics struct {
	mu      sync.Mutex
	pushed  [3]uint64
	dropped [3]uint64
}

func (m *Metrics) recordPush(p Priority)   { m.mu.Lock(); m.pushed[p]++; m.mu.Unlock() }
func (m *Metrics) recordDrop(p Priority)   { m.mu.Lock(); m.dropped[p]++; m.mu.Unlock() }

func (m *Metrics) Pushed(p Priority) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushed[p]
}

func (m *Metrics) Dropped(p Priority) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[p]
}

func (m *Metrics) DropRate(p Priority) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushed[p] == 0 {
		return 0
	}
	return float64(m.dropped[p]) / float64(m.pushed[p])
}

func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushed = [3]uint64{}
	m.dropped = [3]uint64{}
}

// Config configures a Bus.
type Config struct {
	CriticalCapacity int
	NormalCapacity   int
	DebugCapacity    int
	Thresholds       Thresholds
	Policy           BackpressurePolicy
	// ThrottleInterval bounds how often a given event type is forwarded;
	// the first event of a type is always forwarded.
	ThrottleInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		CriticalCapacity: 256,
		NormalCapacity:   1024,
		DebugCapacity:    2048,
		Thresholds:       DefaultThresholds(),
		Policy:           DropNewest,
		ThrottleInterval: 0,
	}
}

// Bus is the three-tier priority event bus.
type Bus struct {
	cfg     Config
	queues  [3]chan Event
	metrics Metrics

	throttleMu sync.Mutex
	throttles  map[string]*rate.Sometimes
}

func New(cfg Config) (*Bus, error) {
	if !cfg.Thresholds.Valid() {
		return nil, fmt.Errorf("eventbus: invalid thresholds %+v", cfg.Thresholds)
	}
	b := &Bus{cfg: cfg, throttles: make(map[string]*rate.Sometimes)}
	b.queues[PriorityCritical] = make(chan Event, cfg.CriticalCapacity)
	b.queues[PriorityNormal] = make(chan Event, cfg.NormalCapacity)
	b.queues[PriorityDebug] = make(chan Event, cfg.DebugCapacity)
	return b, nil
}

func (b *Bus) capacity(p Priority) int { return cap(b.queues[p]) }

func (b *Bus) fillRatio(p Priority) float64 {
	c := b.capacity(p)
	if c == 0 {
		return 0
	}
	return float64(len(b.queues[p])) / float64(c)
}

// Push routes an event by priority, applying throttling then the
// backpressure policy. It returns true if the event was enqueued.
//
// CRITICAL is never dropped when the configured policy isn't BLOCK: a full
// critical queue evicts its oldest entry to make room for the new one,
// rather than rejecting the new push. Under BLOCK, Push waits for room
// instead, which is the "guaranteed delivery" mode the policy name implies.
func (b *Bus) Push(ev Event) bool {
	if !b.allowThrottled(ev.Type) {
		return false
	}

	q := b.queues[ev.Priority]

	if ev.Priority == PriorityCritical {
		if b.cfg.Policy == Block {
			q <- ev
			b.metrics.recordPush(ev.Priority)
			return true
		}
		for {
			select {
			case q <- ev:
				b.metrics.recordPush(ev.Priority)
				return true
			default:
				select {
				case <-q:
				default:
				}
			}
		}
	}

	threshold := b.thresholdFor(ev.Priority)
	full := b.fillRatio(ev.Priority) >= threshold

	if !full {
		select {
		case q <- ev:
			b.metrics.recordPush(ev.Priority)
			return true
		default:
		}
	}

	switch b.cfg.Policy {
	case DropOldest:
		select {
		case <-q:
			b.metrics.recordDrop(ev.Priority)
		default:
		}
		select {
		case q <- ev:
			b.metrics.recordPush(ev.Priority)
			return true
		default:
			b.metrics.recordDrop(ev.Priority)
			return false
		}
	case Block:
		q <- ev
		b.metrics.recordPush(ev.Priority)
		return true
	default: // DropNewest
		b.metrics.recordDrop(ev.Priority)
		return false
	}
}

func (b *Bus) thresholdFor(p Priority) float64 {
	switch p {
	case PriorityCritical:
		return b.cfg.Thresholds.High
	case PriorityNormal:
		return b.cfg.Thresholds.Normal
	default:
		return b.cfg.Thresholds.Low
	}
}

func (b *Bus) allowThrottled(eventType string) bool {
	if b.cfg.ThrottleInterval <= 0 {
		return true
	}
	b.throttleMu.Lock()
	s, ok := b.throttles[eventType]
	if !ok {
		s = &rate.Sometimes{Interval: b.cfg.ThrottleInterval}
		b.throttles[eventType] = s
	}
	b.throttleMu.Unlock()

	forwarded := false
	s.Do(func() { forwarded = true })
	return forwarded
}

// Pop dequeues the next event for priority p. Returns false if empty.
func (b *Bus) Pop(p Priority) (Event, bool) {
	select {
	case ev := <-b.queues[p]:
		return ev, true
	default:
		return Event{}, false
	}
}

func (b *Bus) Metrics() *Metrics { return &b.metrics }

func (b *Bus) QueueDepth(p Priority) int { return len(b.queues[p]) }
