package task

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mxrc-robotics/mxrc/internal/action"
	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// Callback is invoked once per periodic iteration with a fresh
// ExecutionContext (§4.9).
type Callback func(ec *action.ExecutionContext)

type schedule struct {
	taskID    string
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   atomic.Bool
	execCount atomic.Uint64
}

// PeriodicScheduler owns one goroutine per active fixed-interval schedule,
// plus an optional cron.Cron driving cron-expression schedules (§4.9, §9).
// Stop and Start both join the outgoing goroutine outside the scheduler's
// mutex, so a callback that itself calls back into the scheduler cannot
// deadlock against Stop.
type PeriodicScheduler struct {
	mu          sync.Mutex
	schedules   map[string]*schedule
	cronSched   *cron.Cron
	cronEntries map[string]cron.EntryID
	logger      *mxlog.Logger
}

func NewPeriodicScheduler(logger *mxlog.Logger) *PeriodicScheduler {
	c := cron.New(cron.WithSeconds())
	c.Start()
	return &PeriodicScheduler{
		schedules:   make(map[string]*schedule),
		cronSched:   c,
		cronEntries: make(map[string]cron.EntryID),
		logger:      logger,
	}
}

// Start begins (or restarts) a fixed-interval schedule for taskID. If a
// schedule already runs under this id, it is stopped and joined first.
func (s *PeriodicScheduler) Start(taskID string, interval time.Duration, cb Callback) {
	s.Stop(taskID)

	sc := &schedule{taskID: taskID, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	sc.running.Store(true)

	s.mu.Lock()
	s.schedules[taskID] = sc
	s.mu.Unlock()

	go s.loop(sc, interval, cb)
}

func (s *PeriodicScheduler) loop(sc *schedule, interval time.Duration, cb Callback) {
	defer close(sc.doneCh)
	for sc.running.Load() {
		start := time.Now()
		s.runCallback(sc.taskID, cb)
		sc.execCount.Add(1)

		elapsed := time.Since(start)
		sleepFor := interval - elapsed
		if sleepFor < 0 {
			sleepFor = 0
		}

		select {
		case <-sc.stopCh:
			return
		case <-time.After(sleepFor):
		}
	}
}

func (s *PeriodicScheduler) runCallback(taskID string, cb Callback) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.WithComponent("periodic_scheduler").Errorf("task %s callback panicked: %v", taskID, r)
		}
	}()
	cb(action.NewExecutionContext())
}

// Stop halts taskID's fixed-interval schedule, if any, and joins its
// goroutine outside the scheduler's mutex.
func (s *PeriodicScheduler) Stop(taskID string) {
	s.mu.Lock()
	sc, ok := s.schedules[taskID]
	if ok {
		delete(s.schedules, taskID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	sc.running.Store(false)
	close(sc.stopCh)
	<-sc.doneCh
}

// ExecutionCount reports how many iterations taskID's active schedule has
// run. Returns 0 if no schedule is active under that id.
func (s *PeriodicScheduler) ExecutionCount(taskID string) uint64 {
	s.mu.Lock()
	sc, ok := s.schedules[taskID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return sc.execCount.Load()
}

// StartCron begins a cron-expression schedule for taskID (§9 supplemented
// scheduling). cronExpr uses the standard 6-field seconds-first syntax.
func (s *PeriodicScheduler) StartCron(taskID, cronExpr string, cb Callback) error {
	s.StopCron(taskID)

	id, err := s.cronSched.AddFunc(cronExpr, func() {
		s.runCallback(taskID, cb)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cronEntries[taskID] = id
	s.mu.Unlock()
	return nil
}

// StopCron removes taskID's cron-expression schedule, if any.
func (s *PeriodicScheduler) StopCron(taskID string) {
	s.mu.Lock()
	id, ok := s.cronEntries[taskID]
	if ok {
		delete(s.cronEntries, taskID)
	}
	s.mu.Unlock()
	if ok {
		s.cronSched.Remove(id)
	}
}

// Shutdown stops every active fixed-interval and cron schedule.
func (s *PeriodicScheduler) Shutdown() {
	s.mu.Lock()
	taskIDs := make([]string, 0, len(s.schedules))
	for id := range s.schedules {
		taskIDs = append(taskIDs, id)
	}
	s.mu.Unlock()
	for _, id := range taskIDs {
		s.Stop(id)
	}
	s.cronSched.Stop()
}
