// Package scheduler runs sync cycles on a jittered interval and on demand,
// never more than one at a time.
package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	appLog "schoolsync/internal/log"
	"schoolsync/internal/syncer"
)

var (
	ErrAlreadyStarted = errors.New("scheduler: already started")
	ErrBusy           = errors.New("scheduler: a sync cycle is already running")
)

const (
	DefaultInterval     = 5 * time.Minute
	DefaultMaxJitter    = 60 * time.Second
	DefaultMisfireGrace = 5 * time.Minute
)

type Runner interface {
	RunCycle(ctx context.Context) syncer.Result
}

type Options struct {
	Interval time.Duration
	// MaxJitter is added uniformly in [0, MaxJitter] to every interval.
	// Zero disables jitter.
	MaxJitter time.Duration
	// Firings that start later than MisfireGrace after their due time are
	// dropped; later firings within the grace still run.
	MisfireGrace time.Duration
}

func DefaultOptions() Options {
	return Options{
		Interval:     DefaultInterval,
		MaxJitter:    DefaultMaxJitter,
		MisfireGrace: DefaultMisfireGrace,
	}
}

// Scheduler is an owned handle; create one per process with New.
type Scheduler struct {
	runner Runner
	opts   Options
	sched  cron.Schedule

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup

	// running is held for the duration of a cycle.
	running sync.Mutex
	last    atomic.Pointer[syncer.Result]

	now func() time.Time
}

func New(r Runner, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxJitter < 0 {
		opts.MaxJitter = 0
	}
	if opts.MisfireGrace <= 0 {
		opts.MisfireGrace = DefaultMisfireGrace
	}
	return &Scheduler{
		runner: r,
		opts:   opts,
		sched:  newJitterSchedule(opts.Interval, opts.MaxJitter),
		now:    time.Now,
	}
}

// Start registers the periodic job and kicks off one immediate cycle in the
// background. Cycles run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	logger := appLog.CronLogger()
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)
	var id cron.EntryID
	id = c.Schedule(s.sched, cron.FuncJob(func() {
		s.scheduledRun(c, id)
	}))

	s.cron = c
	s.started = true
	c.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.run(s.ctx, "startup")
	}()

	appLog.Info("scheduler started",
		"interval", s.opts.Interval.String(),
		"max_jitter", s.opts.MaxJitter.String(),
		"misfire_grace", s.opts.MisfireGrace.String())
	return nil
}

// Stop prevents new firings and waits for an in-flight cycle to finish.
// Stopping a scheduler that is not running is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	c, cancel := s.cron, s.cancel
	s.started = false
	s.mu.Unlock()

	<-c.Stop().Done()
	s.wg.Wait()
	// Wait out a cycle started through TriggerNow.
	s.running.Lock()
	s.running.Unlock()
	cancel()

	appLog.Info("scheduler stopped")
}

// TriggerNow runs one cycle synchronously. It returns ErrBusy instead of
// queueing when a cycle is already running.
func (s *Scheduler) TriggerNow(ctx context.Context) (syncer.Result, error) {
	return s.run(ctx, "manual")
}

// LastResult returns the outcome of the most recent completed cycle.
func (s *Scheduler) LastResult() (syncer.Result, bool) {
	p := s.last.Load()
	if p == nil {
		return syncer.Result{}, false
	}
	return *p, true
}

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}

func (s *Scheduler) scheduledRun(c *cron.Cron, id cron.EntryID) {
	due := c.Entry(id).Prev
	now := s.now()
	if !withinGrace(due, now, s.opts.MisfireGrace) {
		appLog.Warn("sync firing dropped, past misfire grace",
			"due", due.UTC().Format(time.RFC3339), "late_by", now.Sub(due).String())
		return
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	_, _ = s.run(ctx, "schedule")
}

func (s *Scheduler) run(ctx context.Context, trigger string) (syncer.Result, error) {
	if !s.running.TryLock() {
		appLog.Info("sync skipped, cycle already running", "trigger", trigger)
		return syncer.Result{}, ErrBusy
	}
	defer s.running.Unlock()

	appLog.Debug("sync triggered", "trigger", trigger)
	res := s.runner.RunCycle(ctx)
	s.last.Store(&res)
	return res, nil
}

func withinGrace(due, now time.Time, grace time.Duration) bool {
	if due.IsZero() {
		return true
	}
	return now.Sub(due) <= grace
}

// jitterSchedule fires every interval plus a fresh uniform jitter.
type jitterSchedule struct {
	interval  time.Duration
	maxJitter time.Duration
	jitter    func(n int64) int64
}

func newJitterSchedule(interval, maxJitter time.Duration) *jitterSchedule {
	return &jitterSchedule{interval: interval, maxJitter: maxJitter, jitter: rand.Int64N}
}

func (j *jitterSchedule) Next(t time.Time) time.Time {
	next := t.Add(j.interval)
	if j.maxJitter > 0 {
		next = next.Add(time.Duration(j.jitter(int64(j.maxJitter) + 1)))
	}
	return next
}
