// Package ratelimit caps outbound calls to the upstream portal with a sliding
// window: at most Limit acquisitions in any Window-long interval.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appLog "schoolsync/internal/log"
)

const (
	DefaultLimit  = 15
	DefaultWindow = 5 * time.Second
)

// Window is a sliding-window limiter. State is process-local and is lost on
// restart. Callers are expected to be sequential; the mutex only keeps
// accidental concurrent use correct (waiters are serialized).
type Window struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time // issue times, oldest first

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	waitLog rate.Sometimes
}

// New returns a limiter allowing limit acquisitions per window. Non-positive
// values fall back to DefaultLimit / DefaultWindow.
func New(limit int, window time.Duration) *Window {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Window{
		limit:   limit,
		window:  window,
		stamps:  make([]time.Time, 0, limit),
		now:     time.Now,
		sleep:   sleepContext,
		waitLog: rate.Sometimes{Interval: 30 * time.Second},
	}
}

// Acquire blocks until issuing one more request keeps the window within its
// limit, then records the issue time. It returns ctx.Err() if the context is
// done while waiting; nothing is recorded in that case.
func (w *Window) Acquire(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evict(now)

	for len(w.stamps) >= w.limit {
		wait := w.stamps[0].Add(w.window).Sub(now)
		if wait > 0 {
			w.waitLog.Do(func() {
				appLog.Debug("rate limit reached, waiting", "wait", wait.String(), "limit", w.limit, "window", w.window.String())
			})
			if err := w.sleep(ctx, wait); err != nil {
				return err
			}
		}
		now = w.now()
		w.evict(now)
	}

	w.stamps = append(w.stamps, now)
	return nil
}

// InFlight reports how many acquisitions are still inside the window.
func (w *Window) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.now())
	return len(w.stamps)
}

func (w *Window) evict(now time.Time) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= w.window {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
