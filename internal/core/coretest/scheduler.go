package coretest

import (
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dkeye/Dial/internal/core"
)

// Scheduler fires timers synchronously from Advance, in deadline order.
type Scheduler struct {
	clock  *clockwork.FakeClock
	timers []*timer
}

type timer struct {
	s       *Scheduler
	at      time.Time
	fn      func()
	stopped bool
}

func (t *timer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	t.s.timers = slices.DeleteFunc(t.s.timers, func(o *timer) bool { return o == t })
	return true
}

func NewScheduler() *Scheduler {
	return &Scheduler{clock: clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}
}

func (s *Scheduler) Now() time.Time { return s.clock.Now() }

func (s *Scheduler) AfterFunc(d time.Duration, fn func()) core.Timer {
	t := &timer{s: s, at: s.clock.Now().Add(d), fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *Scheduler) Advance(d time.Duration) {
	s.clock.Advance(d)
	now := s.clock.Now()
	for {
		var due *timer
		for _, t := range s.timers {
			if !t.at.After(now) && (due == nil || t.at.Before(due.at)) {
				due = t
			}
		}
		if due == nil {
			return
		}
		due.Stop()
		due.fn()
	}
}

// Shift moves the clock without firing due timers.
func (s *Scheduler) Shift(d time.Duration) { s.clock.Advance(d) }

// Pending counts armed timers.
func (s *Scheduler) Pending() int { return len(s.timers) }
