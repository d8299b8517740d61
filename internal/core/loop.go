package core

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var ErrLoopStopped = errors.New("session loop stopped")

// Scheduler is the clock and timer source of the session entities. Timer
// callbacks run in the same context as every other session callback.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type Timer interface {
	Stop() bool
}

// Poster hands work to the session context.
type Poster interface {
	Post(fn func()) bool
}

// Loop serializes every session callback onto one goroutine. Transports
// and timers post into it; nothing inside it blocks.
type Loop struct {
	clock clockwork.Clock
	tasks chan func()

	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

func NewLoop(clock clockwork.Clock, backlog int) *Loop {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if backlog <= 0 {
		backlog = 1024
	}
	return &Loop{
		clock: clock,
		tasks: make(chan func(), backlog),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (l *Loop) Run() {
	defer close(l.done)
	log.Info().Str("module", "core.loop").Msg("session loop started")
	for {
		select {
		case <-l.quit:
			log.Info().Str("module", "core.loop").Msg("session loop stopped")
			return
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "core.loop").Interface("panic", r).Bytes("stack", debug.Stack()).Msg("task panicked")
		}
	}()
	fn()
}

// Stop ends Run after the task in progress. Queued tasks are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
	<-l.done
}

// Post queues fn. It reports false once the loop is stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Do runs fn in the loop and waits for it.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	ok := l.Post(func() {
		defer close(finished)
		fn()
	})
	if !ok {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.quit:
		return ErrLoopStopped
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "session loop")
	}
}

func (l *Loop) Now() time.Time { return l.clock.Now() }

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return l.clock.AfterFunc(d, func() { l.Post(fn) })
}
