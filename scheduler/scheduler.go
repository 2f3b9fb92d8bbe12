// Package scheduler abstracts the tickers and deferred callbacks that drive a
// tracker, so tests can swap wall-clock time for a virtual clock.
package scheduler

import (
	"sync"
	"time"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped a
	// pending or recurring callback.
	Stop() bool
}

// Scheduler provides the clock and timers a tracker runs on.
type Scheduler interface {
	Now() time.Time
	// Every calls fn every d until the returned timer is stopped.
	Every(d time.Duration, fn func()) Timer
	// After calls fn once after d unless the returned timer is stopped first.
	After(d time.Duration, fn func()) Timer
	// Go runs fn outside the caller's flow. Used for fire-and-forget work.
	Go(fn func())
}

// Real is a Scheduler backed by the runtime clock.
type Real struct{}

// NewReal returns a wall-clock scheduler.
func NewReal() *Real {
	return &Real{}
}

func (*Real) Now() time.Time {
	return time.Now()
}

func (*Real) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (*Real) Every(d time.Duration, fn func()) Timer {
	t := &ticker{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go t.loop(fn)
	return t
}

func (*Real) Go(fn func()) {
	go fn()
}

type ticker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *ticker) loop(fn func()) {
	for {
		select {
		case <-t.ticker.C:
			fn()
		case <-t.done:
			return
		}
	}
}

func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}
