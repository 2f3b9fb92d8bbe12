package scheduler

import (
	"sync"
	"time"
)

// Fake is a virtual-clock Scheduler. Time only moves when Advance is called,
// and due callbacks run on the caller's goroutine in time order, ties broken
// by registration order. Go runs its function inline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	entries map[uint64]*fakeEntry
}

type fakeEntry struct {
	fake   *Fake
	id     uint64
	when   time.Time
	period time.Duration
	fn     func()
}

// NewFake returns a virtual clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:     start,
		entries: make(map[uint64]*fakeEntry),
	}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration, fn func()) Timer {
	return f.add(d, 0, fn)
}

func (f *Fake) Every(d time.Duration, fn func()) Timer {
	return f.add(d, d, fn)
}

func (f *Fake) Go(fn func()) {
	fn()
}

// Pending returns how many callbacks are scheduled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Advance moves the clock forward by d, running every callback that falls
// due on the way. Callbacks may schedule or cancel other callbacks.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		next := f.nextDue(target)
		if next == nil {
			break
		}
		f.now = next.when
		if next.period > 0 {
			next.when = next.when.Add(next.period)
		} else {
			delete(f.entries, next.id)
		}
		f.mu.Unlock()
		next.fn()
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

func (f *Fake) nextDue(target time.Time) *fakeEntry {
	var next *fakeEntry
	for _, e := range f.entries {
		if e.when.After(target) {
			continue
		}
		if next == nil || e.when.Before(next.when) || (e.when.Equal(next.when) && e.id < next.id) {
			next = e
		}
	}
	return next
}

func (f *Fake) add(d, period time.Duration, fn func()) *fakeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	e := &fakeEntry{
		fake:   f,
		id:     f.seq,
		when:   f.now.Add(d),
		period: period,
		fn:     fn,
	}
	f.entries[e.id] = e
	return e
}

func (e *fakeEntry) Stop() bool {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	if _, ok := e.fake.entries[e.id]; !ok {
		return false
	}
	delete(e.fake.entries, e.id)
	return true
}
