package tracker

import (
	"mabletask/tracker/scheduler"
)

// ActivityState is the idle detector state.
type ActivityState int

const (
	Active ActivityState = iota
	Idle
)

func (s ActivityState) String() string {
	if s == Idle {
		return "idle"
	}
	return "active"
}

type activity struct {
	state   ActivityState
	visible bool

	idleTimer scheduler.Timer
	// idleGen invalidates an idle callback that was already running when
	// its timer got replaced.
	idleGen uint64
}

// State returns the current activity state.
func (t *Tracker) State() ActivityState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activity.state
}

func (t *Tracker) OnClick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m.Behavior.ClickCount++
	t.markActive()
}

func (t *Tracker) OnPointerMove() {
	t.interact()
}

func (t *Tracker) OnKeyPress() {
	t.interact()
}

func (t *Tracker) OnTouchStart() {
	t.interact()
}

// SetVisibility records whether the page is in the foreground. Active time
// only accrues while visible.
func (t *Tracker) SetVisibility(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touch()
	t.activity.visible = visible
}

func (t *Tracker) interact() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markActive()
}

// markActive must be called with t.mu held.
func (t *Tracker) markActive() {
	t.touch()
	t.activity.state = Active
	if t.started && !t.stopped {
		t.armIdleTimer()
	}
}

// armIdleTimer must be called with t.mu held.
func (t *Tracker) armIdleTimer() {
	if t.activity.idleTimer != nil {
		t.activity.idleTimer.Stop()
	}
	t.activity.idleGen++
	gen := t.activity.idleGen
	t.activity.idleTimer = t.sched.After(t.timing.IdleTimeout, func() {
		t.goIdle(gen)
	})
}

func (t *Tracker) goIdle(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.activity.idleGen || t.stopped {
		return
	}
	t.activity.state = Idle
}

func (t *Tracker) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	t.m.Internal.TotalSeconds++
	if t.activity.state == Active && t.activity.visible {
		t.m.Internal.ActiveSeconds++
	}
	recalcRatios(t.m)
}
