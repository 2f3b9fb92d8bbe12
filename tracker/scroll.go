package tracker

import (
	"math"

	"mabletask/tracker/models"
	"mabletask/tracker/scheduler"
)

const (
	maxScrollSamples = 100
	// minSpeedInterval is the shortest gap between two speed samples, in seconds.
	minSpeedInterval = 0.1
	speedSmoothing   = 0.1
)

// ScrollPosition is the document scroll state reported by the client.
type ScrollPosition struct {
	Top            float64 `json:"top"`
	ScrollHeight   float64 `json:"scroll_height"`
	ViewportHeight float64 `json:"viewport_height"`
}

type scrollSampler struct {
	timer   scheduler.Timer
	pending bool
	latest  ScrollPosition
}

// OnScroll counts as activity. The position is sampled at most once per
// throttle window, using the latest position reported within the window.
func (t *Tracker) OnScroll(pos ScrollPosition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markActive()

	t.scroll.latest = pos
	if t.scroll.pending || t.stopped {
		return
	}
	t.scroll.pending = true
	t.scroll.timer = t.sched.After(t.timing.ScrollThrottle, t.sampleScroll)
}

func (t *Tracker) sampleScroll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.scroll.pending {
		return
	}
	t.scroll.pending = false

	pos := t.scroll.latest
	depth := scrollDepth(pos)
	if depth > t.m.Behavior.MaxScrollDepth {
		t.m.Behavior.MaxScrollDepth = depth
	}

	now := t.sched.Now()
	in := &t.m.Internal
	sample := models.ScrollSample{Depth: depth, At: now}

	elapsed := now.Sub(in.LastScrollAt).Seconds()
	if elapsed > minSpeedInterval {
		speed := math.Abs(pos.Top-in.LastScrollY) / elapsed
		if in.SpeedSampled {
			t.m.Calculated.ScrollSpeed = t.m.Calculated.ScrollSpeed*(1-speedSmoothing) + speed*speedSmoothing
		} else {
			t.m.Calculated.ScrollSpeed = speed
			in.SpeedSampled = true
		}
		in.LastScrollY = pos.Top
		in.LastScrollAt = now
		sample.Speed = speed
	}

	in.ScrollSamples = append(in.ScrollSamples, sample)
	if n := len(in.ScrollSamples); n > maxScrollSamples {
		in.ScrollSamples = append(in.ScrollSamples[:0:0], in.ScrollSamples[n-maxScrollSamples:]...)
	}
}

// scrollDepth is the scrolled share of the scrollable height in percent.
func scrollDepth(pos ScrollPosition) int {
	scrollable := pos.ScrollHeight - pos.ViewportHeight
	if scrollable <= 0 {
		return 0
	}
	depth := int(math.Round(pos.Top / scrollable * 100))
	return min(max(depth, 0), 100)
}
