package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mabletask/tracker/metrics"
	"mabletask/tracker/models"
	"mabletask/tracker/scheduler"
)

func newTestRegistry(ttl time.Duration) (*Registry, *scheduler.Fake, *recordingStore, *metrics.Metrics) {
	clock := scheduler.NewFake(testStart)
	store := &recordingStore{}
	m := metrics.New(prometheus.NewRegistry())
	reg := NewRegistry(Options{
		Scheduler: clock,
		Store:     store,
		Metrics:   m,
	}, models.Settings{GoldThresholdMinutes: 5}, ttl)
	return reg, clock, store, m
}

func TestRegistry_StartAndGet(t *testing.T) {
	reg, _, _, m := newTestRegistry(0)

	user := "user-1"
	tr := reg.Start(&user, models.Environment{}, "/home")
	t.Cleanup(tr.Stop)

	got, ok := reg.Get(tr.SessionID())
	require.True(t, ok)
	assert.Same(t, tr, got)
	assert.Equal(t, 1, reg.Len())

	snap := got.Metrics()
	assert.Equal(t, []string{"/home"}, snap.Behavior.UniquePagesViewed.List())
	require.NotNil(t, snap.UserID)
	assert.Equal(t, "user-1", *snap.UserID)

	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionsStarted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionsLive), 0)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_ConfigureReachesLiveSessions(t *testing.T) {
	reg, clock, _, _ := newTestRegistry(0)
	tr := reg.Start(nil, models.Environment{}, "/")
	t.Cleanup(tr.Stop)

	settings := models.Settings{GoldRules: []models.Rule{
		{ID: "views", MetricPath: "behavior.total_pageviews", Type: models.RuleThreshold, Value: 1.0},
	}}
	reg.Configure(settings)
	assert.Equal(t, settings, reg.Settings())

	clock.Advance(10 * time.Second)
	assert.Equal(t, []string{GoldGoal}, tr.Metrics().Internal.GoalsReached)

	later := reg.Start(nil, models.Environment{}, "/")
	t.Cleanup(later.Stop)
	clock.Advance(10 * time.Second)
	assert.Equal(t, []string{GoldGoal}, later.Metrics().Internal.GoalsReached)
}

func TestRegistry_EndFlushes(t *testing.T) {
	reg, clock, store, m := newTestRegistry(0)
	tr := reg.Start(nil, models.Environment{}, "/")

	clock.Advance(40 * time.Second)
	flushed := store.count()

	assert.True(t, reg.End(context.Background(), tr.SessionID()))
	assert.Equal(t, flushed+1, store.count())
	assert.Zero(t, reg.Len())
	assert.InDelta(t, 0, testutil.ToFloat64(m.SessionsLive), 0)

	assert.False(t, reg.End(context.Background(), tr.SessionID()))
}

func TestRegistry_EvictIdle(t *testing.T) {
	reg, clock, _, _ := newTestRegistry(10 * time.Minute)
	stale := reg.Start(nil, models.Environment{}, "/")
	fresh := reg.Start(nil, models.Environment{}, "/")
	t.Cleanup(fresh.Stop)

	clock.Advance(9 * time.Minute)
	fresh.OnClick()
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, reg.EvictIdle(context.Background()))
	_, ok := reg.Get(stale.SessionID())
	assert.False(t, ok)
	_, ok = reg.Get(fresh.SessionID())
	assert.True(t, ok)
}

func TestRegistry_StartEvictionAndClose(t *testing.T) {
	reg, clock, _, _ := newTestRegistry(time.Minute)
	reg.StartEviction(30 * time.Second)

	reg.Start(nil, models.Environment{}, "/")
	clock.Advance(2 * time.Minute)
	assert.Zero(t, reg.Len())

	reg.Start(nil, models.Environment{}, "/")
	reg.Close(context.Background())
	assert.Zero(t, reg.Len())
	assert.Zero(t, clock.Pending())
}

func TestRegistry_StartRacingConfigure(t *testing.T) {
	reg, _, _, _ := newTestRegistry(0)

	var (
		wg      sync.WaitGroup
		started = make(chan *Tracker, 50)
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- reg.Start(nil, models.Environment{}, "/")
		}()
	}
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(minutes float64) {
			defer wg.Done()
			reg.Configure(models.Settings{GoldThresholdMinutes: minutes})
		}(float64(i))
	}
	wg.Wait()
	close(started)

	final := reg.Settings()
	for tr := range started {
		assert.Equal(t, final, tr.Settings(), "session %s", tr.SessionID())
		tr.Stop()
	}
}
