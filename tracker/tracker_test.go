package tracker

import (
	"context"
	"encoding/json"
	"errors"
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

var testStart = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type recordingStore struct {
	mu      sync.Mutex
	records []models.SessionRecord
	err     error
}

func (s *recordingStore) UpsertSession(_ context.Context, rec models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *recordingStore) last(t *testing.T) (models.SessionRecord, map[string]any) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.records)
	rec := s.records[len(s.records)-1]
	var data map[string]any
	require.NoError(t, json.Unmarshal(rec.LogData, &data))
	return rec, data
}

type recordingReporter struct {
	mu     sync.Mutex
	events []models.GoalEvent
	err    error
}

func (r *recordingReporter) ReportGoal(_ context.Context, goal models.GoalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, goal)
	return r.err
}

type harness struct {
	tr       *Tracker
	clock    *scheduler.Fake
	store    *recordingStore
	reporter *recordingReporter
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		clock:    scheduler.NewFake(testStart),
		store:    &recordingStore{},
		reporter: &recordingReporter{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	opts := Options{
		SessionID:   "sess-test",
		Environment: models.Environment{UserAgent: "Mozilla/5.0 (Windows NT 10.0)", URL: "https://shop.example/a"},
		Scheduler:   h.clock,
		Store:       h.store,
		Reporter:    h.reporter,
		Metrics:     h.metrics,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.tr = New(opts)
	t.Cleanup(h.tr.Stop)
	return h
}

// keepActive advances the clock in steps, producing an interaction after
// each step so the session never goes idle.
func (h *harness) keepActive(d time.Duration) {
	const step = 10 * time.Second
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		h.clock.Advance(min(step, d-elapsed))
		h.tr.OnPointerMove()
	}
}

func ptr(f float64) *float64 { return &f }

func TestTracker_PageViewDwellTime(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})

	h.clock.Advance(10 * time.Second)
	h.tr.TrackPageView("/b")

	m := h.tr.Metrics()
	assert.Equal(t, 2, m.Behavior.TotalPageviews)
	assert.Equal(t, []string{"/a", "/b"}, m.Behavior.UniquePagesViewed.List())
	assert.InDelta(t, 10.0, m.Behavior.AvgTimePerPage, 1e-9)

	// the open page does not move the average
	h.clock.Advance(5 * time.Second)
	assert.InDelta(t, 10.0, h.tr.Metrics().Behavior.AvgTimePerPage, 1e-9)

	h.tr.TrackPageView("/a")
	m = h.tr.Metrics()
	assert.InDelta(t, 7.5, m.Behavior.AvgTimePerPage, 1e-9)
	assert.Equal(t, 3, m.Behavior.TotalPageviews)
	assert.Equal(t, 2, m.Behavior.UniquePagesViewed.Len())
	assert.LessOrEqual(t, m.Behavior.UniquePagesViewed.Len(), m.Behavior.TotalPageviews)
}

func TestTracker_InitIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})
	pending := h.clock.Pending()

	user := "user-1"
	h.tr.Init(&user, models.Settings{GoldThresholdMinutes: 1})

	m := h.tr.Metrics()
	assert.Equal(t, pending, h.clock.Pending())
	assert.Equal(t, 1, m.Behavior.TotalPageviews)
	require.NotNil(t, m.UserID)
	assert.Equal(t, "user-1", *m.UserID)
}

func TestTracker_IdleStateMachine(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})
	assert.Equal(t, Active, h.tr.State())

	h.clock.Advance(31 * time.Second)
	assert.Equal(t, Idle, h.tr.State())

	h.tr.OnClick()
	assert.Equal(t, Active, h.tr.State())
	assert.Equal(t, 1, h.tr.Metrics().Behavior.ClickCount)

	h.clock.Advance(29 * time.Second)
	assert.Equal(t, Active, h.tr.State(), "click must reset the idle timer")

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, Idle, h.tr.State())

	for _, interact := range []func(){h.tr.OnKeyPress, h.tr.OnTouchStart, h.tr.OnPointerMove} {
		h.clock.Advance(31 * time.Second)
		require.Equal(t, Idle, h.tr.State())
		interact()
		assert.Equal(t, Active, h.tr.State())
	}
}

func TestTracker_ActiveAndTotalSeconds(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})

	for i := 0; i < 60; i++ {
		h.clock.Advance(time.Second)
		in := h.tr.Metrics().Internal
		require.GreaterOrEqual(t, in.TotalSeconds, in.ActiveSeconds)
		require.GreaterOrEqual(t, in.ActiveSeconds, 0)
	}

	m := h.tr.Metrics()
	assert.Equal(t, 60, m.Internal.TotalSeconds)
	assert.Equal(t, 30, m.Internal.ActiveSeconds)
	assert.InDelta(t, 0.5, m.Calculated.IdleTimeRatio, 1e-9)
}

func TestTracker_HiddenPageAccruesNoActiveTime(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})
	h.tr.SetVisibility(false)

	h.keepActive(20 * time.Second)
	in := h.tr.Metrics().Internal
	assert.Equal(t, 20, in.TotalSeconds)
	assert.Zero(t, in.ActiveSeconds)

	h.tr.SetVisibility(true)
	h.keepActive(10 * time.Second)
	in = h.tr.Metrics().Internal
	assert.Equal(t, 30, in.TotalSeconds)
	assert.Equal(t, 10, in.ActiveSeconds)
}

func TestTracker_IdleRatioZeroBeforeFirstTick(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})
	assert.Zero(t, h.tr.Metrics().Calculated.IdleTimeRatio)
}

func TestTracker_CommerceScenario(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})

	categories := []string{"ropes", "books", "ropes", "", "courses"}
	for i, price := range []float64{10, 20, 30, 40, 50} {
		h.tr.TrackProductView("p", price, categories[i])
	}
	h.tr.TrackCartAction(CartAdd)
	h.tr.TrackCartAction(CartAdd)
	h.tr.TrackCartAction(CartRemove)
	h.tr.TrackCartAction("wishlist")

	m := h.tr.Metrics()
	assert.Equal(t, 5, m.Ecommerce.ViewedProductCount)
	assert.InDelta(t, 30.0, m.Ecommerce.AvgPriceViewed, 1e-9)
	assert.InDelta(t, 0.4, m.Calculated.CartToDetailRatio, 1e-9)
	assert.Equal(t, 2, m.Ecommerce.CartAddsCount)
	assert.Equal(t, 1, m.Ecommerce.CartRemovesCount)
	assert.Equal(t, []string{"ropes", "books", "courses"}, m.Ecommerce.CategoryDiversity.List())
}

func TestTracker_CartRatioWithoutViews(t *testing.T) {
	h := newHarness(t)
	h.tr.TrackCartAction(CartAdd)
	assert.Zero(t, h.tr.Metrics().Calculated.CartToDetailRatio)
}

func TestTracker_LatchingFlags(t *testing.T) {
	h := newHarness(t)

	h.tr.TrackSearch("   ")
	assert.False(t, h.tr.Metrics().Behavior.SiteSearchUsage)

	h.tr.TrackSearch("jute rope")
	h.tr.TrackSearch("")
	h.tr.TrackFilterUsage()
	h.tr.TrackReviewsRead()
	h.tr.TrackSizeGuideView()

	m := h.tr.Metrics()
	assert.True(t, m.Behavior.SiteSearchUsage)
	assert.True(t, m.Behavior.FilterUsage)
	assert.True(t, m.Ecommerce.ReviewsRead)
	assert.True(t, m.Ecommerce.SizeGuideViewed)
}

func TestTracker_ScrollDepthAndSpeed(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})

	h.tr.OnScroll(ScrollPosition{Top: 300, ScrollHeight: 2000, ViewportHeight: 1000})
	h.tr.OnScroll(ScrollPosition{Top: 600, ScrollHeight: 2000, ViewportHeight: 1000})
	assert.Zero(t, h.tr.Metrics().Behavior.MaxScrollDepth, "sampled only after the throttle window")

	h.clock.Advance(200 * time.Millisecond)
	m := h.tr.Metrics()
	assert.Equal(t, 60, m.Behavior.MaxScrollDepth)
	assert.InDelta(t, 3000, m.Calculated.ScrollSpeed, 1e-6)
	require.Len(t, m.Internal.ScrollSamples, 1)

	h.clock.Advance(800 * time.Millisecond)
	h.tr.OnScroll(ScrollPosition{Top: 800, ScrollHeight: 2000, ViewportHeight: 1000})
	h.clock.Advance(200 * time.Millisecond)
	m = h.tr.Metrics()
	assert.Equal(t, 80, m.Behavior.MaxScrollDepth)
	assert.InDelta(t, 3000*0.9+200*0.1, m.Calculated.ScrollSpeed, 1e-6)

	h.tr.OnScroll(ScrollPosition{Top: 100, ScrollHeight: 2000, ViewportHeight: 1000})
	h.clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 80, h.tr.Metrics().Behavior.MaxScrollDepth, "max depth never decreases")
}

func TestTracker_ScrollSpeedNeedsGap(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Timing.ScrollThrottle = 50 * time.Millisecond })
	h.tr.Init(nil, models.Settings{})

	h.tr.OnScroll(ScrollPosition{Top: 500, ScrollHeight: 2000, ViewportHeight: 1000})
	h.clock.Advance(50 * time.Millisecond)

	m := h.tr.Metrics()
	assert.Equal(t, 50, m.Behavior.MaxScrollDepth)
	assert.Zero(t, m.Calculated.ScrollSpeed)
	assert.False(t, m.Internal.SpeedSampled)
}

func TestTracker_ScrollShortDocumentAndHistoryBound(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})

	h.tr.OnScroll(ScrollPosition{Top: 0, ScrollHeight: 800, ViewportHeight: 1000})
	h.clock.Advance(200 * time.Millisecond)
	assert.Zero(t, h.tr.Metrics().Behavior.MaxScrollDepth)

	for i := 0; i < 150; i++ {
		h.tr.OnScroll(ScrollPosition{Top: float64(i), ScrollHeight: 5000, ViewportHeight: 1000})
		h.clock.Advance(200 * time.Millisecond)
	}
	assert.Len(t, h.tr.Metrics().Internal.ScrollSamples, maxScrollSamples)
}

func TestScrollDepth(t *testing.T) {
	assert.Equal(t, 100, scrollDepth(ScrollPosition{Top: 1500, ScrollHeight: 2000, ViewportHeight: 1000}))
	assert.Equal(t, 0, scrollDepth(ScrollPosition{Top: -20, ScrollHeight: 2000, ViewportHeight: 1000}))
	assert.Equal(t, 33, scrollDepth(ScrollPosition{Top: 333, ScrollHeight: 2000, ViewportHeight: 1000}))
	assert.Equal(t, 0, scrollDepth(ScrollPosition{Top: 10, ScrollHeight: 1000, ViewportHeight: 1000}))
}

func scrollAndTimeRules() models.Settings {
	return models.Settings{
		ExternalCounterID: "98765",
		GoldRules: []models.Rule{
			{ID: "depth", MetricPath: "behavior.max_scroll_depth", Type: models.RuleThreshold, Value: 50.0},
			{ID: "time", MetricPath: "_internal.active_seconds", Type: models.RuleTime, Value: 60.0},
		},
	}
}

func TestTracker_GoalFiresOnce(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, scrollAndTimeRules())

	h.tr.OnScroll(ScrollPosition{Top: 600, ScrollHeight: 2000, ViewportHeight: 1000})
	h.keepActive(65 * time.Second)

	m := h.tr.Metrics()
	assert.Equal(t, []string{GoldGoal}, m.Internal.GoalsReached)

	h.keepActive(100 * time.Second)
	assert.Equal(t, []string{GoldGoal}, h.tr.Metrics().Internal.GoalsReached)

	require.Len(t, h.reporter.events, 1)
	event := h.reporter.events[0]
	assert.Equal(t, GoldGoal, event.Goal)
	assert.Equal(t, "sess-test", event.SessionID)
	assert.Equal(t, "98765", event.CounterID)
	assert.Equal(t, "/a", event.PagePath)

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.GoalsFired), 0)

	_, data := h.store.last(t)
	internal := data["_internal"].(map[string]any)
	assert.Equal(t, []any{GoldGoal}, internal["goals_reached"])
}

func TestTracker_GoalNeedsEveryRule(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, scrollAndTimeRules())

	h.tr.OnScroll(ScrollPosition{Top: 400, ScrollHeight: 2000, ViewportHeight: 1000})
	h.keepActive(200 * time.Second)

	m := h.tr.Metrics()
	assert.Equal(t, 40, m.Behavior.MaxScrollDepth)
	assert.GreaterOrEqual(t, m.Internal.ActiveSeconds, 65)
	assert.Empty(t, m.Internal.GoalsReached)
	assert.Empty(t, h.reporter.events)
}

func TestTracker_LegacyThreshold(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{GoldThresholdMinutes: 1})

	h.keepActive(50 * time.Second)
	assert.Empty(t, h.tr.Metrics().Internal.GoalsReached)

	h.keepActive(10 * time.Second)
	assert.Equal(t, []string{GoldGoal}, h.tr.Metrics().Internal.GoalsReached)
}

func TestTracker_UnknownMetricBlocksGoal(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{GoldRules: []models.Rule{
		{ID: "views", MetricPath: "behavior.total_pageviews", Type: models.RuleThreshold, Value: 1.0},
		{ID: "ghost", MetricPath: "behavior.does_not_exist", Type: models.RuleThreshold, Value: 0.0},
	}})

	h.keepActive(60 * time.Second)
	assert.Empty(t, h.tr.Metrics().Internal.GoalsReached)
}

func TestTracker_ConfigureKeepsMetrics(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})

	h.keepActive(40 * time.Second)
	h.tr.TrackPageView("/b")
	assert.Empty(t, h.tr.Metrics().Internal.GoalsReached)

	h.tr.Configure(models.Settings{GoldRules: []models.Rule{
		{ID: "pages", MetricPath: "behavior.unique_pages_count", Type: models.RuleRange, Min: ptr(2), Max: ptr(5)},
	}})

	m := h.tr.Metrics()
	assert.Equal(t, 40, m.Internal.TotalSeconds)
	assert.Equal(t, 2, m.Behavior.TotalPageviews)

	h.keepActive(10 * time.Second)
	assert.Equal(t, []string{GoldGoal}, h.tr.Metrics().Internal.GoalsReached)
}

func TestTracker_ReporterFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.reporter.err = errors.New("counter unavailable")
	h.tr.Init(nil, models.Settings{GoldRules: []models.Rule{
		{ID: "views", MetricPath: "behavior.total_pageviews", Type: models.RuleThreshold, Value: 1.0},
	}})

	h.clock.Advance(10 * time.Second)

	assert.Equal(t, []string{GoldGoal}, h.tr.Metrics().Internal.GoalsReached)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.GoalReportFailures), 0)
}

func TestTracker_FlushGate(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})

	h.clock.Advance(29 * time.Second)
	h.tr.Unload(context.Background())
	assert.Zero(t, h.store.count())
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Flushes.WithLabelValues(metrics.FlushSkipped)), 0)

	h.clock.Advance(time.Second)
	require.Equal(t, 1, h.store.count())

	rec, data := h.store.last(t)
	assert.Equal(t, "sess-test", rec.SessionID)
	assert.Nil(t, rec.UserID)
	assert.Equal(t, testStart.Add(30*time.Second), rec.UpdatedAt)

	behavior := data["behavior"].(map[string]any)
	assert.Equal(t, []any{"/a"}, behavior["unique_pages_viewed"])

	internal := data["_internal"].(map[string]any)
	assert.Len(t, internal, 3)
	assert.EqualValues(t, 30, internal["total_seconds"])
	assert.Contains(t, internal, "active_seconds")
	assert.Contains(t, internal, "goals_reached")
}

func TestTracker_IdentifyFlushes(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})

	h.tr.Identify("early")
	assert.Zero(t, h.store.count(), "identify is still gated")

	h.clock.Advance(35 * time.Second)
	before := h.store.count()
	h.tr.Identify("user-42")

	require.Equal(t, before+1, h.store.count())
	rec, data := h.store.last(t)
	require.NotNil(t, rec.UserID)
	assert.Equal(t, "user-42", *rec.UserID)
	assert.Equal(t, "user-42", data["userId"])
}

func TestTracker_StoreFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("relation does not exist")
	h.tr.Init(nil, models.Settings{})

	h.clock.Advance(30 * time.Second)
	assert.NotPanics(t, func() { h.tr.Unload(context.Background()) })
	assert.InDelta(t, 2, testutil.ToFloat64(h.metrics.Flushes.WithLabelValues(metrics.FlushError)), 0)
}

func TestTracker_NoStoreSkipsFlush(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Store = nil })
	h.tr.Init(nil, models.Settings{})

	h.clock.Advance(45 * time.Second)
	assert.NotPanics(t, func() { h.tr.Unload(context.Background()) })
}

func TestTracker_StopCancelsTimers(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})
	h.tr.OnScroll(ScrollPosition{Top: 10, ScrollHeight: 2000, ViewportHeight: 1000})
	require.Positive(t, h.clock.Pending())

	h.tr.Stop()
	h.tr.Stop()
	assert.Zero(t, h.clock.Pending())

	h.clock.Advance(time.Minute)
	assert.Zero(t, h.tr.Metrics().Internal.TotalSeconds)
}

func TestTracker_MetricsIsACopy(t *testing.T) {
	h := newHarness(t)
	h.tr.Init(nil, models.Settings{})

	snap := h.tr.Metrics()
	snap.Behavior.UniquePagesViewed.Add("/tampered")
	snap.Internal.PageHistory[0].Path = "/tampered"

	m := h.tr.Metrics()
	assert.False(t, m.Behavior.UniquePagesViewed.Contains("/tampered"))
	assert.Equal(t, "/a", m.Internal.PageHistory[0].Path)
}

func TestTracker_DetectsEnvironment(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Environment = models.Environment{
			UserAgent:    "Mozilla/5.0 (Linux; Android 14) Mobile",
			ScreenWidth:  412,
			ScreenHeight: 915,
			URL:          "https://shop.example/catalog?utm_source=vk",
			TimeZone:     "UTC",
		}
	})

	m := h.tr.Metrics()
	assert.Equal(t, models.DeviceMobile, m.Context.DeviceCategory)
	assert.Equal(t, "412x915", m.Context.ScreenResolution)
	assert.Equal(t, "vk", m.Source.TrafficSource)
	assert.Equal(t, 12, m.Temporal.HourOfDay)
	assert.Equal(t, testStart.UnixMilli(), m.Temporal.SessionStartTS)

	h.tr.Init(nil, models.Settings{})
	assert.Equal(t, []string{"/catalog"}, h.tr.Metrics().Behavior.UniquePagesViewed.List())
}

func TestLandingPath(t *testing.T) {
	assert.Equal(t, "/x", landingPath("/x", "https://shop.example/a"))
	assert.Equal(t, "/a", landingPath("", "https://shop.example/a?b=c"))
	assert.Equal(t, "/", landingPath("", ""))
}
