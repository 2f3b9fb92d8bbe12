// Package tracker observes one visitor session, accumulates engagement
// metrics, classifies the session against configurable rules and flushes
// snapshots to a session store.
//
// A Tracker never returns errors to its caller. Failures of the store, the
// goal reporter or the visit marker store are logged and swallowed.
package tracker

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"mabletask/tracker/detector"
	"mabletask/tracker/logger"
	"mabletask/tracker/metrics"
	"mabletask/tracker/models"
	"mabletask/tracker/rules"
	"mabletask/tracker/scheduler"
	"mabletask/tracker/utils"
)

const defaultIOTimeout = 5 * time.Second

// Timing holds the intervals that drive a tracker.
type Timing struct {
	IdleTimeout        time.Duration
	TickInterval       time.Duration
	RuleCheckInterval  time.Duration
	SyncInterval       time.Duration
	MinSessionDuration time.Duration
	ScrollThrottle     time.Duration
}

// DefaultTiming returns the standard intervals: 30s idle timeout, 1s tick,
// 10s rule checks, 30s sync, 30s minimum session and 200ms scroll throttle.
func DefaultTiming() Timing {
	return Timing{
		IdleTimeout:        30 * time.Second,
		TickInterval:       time.Second,
		RuleCheckInterval:  10 * time.Second,
		SyncInterval:       30 * time.Second,
		MinSessionDuration: 30 * time.Second,
		ScrollThrottle:     200 * time.Millisecond,
	}
}

func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	if t.IdleTimeout <= 0 {
		t.IdleTimeout = def.IdleTimeout
	}
	if t.TickInterval <= 0 {
		t.TickInterval = def.TickInterval
	}
	if t.RuleCheckInterval <= 0 {
		t.RuleCheckInterval = def.RuleCheckInterval
	}
	if t.SyncInterval <= 0 {
		t.SyncInterval = def.SyncInterval
	}
	if t.MinSessionDuration < 0 {
		t.MinSessionDuration = def.MinSessionDuration
	}
	if t.ScrollThrottle <= 0 {
		t.ScrollThrottle = def.ScrollThrottle
	}
	return t
}

// Options configures a Tracker. Only Environment is usually set per session;
// the rest is shared by every session of a service.
type Options struct {
	SessionID   string
	Environment models.Environment
	// LandingPath is recorded as the first page view on Init. Defaults to the
	// path of Environment.URL, or "/".
	LandingPath string

	Scheduler scheduler.Scheduler
	// Store receives snapshots. Without a store flushes are skipped.
	Store    SessionStore
	Reporter GoalReporter
	Markers  detector.VisitMarkerStore
	Rules    *rules.Registry
	Metrics  *metrics.Metrics
	Logger   logger.Logger
	Timing   Timing
	// IOTimeout bounds each store and reporter call.
	IOTimeout time.Duration
}

// Tracker is the context object for one session. All methods are safe for
// concurrent use.
type Tracker struct {
	sched     scheduler.Scheduler
	store     SessionStore
	reporter  GoalReporter
	registry  *rules.Registry
	metrics   *metrics.Metrics
	log       logger.Logger
	timing    Timing
	ioTimeout time.Duration
	env       models.Environment
	landing   string

	mu       sync.Mutex
	m        *models.SessionMetrics
	engine   *rules.Engine
	settings models.Settings
	started  bool
	stopped  bool
	lastSeen time.Time

	activity activity
	scroll   scrollSampler

	tickTimer scheduler.Timer
	ruleTimer scheduler.Timer
	syncTimer scheduler.Timer
}

// New builds a tracker and runs environment detection. Timers do not start
// until Init is called.
func New(opts Options) *Tracker {
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Rules == nil {
		opts.Rules = rules.DefaultRegistry()
	}
	if opts.SessionID == "" {
		opts.SessionID = utils.GenerateSessionID()
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = defaultIOTimeout
	}

	now := opts.Scheduler.Now()
	t := &Tracker{
		sched:     opts.Scheduler,
		store:     opts.Store,
		reporter:  opts.Reporter,
		registry:  opts.Rules,
		metrics:   opts.Metrics,
		log:       opts.Logger.With(logger.String("session_id", opts.SessionID)),
		timing:    opts.Timing.withDefaults(),
		ioTimeout: opts.IOTimeout,
		env:       opts.Environment,
		landing:   landingPath(opts.LandingPath, opts.Environment.URL),
		m:         models.NewSessionMetrics(opts.SessionID, now),
		lastSeen:  now,
		activity:  activity{state: Active, visible: true},
	}
	t.engine, _ = rules.NewEngine(t.registry, models.Settings{})

	t.m.Context = detector.DetectContext(opts.Environment)
	t.m.Source = detector.DetectSource(opts.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), t.ioTimeout)
	defer cancel()
	t.m.Temporal = detector.DetectTemporal(ctx, now, opts.Environment, opts.Markers, t.log)

	return t
}

func landingPath(explicit, rawURL string) string {
	if explicit != "" {
		return explicit
	}
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return u.Path
	}
	return "/"
}

// SessionID returns the session identifier.
func (t *Tracker) SessionID() string {
	return t.m.SessionID
}

// Init attaches identity and settings. The first call starts the timers and
// records the landing page; later calls only update identity and settings.
func (t *Tracker) Init(userID *string, settings models.Settings) {
	t.Configure(settings)

	t.mu.Lock()
	t.m.UserID = cloneID(userID)
	t.touch()
	first := !t.started && !t.stopped
	if first {
		t.started = true
		t.startTimers()
	}
	t.mu.Unlock()

	if first {
		t.log.Info("Tracker started",
			logger.String("device", t.m.Context.DeviceCategory),
			logger.String("traffic_source", t.m.Source.TrafficSource),
		)
		t.TrackPageView(t.landing)
	}
}

// startTimers must be called with t.mu held.
func (t *Tracker) startTimers() {
	t.tickTimer = t.sched.Every(t.timing.TickInterval, t.tick)
	t.ruleTimer = t.sched.Every(t.timing.RuleCheckInterval, t.checkGoals)
	t.syncTimer = t.sched.Every(t.timing.SyncInterval, func() {
		t.flushWithTimeout()
	})
	t.armIdleTimer()
}

// Identify attaches a resolved user id and attempts a flush.
func (t *Tracker) Identify(userID string) {
	t.mu.Lock()
	t.m.UserID = &userID
	t.touch()
	t.mu.Unlock()

	t.sched.Go(t.flushWithTimeout)
}

// Configure replaces the classification settings without touching the
// accumulated metrics.
func (t *Tracker) Configure(settings models.Settings) {
	engine, problems := rules.NewEngine(t.registry, settings)
	for _, p := range problems {
		t.log.Warn("Ignoring invalid gold rule", logger.Error(p))
	}

	t.mu.Lock()
	t.engine = engine
	t.settings = settings
	t.mu.Unlock()
}

// Settings returns the classification settings in effect.
func (t *Tracker) Settings() models.Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// Metrics returns a deep copy of the live metrics tree.
func (t *Tracker) Metrics() *models.SessionMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m.Clone()
}

// LastSeen returns when the tracker last received a call.
func (t *Tracker) LastSeen() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen
}

// Unload performs the best-effort flush a page unload triggers.
func (t *Tracker) Unload(ctx context.Context) {
	t.mu.Lock()
	t.touch()
	t.mu.Unlock()

	t.Flush(ctx)
}

// Stop cancels every timer. Metrics stay readable.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true

	for _, timer := range []scheduler.Timer{t.tickTimer, t.ruleTimer, t.syncTimer, t.activity.idleTimer, t.scroll.timer} {
		if timer != nil {
			timer.Stop()
		}
	}
	t.scroll.pending = false
}

// touch must be called with t.mu held.
func (t *Tracker) touch() {
	t.lastSeen = t.sched.Now()
}

func cloneID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// TrackPageView closes the dwell time of the open page and opens path.
func (t *Tracker) TrackPageView(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touch()

	now := t.sched.Now()
	history := t.m.Internal.PageHistory
	if n := len(history); n > 0 && !history[n-1].Completed {
		history[n-1].TimeOnPage = now.Sub(history[n-1].StartedAt).Seconds()
		history[n-1].Completed = true
	}

	t.m.Internal.PageHistory = append(history, models.PageVisit{Path: path, StartedAt: now})
	t.m.Behavior.TotalPageviews++
	t.m.Behavior.UniquePagesViewed.Add(path)
	recalcAvgTimePerPage(t.m)
}

// TrackProductView records a viewed catalogue item.
func (t *Tracker) TrackProductView(productID string, price float64, category string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touch()

	t.m.Ecommerce.ViewedProductCount++
	if category != "" {
		t.m.Ecommerce.CategoryDiversity.Add(category)
	}
	t.m.Internal.ProductPrices = append(t.m.Internal.ProductPrices, price)
	recalcAvgPrice(t.m)
	recalcRatios(t.m)

	t.log.Debug("Product viewed", logger.String("product_id", productID))
}

// CartDirection is the kind of cart change.
type CartDirection string

const (
	CartAdd    CartDirection = "add"
	CartRemove CartDirection = "remove"
)

func (t *Tracker) TrackCartAction(dir CartDirection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touch()

	switch dir {
	case CartAdd:
		t.m.Ecommerce.CartAddsCount++
	case CartRemove:
		t.m.Ecommerce.CartRemovesCount++
	default:
		t.log.Debug("Ignoring unknown cart action", logger.String("action", string(dir)))
		return
	}
	recalcRatios(t.m)
}

// TrackSearch latches search usage. Blank queries are ignored.
func (t *Tracker) TrackSearch(query string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touch()

	if strings.TrimSpace(query) != "" {
		t.m.Behavior.SiteSearchUsage = true
	}
}

func (t *Tracker) TrackFilterUsage() {
	t.latch(&t.m.Behavior.FilterUsage)
}

func (t *Tracker) TrackReviewsRead() {
	t.latch(&t.m.Ecommerce.ReviewsRead)
}

func (t *Tracker) TrackSizeGuideView() {
	t.latch(&t.m.Ecommerce.SizeGuideViewed)
}

func (t *Tracker) latch(flag *bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touch()
	*flag = true
}
