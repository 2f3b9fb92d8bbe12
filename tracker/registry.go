package tracker

import (
	"context"
	"sync"
	"time"

	"mabletask/tracker/logger"
	"mabletask/tracker/models"
	"mabletask/tracker/scheduler"
	"mabletask/tracker/utils"
)

// Registry owns the live trackers of a service, one per session id.
type Registry struct {
	base Options
	ttl  time.Duration
	log  logger.Logger

	// configMu orders settings changes against session starts so every
	// tracker ends up with the latest settings.
	configMu sync.Mutex

	mu       sync.RWMutex
	sessions map[string]*Tracker
	settings models.Settings
	sweeper  scheduler.Timer
}

// NewRegistry creates trackers from base, which supplies every Options field
// except the per-session ones. Sessions untouched for ttl are evicted by
// EvictIdle; a zero ttl disables eviction.
func NewRegistry(base Options, settings models.Settings, ttl time.Duration) *Registry {
	if base.Scheduler == nil {
		base.Scheduler = scheduler.NewReal()
	}
	if base.Logger == nil {
		base.Logger = logger.NewNop()
	}
	return &Registry{
		base:     base,
		ttl:      ttl,
		log:      base.Logger,
		sessions: make(map[string]*Tracker),
		settings: settings,
	}
}

// Start creates and initialises a tracker for a new session.
func (r *Registry) Start(userID *string, env models.Environment, landingPath string) *Tracker {
	opts := r.base
	opts.SessionID = utils.GenerateSessionID()
	opts.Environment = env
	opts.LandingPath = landingPath

	t := New(opts)

	r.configMu.Lock()
	t.Init(userID, r.Settings())
	r.mu.Lock()
	r.sessions[t.SessionID()] = t
	r.mu.Unlock()
	r.configMu.Unlock()

	r.base.Metrics.SessionStarted()
	return t
}

// Get returns the live tracker for sessionID.
func (r *Registry) Get(sessionID string) (*Tracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.sessions[sessionID]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Settings returns the settings new sessions start with.
func (r *Registry) Settings() models.Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// Configure stores settings for new sessions and pushes them to every live
// tracker.
func (r *Registry) Configure(settings models.Settings) {
	r.configMu.Lock()
	defer r.configMu.Unlock()

	r.mu.Lock()
	r.settings = settings
	live := r.snapshot()
	r.mu.Unlock()

	for _, t := range live {
		t.Configure(settings)
	}
	r.log.Info("Gold settings applied",
		logger.Int("rules", len(settings.GoldRules)),
		logger.Int("live_sessions", len(live)),
	)
}

// End flushes and stops the session and forgets it. It reports whether the
// session existed.
func (r *Registry) End(ctx context.Context, sessionID string) bool {
	r.mu.Lock()
	t, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if !ok {
		return false
	}

	r.finish(ctx, t)
	return true
}

// EvictIdle ends sessions that received no call for longer than the ttl and
// returns how many were evicted.
func (r *Registry) EvictIdle(ctx context.Context) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.base.Scheduler.Now().Add(-r.ttl)

	r.mu.Lock()
	var stale []*Tracker
	for id, t := range r.sessions {
		if t.LastSeen().Before(cutoff) {
			stale = append(stale, t)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, t := range stale {
		r.finish(ctx, t)
	}
	if len(stale) > 0 {
		r.log.Debug("Evicted idle sessions", logger.Int("count", len(stale)))
	}
	return len(stale)
}

// StartEviction runs EvictIdle every interval until Close.
func (r *Registry) StartEviction(interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sweeper != nil {
		return
	}
	r.sweeper = r.base.Scheduler.Every(interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.ioTimeout())
		defer cancel()
		r.EvictIdle(ctx)
	})
}

// Close stops eviction and ends every live session.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	if r.sweeper != nil {
		r.sweeper.Stop()
		r.sweeper = nil
	}
	live := r.snapshot()
	r.sessions = make(map[string]*Tracker)
	r.mu.Unlock()

	for _, t := range live {
		r.finish(ctx, t)
	}
}

func (r *Registry) finish(ctx context.Context, t *Tracker) {
	t.Unload(ctx)
	t.Stop()
	r.base.Metrics.SessionEnded()
}

// snapshot must be called with r.mu held.
func (r *Registry) snapshot() []*Tracker {
	live := make([]*Tracker, 0, len(r.sessions))
	for _, t := range r.sessions {
		live = append(live, t)
	}
	return live
}

func (r *Registry) ioTimeout() time.Duration {
	if r.base.IOTimeout > 0 {
		return r.base.IOTimeout
	}
	return defaultIOTimeout
}
