package tracker

import (
	"context"
	"reflect"
	"sync"
	"time"

	"mabletask/tracker/logger"
	"mabletask/tracker/models"
	"mabletask/tracker/scheduler"
)

// SettingsSource loads the current classification settings. found is false
// when the source holds no settings.
type SettingsSource interface {
	LoadSettings(ctx context.Context) (settings models.Settings, found bool, err error)
}

// SettingsWatcher polls a SettingsSource and pushes changes to a Registry.
type SettingsWatcher struct {
	src      SettingsSource
	reg      *Registry
	fallback models.Settings
	sched    scheduler.Scheduler
	log      logger.Logger
	timeout  time.Duration

	mu    sync.Mutex
	timer scheduler.Timer

	// last is the value most recently loaded from src. Only changes to it
	// are pushed, so updates applied directly to the registry survive polls.
	lastMu sync.Mutex
	last   *models.Settings
}

// NewSettingsWatcher applies fallback whenever the source has no settings.
func NewSettingsWatcher(src SettingsSource, reg *Registry, fallback models.Settings, log logger.Logger) *SettingsWatcher {
	return &SettingsWatcher{
		src:      src,
		reg:      reg,
		fallback: fallback,
		sched:    reg.base.Scheduler,
		log:      log,
		timeout:  reg.ioTimeout(),
	}
}

// Refresh loads the settings once and applies them if the source changed
// since the previous load. A load error leaves the current settings in place.
func (w *SettingsWatcher) Refresh(ctx context.Context) error {
	settings, found, err := w.src.LoadSettings(ctx)
	if err != nil {
		return err
	}
	if !found {
		settings = w.fallback
	}

	w.lastMu.Lock()
	if w.last != nil && reflect.DeepEqual(settings, *w.last) {
		w.lastMu.Unlock()
		return nil
	}
	w.last = &settings
	w.lastMu.Unlock()

	w.reg.Configure(settings)
	return nil
}

// Start refreshes every interval until Stop.
func (w *SettingsWatcher) Start(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil || interval <= 0 {
		return
	}
	w.timer = w.sched.Every(interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.Refresh(ctx); err != nil {
			w.log.Warn("Failed to refresh gold settings", logger.Error(err))
		}
	})
}

func (w *SettingsWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
