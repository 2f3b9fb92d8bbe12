package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mabletask/tracker/config"
	"mabletask/tracker/database"
	"mabletask/tracker/detector"
	"mabletask/tracker/handlers"
	"mabletask/tracker/logger"
	"mabletask/tracker/metrics"
	"mabletask/tracker/middleware"
	"mabletask/tracker/rules"
	"mabletask/tracker/scheduler"
	"mabletask/tracker/store"
	"mabletask/tracker/tracker"
)

const (
	shutdownTimeout = 10 * time.Second
	schemaTimeout   = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "behavior-tracker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.GetConfigPath("config.yml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(logger.String("service", cfg.Service.Name))

	if cfg.Service.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(promReg)

	backends, cleanup, err := openBackends(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	sched := scheduler.NewReal()
	ruleReg := rules.DefaultRegistry()

	registry := tracker.NewRegistry(tracker.Options{
		Scheduler: sched,
		Store:     backends.sessions,
		Reporter:  backends.reporter,
		Markers:   backends.markers,
		Rules:     ruleReg,
		Metrics:   appMetrics,
		Logger:    log,
		Timing: tracker.Timing{
			IdleTimeout:        cfg.Tracker.IdleTimeout,
			TickInterval:       cfg.Tracker.TickInterval,
			RuleCheckInterval:  cfg.Tracker.RuleCheckInterval,
			SyncInterval:       cfg.Tracker.SyncInterval,
			MinSessionDuration: cfg.Tracker.MinSessionDuration,
			ScrollThrottle:     cfg.Tracker.ScrollThrottle,
		},
	}, cfg.Tracker.Gold, cfg.Service.SessionTTL)
	registry.StartEviction(cfg.Service.SessionTTL / 2)

	if backends.settings != nil {
		watcher := tracker.NewSettingsWatcher(backends.settings, registry, cfg.Tracker.Gold, log)
		ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
		if err := watcher.Refresh(ctx); err != nil {
			log.Warn("Initial settings load failed, using config defaults", logger.Error(err))
		}
		cancel()
		watcher.Start(cfg.Settings.RefreshInterval)
		defer watcher.Stop()
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Track:          handlers.NewTrackHandlers(registry, log),
		Settings:       handlers.NewSettingsHandlers(registry, ruleReg, backends.saver, log),
		FrontendOrigin: cfg.Service.FrontendOrigin,
		JWTSecret:      cfg.Auth.JWTSecret,
		AdminAPIKey:    cfg.Auth.AdminAPIKey,
		Metrics:        appMetrics.Handler(),
	}, gin.Recovery(), middleware.RequestLogger(log))

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Tracker API starting", logger.Int("port", cfg.Service.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	registry.Close(ctx)

	log.Info("Server exiting")
	return nil
}

type backendSet struct {
	sessions tracker.SessionStore
	reporter tracker.GoalReporter
	markers  detector.VisitMarkerStore
	settings tracker.SettingsSource
	saver    handlers.SettingsSaver
}

// openBackends connects the enabled stores. The returned cleanup closes
// every opened connection.
func openBackends(cfg *config.Config, log logger.Logger) (*backendSet, func(), error) {
	var (
		b       = &backendSet{markers: store.NewMemoryVisitStore()}
		closers []func()
		writers []store.SessionUpserter
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*backendSet, func(), error) {
		cleanup()
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	if cfg.Database.Enabled {
		pg, err := database.NewPostgresDB(cfg.Database, log)
		if err != nil {
			return fail(fmt.Errorf("init postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		sessions := store.NewPostgresSessionStore(pg.DB)
		if err := sessions.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		writers = append(writers, sessions)
		settings := store.NewSettingsStore(pg.DB)
		b.settings = settings
		b.saver = settings
	}

	if cfg.ClickHouse.Enabled {
		ch, err := database.NewClickHouseDB(cfg.ClickHouse, log)
		if err != nil {
			return fail(fmt.Errorf("init clickhouse: %w", err))
		}
		closers = append(closers, ch.Close)

		analytics := store.NewAnalyticsStore(ch.Conn, log)
		if err := analytics.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		writers = append(writers, analytics)
		b.reporter = analytics
	}

	if cfg.Redis.Enabled {
		client, err := database.NewRedisClient(cfg.Redis, log)
		if err != nil {
			return fail(fmt.Errorf("init redis: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		b.markers = store.NewRedisVisitStore(client, cfg.Redis.MarkerTTL)
	}

	switch len(writers) {
	case 0:
		log.Warn("No session store enabled, snapshots will not be persisted")
	case 1:
		b.sessions = writers[0]
	default:
		b.sessions = store.NewMultiSessionStore(writers...)
	}

	return b, cleanup, nil
}
