// Package config loads the tracker service configuration from a YAML file,
// .env files and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mabletask/tracker/models"
)

// Default configuration values.
const (
	defaultServiceName  = "behavior-tracker"
	defaultServicePort  = 8080
	defaultFEOrigin     = "http://localhost:3000"
	defaultSessionTTL   = 30 * time.Minute
	defaultLoggingLevel = "info"

	defaultDBMaxOpenConns    = 25
	defaultDBMaxIdleConns    = 5
	defaultDBConnMaxLifetime = 5 * time.Minute

	defaultCHNativePort  = 9000
	defaultCHDialTimeout = 5 * time.Second

	defaultRedisAddress   = "localhost:6379"
	defaultVisitMarkerTTL = 365 * 24 * time.Hour

	defaultIdleTimeout        = 30 * time.Second
	defaultTickInterval       = time.Second
	defaultRuleCheckInterval  = 10 * time.Second
	defaultSyncInterval       = 30 * time.Second
	defaultMinSessionDuration = 30 * time.Second
	defaultScrollThrottle     = 200 * time.Millisecond
	defaultGoldThresholdMin   = 5

	defaultSettingsRefresh = time.Minute
)

// Config holds the application configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Database   DatabaseConfig   `yaml:"database"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Settings   SettingsConfig   `yaml:"settings"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Port    int    `env:"PORT"      yaml:"port"`
	GinMode string `env:"GIN_MODE"  yaml:"gin_mode"`
	// FrontendOrigin is the single origin allowed by CORS.
	FrontendOrigin string `env:"FE_ORIGIN" yaml:"frontend_origin"`
	// SessionTTL evicts sessions that received no calls for this long.
	SessionTTL time.Duration `env:"SESSION_TTL" yaml:"session_ttl"`
}

// DatabaseConfig holds the PostgreSQL session log and settings source.
type DatabaseConfig struct {
	Enabled         bool          `env:"DATABASE_ENABLED" yaml:"enabled"`
	URL             string        `env:"DATABASE_URL"     yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ClickHouseConfig holds the snapshot mirror and goal event log.
type ClickHouseConfig struct {
	Enabled     bool          `env:"CLICKHOUSE_ENABLED"     yaml:"enabled"`
	Host        string        `env:"CLICKHOUSE_HOST"        yaml:"host"`
	NativePort  int           `env:"CLICKHOUSE_NATIVE_PORT" yaml:"native_port"`
	Database    string        `env:"CLICKHOUSE_DB_NAME"     yaml:"database"`
	Username    string        `env:"CLICKHOUSE_USERNAME"    yaml:"username"`
	Password    string        `env:"CLICKHOUSE_PASSWORD"    yaml:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// RedisConfig holds the durable last-visit marker store.
type RedisConfig struct {
	Enabled   bool          `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address   string        `env:"REDIS_ADDRESS"  yaml:"address"`
	Password  string        `env:"REDIS_PASSWORD" yaml:"password"`
	DB        int           `env:"REDIS_DB"       yaml:"db"`
	MarkerTTL time.Duration `yaml:"marker_ttl"`
}

type AuthConfig struct {
	// JWTSecret verifies bearer tokens used to attach a user id.
	JWTSecret string `env:"JWT_SECRET_KEY" yaml:"jwt_secret"`
	// AdminAPIKey guards the settings endpoint via X-API-KEY.
	AdminAPIKey string `env:"AUTH_DEFAULT" yaml:"admin_api_key"`
}

// TrackerConfig holds per-session timing and the default classification settings.
type TrackerConfig struct {
	IdleTimeout        time.Duration   `env:"TRACKER_IDLE_TIMEOUT"         yaml:"idle_timeout"`
	TickInterval       time.Duration   `yaml:"tick_interval"`
	RuleCheckInterval  time.Duration   `env:"TRACKER_RULE_CHECK_INTERVAL"  yaml:"rule_check_interval"`
	SyncInterval       time.Duration   `env:"TRACKER_SYNC_INTERVAL"        yaml:"sync_interval"`
	MinSessionDuration time.Duration   `env:"TRACKER_MIN_SESSION_DURATION" yaml:"min_session_duration"`
	ScrollThrottle     time.Duration   `yaml:"scroll_throttle"`
	Gold               models.Settings `yaml:"gold"`
}

// SettingsConfig controls how often app_settings is re-read.
type SettingsConfig struct {
	RefreshInterval time.Duration `env:"SETTINGS_REFRESH_INTERVAL" yaml:"refresh_interval"`
}

type LoggingConfig struct {
	Level       string `env:"LOG_LEVEL"  yaml:"level"`
	Development bool   `env:"APP_DEBUG"  yaml:"development"`
}

// Load reads .env files, the YAML file at path (if present), applies defaults
// and finally environment overrides.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// defaults and environment only
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	setDefaults(cfg)

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// loadEnvFiles loads ENV_FILE if set, otherwise .env.local then .env.
// Missing files are ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// GetConfigPath returns CONFIG_PATH or defaultPath.
func GetConfigPath(defaultPath string) string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return defaultPath
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setClickHouseDefaults(&cfg.ClickHouse)
	setRedisDefaults(&cfg.Redis)
	setTrackerDefaults(&cfg.Tracker)
	if cfg.Settings.RefreshInterval == 0 {
		cfg.Settings.RefreshInterval = defaultSettingsRefresh
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLoggingLevel
	}
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.FrontendOrigin == "" {
		svc.FrontendOrigin = defaultFEOrigin
	}
	if svc.SessionTTL == 0 {
		svc.SessionTTL = defaultSessionTTL
	}
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.MaxOpenConns == 0 {
		db.MaxOpenConns = defaultDBMaxOpenConns
	}
	if db.MaxIdleConns == 0 {
		db.MaxIdleConns = defaultDBMaxIdleConns
	}
	if db.ConnMaxLifetime == 0 {
		db.ConnMaxLifetime = defaultDBConnMaxLifetime
	}
}

func setClickHouseDefaults(ch *ClickHouseConfig) {
	if ch.NativePort == 0 {
		ch.NativePort = defaultCHNativePort
	}
	if ch.DialTimeout == 0 {
		ch.DialTimeout = defaultCHDialTimeout
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddress
	}
	if r.MarkerTTL == 0 {
		r.MarkerTTL = defaultVisitMarkerTTL
	}
}

func setTrackerDefaults(t *TrackerConfig) {
	if t.IdleTimeout == 0 {
		t.IdleTimeout = defaultIdleTimeout
	}
	if t.TickInterval == 0 {
		t.TickInterval = defaultTickInterval
	}
	if t.RuleCheckInterval == 0 {
		t.RuleCheckInterval = defaultRuleCheckInterval
	}
	if t.SyncInterval == 0 {
		t.SyncInterval = defaultSyncInterval
	}
	if t.MinSessionDuration == 0 {
		t.MinSessionDuration = defaultMinSessionDuration
	}
	if t.ScrollThrottle == 0 {
		t.ScrollThrottle = defaultScrollThrottle
	}
	if t.Gold.GoldThresholdMinutes == 0 {
		t.Gold.GoldThresholdMinutes = defaultGoldThresholdMin
	}
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return &ValidationError{Field: "service.port", Message: "must be between 1 and 65535"}
	}
	if c.Database.Enabled && c.Database.URL == "" {
		return &ValidationError{Field: "database.url", Message: "is required when database is enabled"}
	}
	if c.ClickHouse.Enabled && (c.ClickHouse.Host == "" || c.ClickHouse.Database == "") {
		return &ValidationError{Field: "clickhouse.host", Message: "host and database are required when clickhouse is enabled"}
	}
	if c.Tracker.MinSessionDuration < 0 {
		return &ValidationError{Field: "tracker.min_session_duration", Message: "must not be negative"}
	}
	for name, d := range map[string]time.Duration{
		"tracker.idle_timeout":        c.Tracker.IdleTimeout,
		"tracker.tick_interval":       c.Tracker.TickInterval,
		"tracker.rule_check_interval": c.Tracker.RuleCheckInterval,
		"tracker.sync_interval":       c.Tracker.SyncInterval,
		"tracker.scroll_throttle":     c.Tracker.ScrollThrottle,
	} {
		if d < 0 {
			return &ValidationError{Field: name, Message: "must be positive"}
		}
	}
	return nil
}
