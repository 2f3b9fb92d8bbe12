package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"mabletask/tracker/config"
	"mabletask/tracker/logger"
)

const pingTimeout = 5 * time.Second

type DBClient struct {
	DB  *sql.DB
	log logger.Logger
}

// NewPostgresDB opens and verifies the PostgreSQL connection holding the
// session log and app settings.
func NewPostgresDB(cfg config.DatabaseConfig, log logger.Logger) (*DBClient, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	log.Info("Connected to PostgreSQL")
	return &DBClient{DB: db, log: log}, nil
}

func (c *DBClient) Close() {
	if c.DB == nil {
		return
	}
	if err := c.DB.Close(); err != nil {
		c.log.Warn("Error closing database connection", logger.Error(err))
		return
	}
	c.log.Info("PostgreSQL connection closed")
}
