package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"mabletask/tracker/logger"
	"mabletask/tracker/models"
)

// clickhouseConn is the part of clickhouse.Conn the analytics store uses.
type clickhouseConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// AnalyticsStore mirrors session snapshots into ClickHouse and records goal
// events in the analytics_events log.
type AnalyticsStore struct {
	conn clickhouseConn
	log  logger.Logger
}

func NewAnalyticsStore(conn clickhouseConn, log logger.Logger) *AnalyticsStore {
	return &AnalyticsStore{conn: conn, log: log}
}

// EnsureSchema creates the snapshot and event tables when missing.
// session_snapshots is a ReplacingMergeTree ordered by session_id, so the row
// with the newest updated_at wins and repeated flushes are idempotent.
func (s *AnalyticsStore) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS session_snapshots (
			session_id String,
			user_id    Nullable(String),
			log_data   String,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY session_id`,
		`CREATE TABLE IF NOT EXISTS analytics_events (
			event_id   String,
			event_type LowCardinality(String),
			user_id    String,
			session_id String,
			timestamp  DateTime64(3),
			page_path  String,
			referrer   String,
			event_data String
		) ENGINE = MergeTree
		ORDER BY (event_type, timestamp)`,
	}
	for _, q := range ddl {
		if err := s.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to create clickhouse table: %w", err)
		}
	}
	return nil
}

func (s *AnalyticsStore) UpsertSession(ctx context.Context, rec models.SessionRecord) error {
	err := s.conn.Exec(ctx,
		`INSERT INTO session_snapshots (session_id, user_id, log_data, updated_at) VALUES (?, ?, ?, ?)`,
		rec.SessionID,
		rec.UserID,
		string(rec.LogData),
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session snapshot %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *AnalyticsStore) InsertAnalyticsEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_type, user_id, session_id, timestamp, page_path, referrer, event_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.EventType,
			event.UserID,
			event.SessionID,
			event.Timestamp,
			event.PagePath,
			event.Referrer,
			string(event.EventData),
		)
		if err != nil {
			s.log.Warn("Error appending event to batch",
				logger.String("event_id", event.EventID),
				logger.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.log.Debug("Inserted analytics events", logger.Int("count", len(events)))
	return nil
}

// ReportGoal records a fired classification goal as an analytics event.
func (s *AnalyticsStore) ReportGoal(ctx context.Context, goal models.GoalEvent) error {
	data, err := json.Marshal(map[string]string{
		"goal":       goal.Goal,
		"counter_id": goal.CounterID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode goal event: %w", err)
	}

	event := models.AnalyticsEvent{
		EventID:   uuid.NewString(),
		EventType: models.EventGoalReached,
		SessionID: goal.SessionID,
		Timestamp: goal.FiredAt,
		PagePath:  goal.PagePath,
		Referrer:  goal.Referrer,
		EventData: data,
	}
	if goal.UserID != nil {
		event.UserID = *goal.UserID
	}

	return s.InsertAnalyticsEvents(ctx, []models.AnalyticsEvent{event})
}
