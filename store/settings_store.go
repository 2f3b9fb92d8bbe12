package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mabletask/tracker/models"
)

// SettingsStore reads the classification settings row maintained by the
// application's admin screens.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// LoadSettings returns the first app_settings row. found is false when the
// table is empty.
func (s *SettingsStore) LoadSettings(ctx context.Context) (settings models.Settings, found bool, err error) {
	var (
		threshold sql.NullFloat64
		rules     []byte
		counterID sql.NullString
	)

	err = s.db.QueryRowContext(ctx, `
		SELECT gold_user_threshold_minutes, gold_config, yandex_id
		FROM app_settings
		LIMIT 1`,
	).Scan(&threshold, &rules, &counterID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Settings{}, false, nil
	}
	if err != nil {
		return models.Settings{}, false, fmt.Errorf("failed to load app settings: %w", err)
	}

	settings.GoldThresholdMinutes = threshold.Float64
	settings.ExternalCounterID = counterID.String
	if len(rules) > 0 && string(rules) != "null" {
		if err := json.Unmarshal(rules, &settings.GoldRules); err != nil {
			return models.Settings{}, false, fmt.Errorf("failed to decode gold_config: %w", err)
		}
	}

	return settings, true, nil
}

// SaveSettings writes settings into the app_settings row, creating it when
// the table is empty.
func (s *SettingsStore) SaveSettings(ctx context.Context, settings models.Settings) error {
	rules, err := json.Marshal(settings.GoldRules)
	if err != nil {
		return fmt.Errorf("failed to encode gold_config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin settings update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE app_settings
		SET gold_user_threshold_minutes = $1, gold_config = $2, yandex_id = $3`,
		settings.GoldThresholdMinutes, rules, settings.ExternalCounterID,
	)
	if err != nil {
		return fmt.Errorf("failed to update app settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update app settings: %w", err)
	}
	if n == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO app_settings (gold_user_threshold_minutes, gold_config, yandex_id)
			VALUES ($1, $2, $3)`,
			settings.GoldThresholdMinutes, rules, settings.ExternalCounterID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert app settings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit app settings: %w", err)
	}
	return nil
}
