package postgres

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"
)

// Setting keys used across the application.
const (
	SettingAutoUpdate       = "auto_update_enabled"
	SettingLogRetentionDays = "log_retention_days"
	SettingAlertsEnabled    = "alerts_enabled"
)

// SettingsStore is a persisted key/value option store. Reads fall back
// to the caller's default, so missing rows never surface as errors.
type SettingsStore struct {
	db *sqlx.DB
}

func NewSettingsStore(db *sqlx.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, key, def string) string {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = $1`, key)
	if err != nil {
		return def
	}
	return value
}

func (s *SettingsStore) GetInt(ctx context.Context, key string, def int) int {
	raw := s.Get(ctx, key, "")
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

func (s *SettingsStore) GetBool(ctx context.Context, key string, def bool) bool {
	raw := s.Get(ctx, key, "")
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	return err
}

func (s *SettingsStore) SetBool(ctx context.Context, key string, value bool) error {
	raw := "0"
	if value {
		raw = "1"
	}
	return s.Set(ctx, key, raw)
}
