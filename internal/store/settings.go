package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
)

// Well-known setting keys. The API credential keys participate in the
// daemon's resolution chain: environment, then settings table, then the
// configuration file.
const (
	SettingGlobalViralityThreshold = "global_virality_threshold"
	SettingPublicBaseURL           = "public_base_url"
	SettingScraperAPIToken         = "scraper_api_token"
	SettingLLMAPIKey               = "llm_api_key"
	SettingImagesAPIKey            = "images_api_key"
)

// GetSetting returns the setting value and whether the key exists.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	query, args, err := builder.Select("value").From("settings").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build select setting: %w", err)
	}
	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return value, true, nil
}

// SetSetting stores or replaces a setting value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	query, args, err := builder.Insert("settings").
		Columns("key", "value", "updated_at").
		Values(key, value, now()).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert setting: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// DeleteSetting removes a setting key.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	query, args, err := builder.Delete("settings").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete setting: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	return nil
}

// ListSettings returns all settings keyed by name.
func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	query, args, err := builder.Select("key", "value").From("settings").OrderBy("key").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list settings: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// GlobalViralityThreshold returns the configured global threshold, or ok
// false when unset or unparseable.
func (s *Store) GlobalViralityThreshold(ctx context.Context) (float64, bool, error) {
	value, ok, err := s.GetSetting(ctx, SettingGlobalViralityThreshold)
	if err != nil || !ok {
		return 0, false, err
	}
	threshold, err := strconv.ParseFloat(value, 64)
	if err != nil || threshold <= 0 {
		return 0, false, nil
	}
	return threshold, true, nil
}
