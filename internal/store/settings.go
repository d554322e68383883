package store

import (
	"context"
	"fmt"
	"strconv"
)

// Default values for every runtime setting. Unknown keys written through
// SetSetting are kept but never defaulted.
var defaultSettings = map[string]string{
	"refresh_interval_minutes":        "60",
	"confidence_threshold_price":      "0.5",
	"confidence_threshold_stock":      "0.5",
	"price_outlier_threshold_enabled": "false",
	"price_outlier_threshold_percent": "500",
	"smart_scroll_enabled":            "false",
	"smart_scroll_pixels":             "350",
	"text_context_enabled":            "false",
	"text_context_length":             "5000",
	"scraper_timeout":                 "90000",
	"ai_provider":                     "ollama",
	"ai_model":                        "gemma3:4b",
	"ai_api_key":                      "",
	"ai_api_base":                     "",
	"ai_temperature":                  "0.1",
	"ai_max_tokens":                   "1000",
	"ai_timeout":                      "30",
	"enable_json_repair":              "true",
	"ai_reasoning_effort":             "low",
}

// AllSettings returns every setting merged over the defaults.
func (s *Store) AllSettings(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(defaultSettings))
	for k, v := range defaultSettings {
		out[k] = v
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("store: load settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetSetting upserts one setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("store: set setting %s: %w", key, err)
	}
	return nil
}

// SettingFloat parses a float setting, falling back on parse failure.
func SettingFloat(m map[string]string, key string, def float64) float64 {
	if v, err := strconv.ParseFloat(m[key], 64); err == nil {
		return v
	}
	return def
}

// SettingInt parses an integer setting, falling back on parse failure.
func SettingInt(m map[string]string, key string, def int) int {
	if v, err := strconv.Atoi(m[key]); err == nil {
		return v
	}
	return def
}

// SettingBool parses a boolean setting, falling back on parse failure.
func SettingBool(m map[string]string, key string, def bool) bool {
	if v, err := strconv.ParseBool(m[key]); err == nil {
		return v
	}
	return def
}

// SettingString returns a string setting, falling back when empty.
func SettingString(m map[string]string, key, def string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return def
}
