package store

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notification_profiles (
	id                           INTEGER PRIMARY KEY AUTOINCREMENT,
	name                         TEXT NOT NULL UNIQUE,
	channel_url                  TEXT NOT NULL DEFAULT '',
	notify_on_price_drop         INTEGER NOT NULL DEFAULT 1,
	notify_on_target_price       INTEGER NOT NULL DEFAULT 1,
	notify_on_stock_change       INTEGER NOT NULL DEFAULT 1,
	price_drop_threshold_percent REAL NOT NULL DEFAULT 10.0,
	check_interval_minutes       INTEGER NOT NULL DEFAULT 0,
	created_at                   INTEGER NOT NULL,
	updated_at                   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	url                    TEXT NOT NULL,
	name                   TEXT NOT NULL,
	selector               TEXT NOT NULL DEFAULT '',
	custom_prompt          TEXT NOT NULL DEFAULT '',
	target_price           REAL,
	check_interval_minutes INTEGER NOT NULL DEFAULT 0,
	current_price          REAL,
	price_confidence       REAL NOT NULL DEFAULT 0,
	in_stock               INTEGER,
	stock_confidence       REAL NOT NULL DEFAULT 0,
	tags                   TEXT NOT NULL DEFAULT '',
	description            TEXT NOT NULL DEFAULT '',
	is_active              INTEGER NOT NULL DEFAULT 1,
	is_refreshing          INTEGER NOT NULL DEFAULT 0,
	last_checked           INTEGER,
	last_error             TEXT NOT NULL DEFAULT '',
	profile_id             INTEGER REFERENCES notification_profiles(id) ON DELETE SET NULL,
	created_at             INTEGER NOT NULL,
	updated_at             INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_active ON items(is_active, last_checked);

CREATE TABLE IF NOT EXISTS price_history (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id          INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	price            REAL,
	price_confidence REAL NOT NULL DEFAULT 0,
	in_stock         INTEGER,
	stock_confidence REAL NOT NULL DEFAULT 0,
	screenshot_path  TEXT NOT NULL DEFAULT '',
	model            TEXT NOT NULL DEFAULT '',
	provider         TEXT NOT NULL DEFAULT '',
	prompt_version   TEXT NOT NULL DEFAULT '',
	repair_used      INTEGER NOT NULL DEFAULT 0,
	recorded_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_item ON price_history(item_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// ApplySchema creates the tables if they do not exist.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}
