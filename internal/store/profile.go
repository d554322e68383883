package store

import (
	"context"
	"database/sql"
	"fmt"
)

const profileColumns = `id, name, channel_url, notify_on_price_drop,
	notify_on_target_price, notify_on_stock_change, price_drop_threshold_percent,
	check_interval_minutes, created_at, updated_at`

// InsertProfile stores a new notification profile.
func (s *Store) InsertProfile(ctx context.Context, p *Profile) error {
	now := nowMs()
	p.CreatedAt = now
	p.UpdatedAt = now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_profiles (name, channel_url, notify_on_price_drop,
			notify_on_target_price, notify_on_stock_change,
			price_drop_threshold_percent, check_interval_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.ChannelURL, p.NotifyOnPriceDrop, p.NotifyOnTargetPrice,
		p.NotifyOnStockChange, p.PriceDropThresholdPercent, p.CheckIntervalMinutes,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert profile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: insert profile id: %w", err)
	}
	p.ID = id
	return nil
}

// GetProfile returns the profile or (nil, nil) when it does not exist.
func (s *Store) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM notification_profiles WHERE id = ?`, id)
	return scanProfile(row)
}

// ListProfiles returns all profiles ordered by name.
func (s *Store) ListProfiles(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM notification_profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list profiles: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProfile rewrites a profile.
func (s *Store) UpdateProfile(ctx context.Context, p *Profile) error {
	p.UpdatedAt = nowMs()
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_profiles SET name = ?, channel_url = ?,
			notify_on_price_drop = ?, notify_on_target_price = ?,
			notify_on_stock_change = ?, price_drop_threshold_percent = ?,
			check_interval_minutes = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.ChannelURL, p.NotifyOnPriceDrop, p.NotifyOnTargetPrice,
		p.NotifyOnStockChange, p.PriceDropThresholdPercent,
		p.CheckIntervalMinutes, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("store: update profile %d: %w", p.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteProfile removes a profile. Items keep running and fall back to the
// global interval because profile_id is set NULL by the foreign key.
func (s *Store) DeleteProfile(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_profiles WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete profile %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Name, &p.ChannelURL, &p.NotifyOnPriceDrop,
		&p.NotifyOnTargetPrice, &p.NotifyOnStockChange,
		&p.PriceDropThresholdPercent, &p.CheckIntervalMinutes,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan profile: %w", err)
	}
	return &p, nil
}
