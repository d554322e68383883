package store

import (
	"context"
	"database/sql"
	"fmt"
)

const itemColumns = `id, url, name, selector, custom_prompt, target_price,
	check_interval_minutes, current_price, price_confidence, in_stock, stock_confidence,
	tags, description, is_active, is_refreshing, last_checked, last_error, profile_id,
	created_at, updated_at`

// InsertItem stores a new item and fills in its ID and timestamps.
func (s *Store) InsertItem(ctx context.Context, it *Item) error {
	now := nowMs()
	it.CreatedAt = now
	it.UpdatedAt = now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO items (url, name, selector, custom_prompt, target_price,
			check_interval_minutes, tags, description, is_active, profile_id,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.URL, it.Name, it.Selector, it.CustomPrompt, nullFloat(it.TargetPrice),
		it.CheckIntervalMinutes, it.Tags, it.Description, it.IsActive,
		nullInt(it.ProfileID), it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: insert item id: %w", err)
	}
	it.ID = id
	return nil
}

// GetItem returns the item or (nil, nil) when it does not exist.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	return scanItem(row)
}

// ListItems returns all items, newest first.
func (s *Store) ListItems(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list items: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateItem rewrites the user-editable fields of an item. Check state
// (current price, stock, refresh flag) is owned by the check path.
func (s *Store) UpdateItem(ctx context.Context, it *Item) error {
	it.UpdatedAt = nowMs()
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET url = ?, name = ?, selector = ?, custom_prompt = ?,
			target_price = ?, check_interval_minutes = ?, tags = ?, description = ?,
			is_active = ?, profile_id = ?, updated_at = ?
		WHERE id = ?`,
		it.URL, it.Name, it.Selector, it.CustomPrompt, nullFloat(it.TargetPrice),
		it.CheckIntervalMinutes, it.Tags, it.Description, it.IsActive,
		nullInt(it.ProfileID), it.UpdatedAt, it.ID)
	if err != nil {
		return fmt.Errorf("store: update item %d: %w", it.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteItem removes an item. History rows cascade.
func (s *Store) DeleteItem(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete item %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListCandidates returns the scheduling view of all active items, including
// the interval override of the attached profile.
func (s *Store) ListCandidates(ctx context.Context) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.is_refreshing, i.last_checked, i.check_interval_minutes,
			COALESCE(p.check_interval_minutes, 0)
		FROM items i
		LEFT JOIN notification_profiles p ON p.id = i.profile_id
		WHERE i.is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("store: list candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var lastChecked sql.NullInt64
		if err := rows.Scan(&c.ID, &c.IsRefreshing, &lastChecked,
			&c.ItemIntervalMinutes, &c.ProfileIntervalMinutes); err != nil {
			return nil, fmt.Errorf("store: scan candidate: %w", err)
		}
		if lastChecked.Valid {
			v := lastChecked.Int64
			c.LastChecked = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCheckSnapshot loads the item and its profile in one read. Returns
// (nil, nil) when the item does not exist.
func (s *Store) GetCheckSnapshot(ctx context.Context, id int64) (*CheckSnapshot, error) {
	it, err := s.GetItem(ctx, id)
	if err != nil || it == nil {
		return nil, err
	}
	snap := &CheckSnapshot{Item: *it}
	if it.ProfileID != nil {
		p, err := s.GetProfile(ctx, *it.ProfileID)
		if err != nil {
			return nil, err
		}
		snap.Profile = p
	}
	return snap, nil
}

// TryMarkRefreshing claims an item for checking. Returns false when the
// item is missing or a check is already in flight. last_error is left
// alone: the terminal writes own it, and an "Uncertain:" flag must stay
// visible until the outcome of this check decides its fate.
func (s *Store) TryMarkRefreshing(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET is_refreshing = 1, updated_at = ?
		WHERE id = ? AND is_refreshing = 0`, nowMs(), id)
	if err != nil {
		return false, fmt.Errorf("store: mark refreshing %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecordCheckError finishes a failed check: stores the error, advances
// last_checked and releases the refresh flag.
func (s *Store) RecordCheckError(ctx context.Context, id int64, msg string) error {
	now := nowMs()
	_, err := s.db.ExecContext(ctx, `
		UPDATE items SET last_error = ?, last_checked = ?, is_refreshing = 0,
			updated_at = ?
		WHERE id = ?`, msg, now, now, id)
	if err != nil {
		return fmt.Errorf("store: record check error %d: %w", id, err)
	}
	return nil
}

// RecordCheckSuccess finishes a check that produced an extraction. Price and
// stock are written only when accepted; last_error handling follows
// upd.ErrMode so an "Uncertain:" flag can survive an otherwise clean check.
func (s *Store) RecordCheckSuccess(ctx context.Context, id int64, upd CheckUpdate) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE items SET
			current_price    = CASE WHEN ? THEN ? ELSE current_price END,
			price_confidence = CASE WHEN ? THEN ? ELSE price_confidence END,
			in_stock         = CASE WHEN ? THEN ? ELSE in_stock END,
			stock_confidence = CASE WHEN ? THEN ? ELSE stock_confidence END,
			last_error = CASE CAST(? AS TEXT)
				WHEN 'set'   THEN ?
				WHEN 'clear' THEN ''
				ELSE CASE WHEN last_error LIKE 'Uncertain:%' THEN last_error ELSE '' END
			END,
			last_checked = ?, is_refreshing = 0, updated_at = ?
		WHERE id = ?`,
		upd.SetPrice, upd.Price,
		upd.SetPrice, upd.PriceConfidence,
		upd.SetStock, upd.InStock,
		upd.SetStock, upd.StockConfidence,
		string(upd.ErrMode), upd.ErrMsg,
		upd.CheckedAt, upd.CheckedAt, id)
	if err != nil {
		return fmt.Errorf("store: record check success %d: %w", id, err)
	}
	return nil
}

// ClearStaleRefreshing force-releases refresh flags older than cutoff and
// records why. Returns how many items were released.
func (s *Store) ClearStaleRefreshing(ctx context.Context, cutoffMs int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET is_refreshing = 0,
			last_error = 'Check abandoned: refresh flag cleared by watchdog',
			updated_at = ?
		WHERE is_refreshing = 1 AND updated_at <= ?`, nowMs(), cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("store: clear stale refreshing: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var it Item
	var targetPrice, currentPrice sql.NullFloat64
	var inStock, lastChecked, profileID sql.NullInt64
	err := row.Scan(&it.ID, &it.URL, &it.Name, &it.Selector, &it.CustomPrompt,
		&targetPrice, &it.CheckIntervalMinutes, &currentPrice, &it.PriceConfidence,
		&inStock, &it.StockConfidence, &it.Tags, &it.Description, &it.IsActive,
		&it.IsRefreshing, &lastChecked, &it.LastError, &profileID,
		&it.CreatedAt, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan item: %w", err)
	}
	if targetPrice.Valid {
		it.TargetPrice = &targetPrice.Float64
	}
	if currentPrice.Valid {
		it.CurrentPrice = &currentPrice.Float64
	}
	if inStock.Valid {
		v := inStock.Int64 != 0
		it.InStock = &v
	}
	if lastChecked.Valid {
		it.LastChecked = &lastChecked.Int64
	}
	if profileID.Valid {
		it.ProfileID = &profileID.Int64
	}
	return &it, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}
