package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertHistory appends one observed data point.
func (s *Store) InsertHistory(ctx context.Context, h *HistoryEntry) error {
	if h.RecordedAt == 0 {
		h.RecordedAt = nowMs()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO price_history (item_id, price, price_confidence, in_stock,
			stock_confidence, screenshot_path, model, provider, prompt_version,
			repair_used, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ItemID, nullFloat(h.Price), h.PriceConfidence, nullBool(h.InStock),
		h.StockConfidence, h.ScreenshotPath, h.Model, h.Provider,
		h.PromptVersion, h.RepairUsed, h.RecordedAt)
	if err != nil {
		return fmt.Errorf("store: insert history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: insert history id: %w", err)
	}
	h.ID = id
	return nil
}

// ListHistory returns the newest entries for an item, most recent first.
func (s *Store) ListHistory(ctx context.Context, itemID int64, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, price, price_confidence, in_stock, stock_confidence,
			screenshot_path, model, provider, prompt_version, repair_used, recorded_at
		FROM price_history WHERE item_id = ?
		ORDER BY recorded_at DESC, id DESC LIMIT ?`, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list history: %w", err)
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var price sql.NullFloat64
		var inStock sql.NullInt64
		if err := rows.Scan(&h.ID, &h.ItemID, &price, &h.PriceConfidence,
			&inStock, &h.StockConfidence, &h.ScreenshotPath, &h.Model,
			&h.Provider, &h.PromptVersion, &h.RepairUsed, &h.RecordedAt); err != nil {
			return nil, fmt.Errorf("store: scan history: %w", err)
		}
		if price.Valid {
			h.Price = &price.Float64
		}
		if inStock.Valid {
			v := inStock.Int64 != 0
			h.InStock = &v
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
