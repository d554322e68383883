// Package checker runs one item check end to end: scrape, extract, apply
// the state-update policy, persist, notify.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/pricewatch/internal/notify"
	"github.com/hazyhaar/pricewatch/internal/session"
	"github.com/hazyhaar/pricewatch/internal/store"
	"github.com/hazyhaar/pricewatch/internal/textclean"
	"github.com/hazyhaar/pricewatch/internal/vision"
)

// Scraper captures a product page.
type Scraper interface {
	Capture(ctx context.Context, req session.CaptureRequest) (*session.CaptureResult, error)
}

// Extractor turns a capture into a structured reading.
type Extractor interface {
	Extract(ctx context.Context, cfg vision.Config, screenshotPath, pageText string) (*vision.Extraction, *vision.Metadata, error)
}

// Executor runs checks. Collaborators are interfaces so tests can fake
// the browser and the model.
type Executor struct {
	store     *store.Store
	scraper   Scraper
	extractor Extractor
	sender    notify.Sender
	logger    *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(st *store.Store, scraper Scraper, extractor Extractor, sender notify.Sender, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: st, scraper: scraper, extractor: extractor,
		sender: sender, logger: logger}
}

// Run claims the item and checks it. A no-op when the item is missing or
// already being checked.
func (e *Executor) Run(ctx context.Context, itemID int64) error {
	claimed, err := e.store.TryMarkRefreshing(ctx, itemID)
	if err != nil {
		return err
	}
	if !claimed {
		e.logger.Debug("checker: item busy or missing, skipping", "item_id", itemID)
		return nil
	}
	return e.RunClaimed(ctx, itemID)
}

// RunClaimed checks an item whose refresh flag the caller already holds.
// Whatever happens, the item ends with is_refreshing cleared and
// last_checked advanced: failures land in last_error instead of
// propagating to the scheduler.
func (e *Executor) RunClaimed(ctx context.Context, itemID int64) (err error) {
	defer func() {
		if err == nil {
			return
		}
		rctx := context.WithoutCancel(ctx)
		if rerr := e.store.RecordCheckError(rctx, itemID, err.Error()); rerr != nil {
			e.logger.Error("checker: terminal write failed",
				"item_id", itemID, "error", rerr)
		}
	}()

	snap, err := e.store.GetCheckSnapshot(ctx, itemID)
	if err != nil {
		return err
	}
	if snap == nil {
		e.logger.Warn("checker: item vanished before check", "item_id", itemID)
		return nil
	}

	settings, err := e.store.AllSettings(ctx)
	if err != nil {
		return err
	}
	th := LoadThresholds(settings)

	req := session.CaptureRequest{
		ItemID:       itemID,
		URL:          snap.Item.URL,
		Selector:     snap.Item.Selector,
		NavTimeout:   time.Duration(store.SettingInt(settings, "scraper_timeout", 90000)) * time.Millisecond,
		SmartScroll:  store.SettingBool(settings, "smart_scroll_enabled", false),
		ScrollPixels: store.SettingInt(settings, "smart_scroll_pixels", 350),
	}
	if store.SettingBool(settings, "text_context_enabled", false) {
		req.TextLimit = store.SettingInt(settings, "text_context_length", 5000)
	}

	capt, err := e.scraper.Capture(ctx, req)
	if err != nil {
		return fmt.Errorf("Failed to capture screenshot: %w", err)
	}

	var pageText string
	if capt.PageText != "" {
		pageText = textclean.FilterRelevant(textclean.Clean(capt.PageText), req.TextLimit)
	}

	visionCfg := vision.ConfigFromSettings(settings)
	visionCfg.CustomPrompt = snap.Item.CustomPrompt

	ext, meta, err := e.extractor.Extract(ctx, visionCfg,
		capt.ScreenshotPath, pageText)
	if err != nil {
		return fmt.Errorf("AI analysis failed: %w", err)
	}

	d := Decide(Previous{Price: snap.Item.CurrentPrice, Stock: snap.Item.InStock}, ext, th)
	now := time.Now().UnixMilli()

	if d.OutlierRejected {
		e.logger.Warn("checker: price rejected as outlier",
			"item_id", itemID, "reason", d.ErrorMessage)
		return e.store.RecordCheckError(ctx, itemID, d.ErrorMessage)
	}

	upd := store.CheckUpdate{ErrMode: d.ErrMode, ErrMsg: d.ErrorMessage, CheckedAt: now}
	if d.AcceptPrice {
		upd.SetPrice = true
		upd.Price = *ext.Price
		upd.PriceConfidence = ext.PriceConfidence
	}
	if d.AcceptStock {
		upd.SetStock = true
		upd.InStock = *ext.InStock
		upd.StockConfidence = ext.StockConfidence
	}
	if err := e.store.RecordCheckSuccess(ctx, itemID, upd); err != nil {
		return err
	}

	if d.AppendHistory {
		h := &store.HistoryEntry{
			ItemID:          itemID,
			Price:           ext.Price,
			PriceConfidence: ext.PriceConfidence,
			InStock:         ext.InStock,
			StockConfidence: ext.StockConfidence,
			ScreenshotPath:  capt.ScreenshotPath,
			Model:           meta.Model,
			Provider:        meta.Provider,
			PromptVersion:   meta.PromptVersion,
			RepairUsed:      meta.RepairUsed,
			RecordedAt:      now,
		}
		if herr := e.store.InsertHistory(ctx, h); herr != nil {
			e.logger.Error("checker: history append failed",
				"item_id", itemID, "error", herr)
		}
	}

	e.sendAlerts(ctx, snap, ext)

	e.logger.Info("checker: check complete",
		"item_id", itemID,
		"price_accepted", d.AcceptPrice,
		"stock_accepted", d.AcceptStock,
		"uncertain", d.Uncertain,
		"repair_used", meta.RepairUsed)
	return nil
}

// sendAlerts evaluates the profile triggers against the raw extraction and
// the pre-check state. Delivery failures are logged and dropped; alerts
// never fail a check.
func (e *Executor) sendAlerts(ctx context.Context, snap *store.CheckSnapshot, ext *vision.Extraction) {
	p := snap.Profile
	if p == nil || e.sender == nil {
		return
	}
	rules := notify.Rules{
		ChannelURL:           p.ChannelURL,
		OnPriceDrop:          p.NotifyOnPriceDrop,
		DropThresholdPercent: p.PriceDropThresholdPercent,
		OnTargetPrice:        p.NotifyOnTargetPrice,
		OnStockChange:        p.NotifyOnStockChange,
	}
	obs := notify.Observation{
		ItemName:    snap.Item.Name,
		TargetPrice: snap.Item.TargetPrice,
		NewPrice:    ext.Price,
		OldPrice:    snap.Item.CurrentPrice,
		NewStock:    ext.InStock,
		OldStock:    snap.Item.InStock,
	}
	for _, a := range notify.Evaluate(rules, obs) {
		if err := e.sender.Send(ctx, rules.ChannelURL, a); err != nil {
			e.logger.Error("checker: alert delivery failed",
				"item_id", snap.Item.ID, "title", a.Title, "error", err)
		}
	}
}
