package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pricewatch/internal/store"
)

// Config tunes the heartbeat loop.
type Config struct {
	// TickInterval is how often due items are gathered.
	TickInterval time.Duration `yaml:"tick_interval"`
	// MaxConcurrent bounds simultaneous checks per tick.
	MaxConcurrent int `yaml:"max_concurrent"`
	// StuckAfter is how long a refresh flag may stay set before the
	// watchdog sweep releases it. Zero disables the sweep.
	StuckAfter time.Duration `yaml:"stuck_after"`
}

func (c *Config) defaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
}

// CheckFunc runs one item check end to end. It must handle its own
// failures; the returned error is only logged.
type CheckFunc func(ctx context.Context, itemID int64) error

// Heartbeat periodically gathers due items and dispatches their checks
// under a concurrency bound.
type Heartbeat struct {
	store  *store.Store
	check  CheckFunc
	cfg    Config
	logger *slog.Logger
}

// New creates a heartbeat. check must not be nil.
func New(st *store.Store, check CheckFunc, cfg Config, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()
	return &Heartbeat{store: st, check: check, cfg: cfg, logger: logger}
}

// Run ticks until ctx is cancelled. Each tick runs to completion before
// the next one is considered; items already refreshing are excluded by
// the selector, so a slow check never blocks the rest of the fleet.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()

	h.logger.Info("heartbeat: started",
		"tick", h.cfg.TickInterval.String(),
		"max_concurrent", h.cfg.MaxConcurrent)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("heartbeat: stopped")
			return
		case <-ticker.C:
			if err := h.Tick(ctx); err != nil {
				h.logger.Error("heartbeat: tick failed", "error", err)
			}
		}
	}
}

// Tick performs one heartbeat: sweep stuck flags, select due items,
// dispatch their checks and wait for the batch to finish.
func (h *Heartbeat) Tick(ctx context.Context) error {
	if h.cfg.StuckAfter > 0 {
		cutoff := time.Now().Add(-h.cfg.StuckAfter).UnixMilli()
		if n, err := h.store.ClearStaleRefreshing(ctx, cutoff); err != nil {
			h.logger.Error("heartbeat: stale sweep failed", "error", err)
		} else if n > 0 {
			h.logger.Warn("heartbeat: released stuck refresh flags", "count", n)
		}
	}

	settings, err := h.store.AllSettings(ctx)
	if err != nil {
		return err
	}
	globalMin := store.SettingInt(settings, "refresh_interval_minutes", 60)

	cands, err := h.store.ListCandidates(ctx)
	if err != nil {
		return err
	}
	due := SelectDue(cands, globalMin, time.Now())
	if len(due) == 0 {
		return nil
	}
	h.logger.Info("heartbeat: dispatching", "due", len(due), "candidates", len(cands))
	h.Dispatch(ctx, due)
	return nil
}

// Dispatch runs checks for the given items, at most MaxConcurrent at a
// time, and returns when all of them have finished.
func (h *Heartbeat) Dispatch(ctx context.Context, due []DueItem) {
	sem := make(chan struct{}, h.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for _, d := range due {
		wg.Add(1)
		go func(d DueItem) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			if err := h.check(ctx, d.ID); err != nil {
				h.logger.Error("heartbeat: check failed",
					"item_id", d.ID, "error", err)
			}
		}(d)
	}
	wg.Wait()
}
