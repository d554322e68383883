package pricewatch

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hazyhaar/pricewatch/internal/checker"
	"github.com/hazyhaar/pricewatch/internal/notify"
	"github.com/hazyhaar/pricewatch/internal/schedule"
	"github.com/hazyhaar/pricewatch/internal/session"
	"github.com/hazyhaar/pricewatch/internal/store"
	"github.com/hazyhaar/pricewatch/internal/vision"
)

// Option customizes a Service.
type Option func(*Service)

// WithScraper replaces the browser-backed scraper.
func WithScraper(s checker.Scraper) Option {
	return func(svc *Service) { svc.scraper = s }
}

// WithExtractor replaces the vision model client.
func WithExtractor(e checker.Extractor) Option {
	return func(svc *Service) { svc.extractor = e }
}

// WithSender replaces the webhook alert sender.
func WithSender(s notify.Sender) Option {
	return func(svc *Service) { svc.sender = s }
}

// Service ties the store, the scheduler and the check pipeline together.
type Service struct {
	cfg    *Config
	store  *store.Store
	logger *slog.Logger

	scraper   checker.Scraper
	extractor checker.Extractor
	sender    notify.Sender
	executor  *checker.Executor
	heartbeat *schedule.Heartbeat

	// browser is the owned session manager; nil when a scraper was
	// injected.
	browser *session.Manager

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a service over an open store. The default collaborators talk
// to a remote browser and a vision model endpoint; options inject fakes.
func New(st *store.Store, cfg *Config, logger *slog.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{cfg: cfg, store: st, logger: logger}
	for _, o := range opts {
		o(svc)
	}
	if svc.scraper == nil {
		svc.browser = session.NewManager(session.Config{
			Endpoint:      cfg.Browser.Endpoint,
			ScreenshotDir: cfg.ScreenshotDir,
			NavTimeout:    cfg.Browser.NavTimeout,
			Logger:        logger,
		})
		svc.scraper = svc.browser
	}
	if svc.extractor == nil {
		svc.extractor = vision.NewClient(logger)
	}
	if svc.sender == nil {
		svc.sender = notify.NewWebhookSender(logger)
	}
	svc.executor = checker.NewExecutor(st, svc.scraper, svc.extractor, svc.sender, logger)
	svc.heartbeat = schedule.New(st, svc.executor.Run, cfg.Heartbeat, logger)
	return svc
}

// Start launches the heartbeat loop. It runs until Close or until ctx is
// cancelled.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.heartbeat.Run(ctx)
	}()
}

// Close stops the heartbeat, waits for in-flight checks and releases the
// browser session. The store stays open; the caller owns it.
func (s *Service) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}

// HeartbeatTick runs one scheduler pass immediately.
func (s *Service) HeartbeatTick(ctx context.Context) error {
	return s.heartbeat.Tick(ctx)
}

// TriggerCheck queues an immediate check for one item. A no-op when a
// check is already running; the claim makes concurrent triggers and the
// heartbeat mutually exclusive.
func (s *Service) TriggerCheck(ctx context.Context, itemID int64) error {
	it, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if it == nil {
		return ErrItemNotFound
	}
	claimed, err := s.store.TryMarkRefreshing(ctx, itemID)
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.Debug("service: check already running", "item_id", itemID)
		return nil
	}
	// The check outlives the HTTP request that triggered it.
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.executor.RunClaimed(runCtx, itemID); err != nil {
			s.logger.Error("service: triggered check failed",
				"item_id", itemID, "error", err)
		}
	}()
	return nil
}

// RefreshAll queues a check for every active item that is not already
// being checked, ignoring intervals. Returns the number queued.
func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	cands, err := s.store.ListCandidates(ctx)
	if err != nil {
		return 0, err
	}
	var due []schedule.DueItem
	for _, c := range cands {
		if !c.IsRefreshing {
			due = append(due, schedule.DueItem{ID: c.ID})
		}
	}
	if len(due) == 0 {
		return 0, nil
	}
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.heartbeat.Dispatch(runCtx, due)
	}()
	return len(due), nil
}

// AddItem validates and stores a new item.
func (s *Service) AddItem(ctx context.Context, it *Item) error {
	if err := ValidateTargetURL(it.URL); err != nil {
		return err
	}
	return s.store.InsertItem(ctx, it)
}

// GetItem returns one item.
func (s *Service) GetItem(ctx context.Context, id int64) (*Item, error) {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, ErrItemNotFound
	}
	return it, nil
}

// ListItems returns all items.
func (s *Service) ListItems(ctx context.Context) ([]*Item, error) {
	return s.store.ListItems(ctx)
}

// UpdateItem validates and rewrites an item's user-editable fields.
func (s *Service) UpdateItem(ctx context.Context, it *Item) error {
	if err := ValidateTargetURL(it.URL); err != nil {
		return err
	}
	err := s.store.UpdateItem(ctx, it)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrItemNotFound
	}
	return err
}

// DeleteItem removes an item, its history (by cascade) and its screenshot.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	ok, err := s.store.DeleteItem(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrItemNotFound
	}
	shot := filepath.Join(s.cfg.ScreenshotDir, session.ScreenshotName(id))
	if err := os.Remove(shot); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("service: screenshot cleanup failed", "path", shot, "error", err)
	}
	return nil
}

// History returns an item's recorded data points, newest first.
func (s *Service) History(ctx context.Context, itemID int64, limit int) ([]*HistoryEntry, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, itemID, limit)
}

// AddProfile stores a new notification profile.
func (s *Service) AddProfile(ctx context.Context, p *Profile) error {
	return s.store.InsertProfile(ctx, p)
}

// GetProfile returns one profile.
func (s *Service) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// ListProfiles returns all profiles.
func (s *Service) ListProfiles(ctx context.Context) ([]*Profile, error) {
	return s.store.ListProfiles(ctx)
}

// UpdateProfile rewrites a profile.
func (s *Service) UpdateProfile(ctx context.Context, p *Profile) error {
	err := s.store.UpdateProfile(ctx, p)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProfileNotFound
	}
	return err
}

// DeleteProfile removes a profile. Items referencing it fall back to the
// global interval and stop alerting.
func (s *Service) DeleteProfile(ctx context.Context, id int64) error {
	ok, err := s.store.DeleteProfile(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProfileNotFound
	}
	return nil
}

// Settings returns the effective settings: defaults merged with overrides.
func (s *Service) Settings(ctx context.Context) (map[string]string, error) {
	return s.store.AllSettings(ctx)
}

// UpdateSettings upserts the given settings.
func (s *Service) UpdateSettings(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := s.store.SetSetting(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}
