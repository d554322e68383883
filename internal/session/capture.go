package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
	chromeUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	networkIdleWait  = 5 * time.Second
	networkIdleQuiet = 800 * time.Millisecond
	settleWait       = 2 * time.Second
	popupClickWait   = time.Second
	selectorWait     = 5 * time.Second
	autoDetectWait   = 3 * time.Second
	scrollPause      = time.Second
)

// popupSelectors are tried once each to dismiss common overlays. Every
// failure here is ignored.
var popupSelectors = []string{
	"button[aria-label='Close']",
	".close-button",
	".modal-close",
	"div[role='dialog'] button",
	"svg[data-name='Close']",
}

// currencyPattern spots a visible dollar price when no selector is given.
const currencyPattern = `\$[0-9,]+(\.[0-9]{2})?`

// CaptureRequest describes one page capture.
type CaptureRequest struct {
	ItemID       int64
	URL          string
	Selector     string
	NavTimeout   time.Duration // <= 0 falls back to the manager default
	SmartScroll  bool
	ScrollPixels int
	TextLimit    int // 0 disables text extraction
}

// CaptureResult is a finished capture.
type CaptureResult struct {
	ScreenshotPath string
	PageText       string
}

// Capture navigates an isolated page context to the target and produces a
// screenshot plus optional page text. Soft steps (popups, selector focus,
// scrolling, text) never fail the capture; navigation and screenshot do.
// An error that indicates a dead browser poisons the shared connection so
// the next capture reconnects.
func (m *Manager) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	b, err := m.browserHandle()
	if err != nil {
		return nil, err
	}
	res, err := m.capturePage(ctx, b, req)
	if err != nil && isClosedErr(err) {
		m.markDead()
	}
	return res, err
}

func (m *Manager) capturePage(ctx context.Context, b *rod.Browser, req CaptureRequest) (*CaptureResult, error) {
	log := m.cfg.Logger

	inc, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("session: incognito context: %w", err)
	}
	// The context carries cookies and storage; dispose it whatever
	// happens or they pile up on the shared browser.
	defer func() {
		if err := (proto.TargetDisposeBrowserContext{
			BrowserContextID: inc.BrowserContextID,
		}).Call(inc); err != nil {
			log.Warn("session: dispose context failed", "error", err)
		}
	}()
	page, err := stealth.Page(inc)
	if err != nil {
		return nil, fmt.Errorf("session: open page: %w", err)
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: viewportWidth, Height: viewportHeight, DeviceScaleFactor: 1,
	}); err != nil {
		log.Warn("session: set viewport failed", "error", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: chromeUA}); err != nil {
		log.Warn("session: set user agent failed", "error", err)
	}

	timeout := req.NavTimeout
	if timeout <= 0 {
		timeout = m.cfg.NavTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info("session: navigating", "item_id", req.ItemID, "url", req.URL)
	if err := page.Context(navCtx).Navigate(req.URL); err != nil {
		return nil, fmt.Errorf("session: navigate %s: %w", req.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("session: wait load timed out", "url", req.URL, "error", err)
	}

	// Bounded wait for the network to go quiet. Never fatal: SPAs that
	// poll forever still get captured after the deadline.
	idleCtx, cancelIdle := context.WithTimeout(ctx, networkIdleWait)
	page.Context(idleCtx).WaitRequestIdle(networkIdleQuiet, nil, nil, nil)()
	cancelIdle()

	if err := sleepCtx(ctx, settleWait); err != nil {
		return nil, err
	}

	m.dismissPopups(page)

	if req.Selector != "" {
		m.focusSelector(page, req.Selector)
	} else {
		m.autoDetectPrice(page)
	}

	if req.SmartScroll && req.ScrollPixels > 0 {
		if _, err := page.Eval(fmt.Sprintf("() => window.scrollBy(0, %d)", req.ScrollPixels)); err != nil {
			log.Warn("session: smart scroll failed", "error", err)
		} else if err := sleepCtx(ctx, scrollPause); err != nil {
			return nil, err
		}
	}

	var text string
	if req.TextLimit > 0 {
		text = m.extractText(page, req.TextLimit)
	}

	path, err := m.takeScreenshot(page, req.ItemID)
	if err != nil {
		return nil, err
	}
	return &CaptureResult{ScreenshotPath: path, PageText: text}, nil
}

func (m *Manager) dismissPopups(page *rod.Page) {
	for _, sel := range popupSelectors {
		if ok, el, err := page.Has(sel); err == nil && ok {
			_ = el.Timeout(popupClickWait).Click(proto.InputMouseButtonLeft, 1)
		}
	}
	_ = page.Keyboard.Press(input.Escape)
}

func (m *Manager) focusSelector(page *rod.Page, selector string) {
	el, err := page.Timeout(selectorWait).Element(selector)
	if err != nil {
		m.cfg.Logger.Warn("session: selector not found", "selector", selector)
		return
	}
	_ = el.ScrollIntoView()
}

// autoDetectPrice scrolls the first visible dollar amount into view so the
// screenshot centers on it.
func (m *Manager) autoDetectPrice(page *rod.Page) {
	el, err := page.Timeout(autoDetectWait).ElementR("*", currencyPattern)
	if err != nil {
		return
	}
	_ = el.ScrollIntoView()
}

func (m *Manager) extractText(page *rod.Page, limit int) string {
	body, err := page.Element("body")
	if err != nil {
		return ""
	}
	text, err := body.Text()
	if err != nil {
		return ""
	}
	return cutAtRune(text, limit)
}

// cutAtRune caps s at limit bytes without splitting a UTF-8 sequence.
func cutAtRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func (m *Manager) takeScreenshot(page *rod.Page, itemID int64) (string, error) {
	if err := os.MkdirAll(m.cfg.ScreenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("session: screenshot dir: %w", err)
	}
	data, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("session: screenshot: %w", err)
	}
	path := filepath.Join(m.cfg.ScreenshotDir, ScreenshotName(itemID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("session: write screenshot: %w", err)
	}
	return path, nil
}

// ScreenshotName is the stable per-item screenshot filename. Captures
// overwrite in place so disk use stays bounded.
func ScreenshotName(itemID int64) string {
	return fmt.Sprintf("item_%d.png", itemID)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
