// Package session owns the shared connection to a remote headless browser
// and runs page captures for checks. One browser connection is shared by
// all checks; each capture gets its own isolated page context.
package session

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config configures the session manager.
type Config struct {
	// Endpoint is the remote browser endpoint: a ws:// debugger URL
	// (used as-is when it carries a session path) or an http:// base
	// resolved through /json/version.
	Endpoint string

	// ScreenshotDir is where captures are written. Default: "screenshots".
	ScreenshotDir string

	// NavTimeout bounds navigation when the per-check setting is unset.
	// Default: 90s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "screenshots"
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 90 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager holds the shared browser connection. Connect, teardown and
// reconnect are serialized behind the mutex; captures themselves run
// concurrently on separate page contexts.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	closed  bool
}

// NewManager creates a manager. The browser is connected lazily on the
// first capture.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Close tears down the shared connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.teardownLocked()
}

// browserHandle returns a live browser, connecting or reconnecting as
// needed. Concurrent callers share one connection attempt.
func (m *Manager) browserHandle() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("session: manager is closed")
	}
	if m.browser != nil {
		if _, err := (proto.BrowserGetVersion{}).Call(m.browser); err == nil {
			return m.browser, nil
		}
		m.cfg.Logger.Warn("session: browser connection lost, reconnecting")
		m.teardownLocked()
	}

	ws, err := resolveEndpoint(m.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("session: resolve endpoint: %w", err)
	}
	b := rod.New().ControlURL(ws)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("session: connect %s: %w", ws, err)
	}
	m.cfg.Logger.Info("session: connected to browser", "endpoint", m.cfg.Endpoint)
	m.browser = b
	return b, nil
}

// markDead drops the shared connection so the next capture reconnects.
func (m *Manager) markDead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != nil {
		m.cfg.Logger.Warn("session: marking browser connection dead")
		m.teardownLocked()
	}
}

func (m *Manager) teardownLocked() error {
	if m.browser == nil {
		return nil
	}
	err := m.browser.Close()
	m.browser = nil
	return err
}

// resolveEndpoint turns the configured endpoint into a devtools WebSocket
// URL. A ws:// URL that already points at a session is used directly;
// anything else goes through the /json/version discovery that rod's
// launcher implements.
func resolveEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("session: endpoint not configured")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("session: parse endpoint %s: %w", endpoint, err)
	}
	if (u.Scheme == "ws" || u.Scheme == "wss") && u.Path != "" && u.Path != "/" {
		return endpoint, nil
	}
	return launcher.ResolveURL(u.Host)
}

// isClosedErr reports whether an error indicates the shared browser (or
// its target/context) went away, which poisons the connection for every
// later capture until a reconnect.
func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"has been closed",
		"target closed",
		"session closed",
		"browser is closed",
		"use of closed network connection",
		"websocket: close",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
