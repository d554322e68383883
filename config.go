package pricewatch

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pricewatch/internal/schedule"
)

// Config holds all pricewatch configuration.
type Config struct {
	DBPath        string          `yaml:"db_path"`
	ListenAddr    string          `yaml:"listen_addr"`
	ScreenshotDir string          `yaml:"screenshot_dir"`
	Browser       BrowserConfig   `yaml:"browser"`
	Heartbeat     schedule.Config `yaml:"heartbeat"`
}

// BrowserConfig points at the remote browser.
type BrowserConfig struct {
	// Endpoint is a ws:// debugger URL or an http:// base resolved
	// through /json/version.
	Endpoint string `yaml:"endpoint"`
	// NavTimeout bounds page navigation when the scraper_timeout
	// setting is unset.
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "pricewatch.db"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "screenshots"
	}
	if c.Browser.Endpoint == "" {
		c.Browser.Endpoint = "http://localhost:9222"
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 90 * time.Second
	}
	if c.Heartbeat.TickInterval <= 0 {
		c.Heartbeat.TickInterval = time.Minute
	}
	if c.Heartbeat.MaxConcurrent <= 0 {
		c.Heartbeat.MaxConcurrent = 5
	}
	if c.Heartbeat.StuckAfter <= 0 {
		c.Heartbeat.StuckAfter = 30 * time.Minute
	}
}

// DefaultConfig returns a config with every field defaulted.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// LoadConfigFile reads a YAML config file and fills in defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}
