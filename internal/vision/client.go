package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

const (
	maxAttempts     = 3
	initialBackoff  = time.Second
	maxBackoff      = 5 * time.Second
	repairMaxTokens = 300
)

// Client runs extractions against whatever provider the settings select.
type Client struct {
	logger  *slog.Logger
	backoff time.Duration

	// newProvider is swappable in tests.
	newProvider func(Config) (Provider, error)
}

// NewClient creates a client.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger, backoff: initialBackoff, newProvider: newProvider}
}

// Extract reads the screenshot, calls the model with retry on transient
// failures, parses the reply and falls back to one repair call when the
// reply is not valid schema JSON and repair is enabled.
func (c *Client) Extract(ctx context.Context, cfg Config, screenshotPath, pageText string) (*Extraction, *Metadata, error) {
	provider, err := c.newProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	img, err := os.ReadFile(screenshotPath)
	if err != nil {
		return nil, nil, fmt.Errorf("vision: read screenshot: %w", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)

	req := Request{
		Prompt:       extractionPrompt(pageText, cfg.CustomPrompt),
		ImageDataURL: dataURL,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		ForceJSON:    true,
	}
	c.logger.Info("vision: calling model",
		"provider", provider.Name(), "model", cfg.Model,
		"temperature", cfg.Temperature, "max_tokens", cfg.MaxTokens,
		"text_context", pageText != "")

	raw, err := c.completeWithRetry(ctx, provider, req)
	if err != nil {
		return nil, nil, fmt.Errorf("vision: model call failed: %w", err)
	}

	meta := &Metadata{
		Model:         cfg.Model,
		Provider:      provider.Name(),
		PromptVersion: PromptVersion,
	}
	ext, perr := parseExtraction(raw)
	if perr != nil {
		if !cfg.EnableRepair {
			return nil, nil, perr
		}
		c.logger.Warn("vision: reply parse failed, attempting repair", "error", perr)
		ext, err = c.repair(ctx, provider, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("vision: repair failed: %w", err)
		}
		meta.RepairUsed = true
	}

	c.logger.Info("vision: extraction complete",
		"price", fmtPrice(ext.Price), "price_confidence", ext.PriceConfidence,
		"in_stock", fmtStock(ext.InStock), "stock_confidence", ext.StockConfidence,
		"repair_used", meta.RepairUsed)
	return ext, meta, nil
}

func (c *Client) completeWithRetry(ctx context.Context, p Provider, req Request) (string, error) {
	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := p.Complete(ctx, req)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == maxAttempts {
			break
		}
		c.logger.Warn("vision: transient provider error",
			"attempt", attempt, "backoff", backoff.String(), "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return "", lastErr
}

// repair asks the model once to convert its own malformed reply into
// schema JSON. Deterministic and cheap: temperature 0, small token budget.
func (c *Client) repair(ctx context.Context, p Provider, raw string) (*Extraction, error) {
	out, err := p.Complete(ctx, Request{
		Prompt:      repairPrompt(raw),
		Temperature: 0,
		MaxTokens:   repairMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return parseExtraction(out)
}

// isTransient reports whether a provider error is worth retrying:
// timeouts, connection failures, rate limits, server errors and empty
// replies. Auth and bad-request errors are permanent.
func isTransient(err error) bool {
	if errors.Is(err, ErrEmptyContent) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.transient()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

func fmtPrice(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func fmtStock(s *bool) any {
	if s == nil {
		return nil
	}
	return *s
}
