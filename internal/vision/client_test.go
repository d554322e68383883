package vision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

type fakeProvider struct {
	name    string
	replies []func(req Request) (string, error)
	calls   []Request
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, req Request) (string, error) {
	p.calls = append(p.calls, req)
	if len(p.replies) == 0 {
		return "", errors.New("fake: no reply scripted")
	}
	next := p.replies[0]
	p.replies = p.replies[1:]
	return next(req)
}

func reply(s string) func(Request) (string, error) {
	return func(Request) (string, error) { return s, nil }
}

func fail(err error) func(Request) (string, error) {
	return func(Request) (string, error) { return "", err }
}

func newTestClient(t *testing.T, p *fakeProvider) (*Client, Config, string) {
	t.Helper()
	c := NewClient(nil)
	c.backoff = time.Millisecond
	c.newProvider = func(Config) (Provider, error) { return p, nil }

	shot := filepath.Join(t.TempDir(), "item_1.png")
	if err := os.WriteFile(shot, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write screenshot: %v", err)
	}
	cfg := Config{Provider: "ollama", Model: "gemma3:4b", MaxTokens: 1000,
		Temperature: 0.1, Timeout: time.Second, EnableRepair: true}
	return c, cfg, shot
}

// WHAT: Tests the straight-through extraction path.
// WHY: A clean reply must produce a normalized extraction with metadata
// and no repair call.
func TestExtractHappyPath(t *testing.T) {
	p := &fakeProvider{name: "ollama", replies: []func(Request) (string, error){
		reply(`{"price": "1,299.00", "in_stock": true, "price_confidence": 0.92, "in_stock_confidence": 0.88}`),
	}}
	c, cfg, shot := newTestClient(t, p)

	ext, meta, err := c.Extract(context.Background(), cfg, shot, "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Price == nil || *ext.Price != 1299.00 {
		t.Fatalf("price: %+v", ext.Price)
	}
	if ext.InStock == nil || !*ext.InStock {
		t.Fatalf("stock: %+v", ext.InStock)
	}
	if meta.RepairUsed || meta.PromptVersion != PromptVersion || meta.Provider != "ollama" {
		t.Fatalf("metadata: %+v", meta)
	}
	if len(p.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(p.calls))
	}
	if p.calls[0].ImageDataURL == "" || !p.calls[0].ForceJSON {
		t.Fatalf("extraction call shape: %+v", p.calls[0])
	}
}

// WHAT: Tests that transient errors are retried and permanent ones are not.
// WHY: A flaky local model should not fail a check; a bad API key should
// fail it immediately.
func TestExtractRetryClassification(t *testing.T) {
	p := &fakeProvider{name: "ollama", replies: []func(Request) (string, error){
		fail(ErrEmptyContent),
		fail(&statusError{status: 503, body: "overloaded"}),
		reply(`{"price": 5, "price_confidence": 0.9}`),
	}}
	c, cfg, shot := newTestClient(t, p)

	ext, _, err := c.Extract(context.Background(), cfg, shot, "")
	if err != nil {
		t.Fatalf("Extract after transient errors: %v", err)
	}
	if len(p.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(p.calls))
	}
	if ext.Price == nil || *ext.Price != 5 {
		t.Fatalf("price: %+v", ext.Price)
	}

	p2 := &fakeProvider{name: "openai", replies: []func(Request) (string, error){
		fail(&statusError{status: 401, body: "bad key"}),
	}}
	c2, cfg2, shot2 := newTestClient(t, p2)
	if _, _, err := c2.Extract(context.Background(), cfg2, shot2, ""); err == nil {
		t.Fatal("auth error should fail the extraction")
	}
	if len(p2.calls) != 1 {
		t.Fatalf("auth error must not be retried, got %d calls", len(p2.calls))
	}
}

// WHAT: Tests that retries stop at the attempt cap.
// WHY: A persistently failing provider must not stall the check forever.
func TestExtractGivesUpAfterMaxAttempts(t *testing.T) {
	p := &fakeProvider{name: "ollama", replies: []func(Request) (string, error){
		fail(ErrEmptyContent), fail(ErrEmptyContent), fail(ErrEmptyContent),
		reply(`{"price": 5}`),
	}}
	c, cfg, shot := newTestClient(t, p)

	_, _, err := c.Extract(context.Background(), cfg, shot, "")
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if len(p.calls) != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, len(p.calls))
	}
}

// WHAT: Tests the JSON repair round trip.
// WHY: A malformed reply followed by a successful repair must yield a
// normal extraction flagged repair_used.
func TestExtractRepairRoundTrip(t *testing.T) {
	p := &fakeProvider{name: "ollama", replies: []func(Request) (string, error){
		reply("The price is $49.99 and the item is in stock!"),
		reply(`{"price": 49.99, "in_stock": true, "price_confidence": 0.8, "in_stock_confidence": 0.8}`),
	}}
	c, cfg, shot := newTestClient(t, p)

	ext, meta, err := c.Extract(context.Background(), cfg, shot, "")
	if err != nil {
		t.Fatalf("Extract with repair: %v", err)
	}
	if !meta.RepairUsed {
		t.Fatal("repair_used should be set")
	}
	if ext.Price == nil || *ext.Price != 49.99 {
		t.Fatalf("repaired price: %+v", ext.Price)
	}
	if len(p.calls) != 2 {
		t.Fatalf("expected extraction + repair calls, got %d", len(p.calls))
	}
	rc := p.calls[1]
	if rc.ImageDataURL != "" || rc.Temperature != 0 || rc.MaxTokens != repairMaxTokens {
		t.Fatalf("repair call shape: %+v", rc)
	}
}

// WHAT: Tests that repair is skipped when disabled.
// WHY: The enable_json_repair setting must be honored.
func TestExtractRepairDisabled(t *testing.T) {
	p := &fakeProvider{name: "ollama", replies: []func(Request) (string, error){
		reply("not json at all"),
	}}
	c, cfg, shot := newTestClient(t, p)
	cfg.EnableRepair = false

	if _, _, err := c.Extract(context.Background(), cfg, shot, ""); err == nil {
		t.Fatal("parse failure without repair should propagate")
	}
	if len(p.calls) != 1 {
		t.Fatalf("no repair call expected, got %d calls", len(p.calls))
	}
}

// WHAT: Tests text context inclusion in the prompt.
// WHY: When page text is supplied it must reach the model, bounded.
func TestExtractIncludesTextContext(t *testing.T) {
	p := &fakeProvider{name: "ollama", replies: []func(Request) (string, error){
		reply(`{"price": 5, "price_confidence": 0.9}`),
	}}
	c, cfg, shot := newTestClient(t, p)

	if _, _, err := c.Extract(context.Background(), cfg, shot, "Price: $5.00 In Stock"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	prompt := p.calls[0].Prompt
	if !strings.Contains(prompt, "Context from webpage text") ||
		!strings.Contains(prompt, "Price: $5.00") {
		t.Fatalf("context missing from prompt: %q", prompt[len(prompt)-120:])
	}
}

// WHAT: Tests per-item custom instructions in the prompt.
// WHY: An item's custom prompt must reach the model after the standard
// extraction rules, without displacing them.
func TestExtractIncludesCustomPrompt(t *testing.T) {
	p := &fakeProvider{name: "ollama", replies: []func(Request) (string, error){
		reply(`{"price": 5, "price_confidence": 0.9}`),
	}}
	c, cfg, shot := newTestClient(t, p)
	cfg.CustomPrompt = "The price is in the yellow box."

	if _, _, err := c.Extract(context.Background(), cfg, shot, ""); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	prompt := p.calls[0].Prompt
	rules := strings.Index(prompt, "Extraction Rules")
	custom := strings.Index(prompt, "The price is in the yellow box.")
	if rules < 0 || custom < 0 || custom < rules {
		t.Fatalf("custom instructions misplaced (rules=%d custom=%d)", rules, custom)
	}
}

// WHAT: Tests that prompt truncation never splits a UTF-8 sequence.
// WHY: Oversized page text is cut at a byte limit; a broken rune at the
// cut feeds invalid UTF-8 to the model.
func TestPromptTruncationKeepsValidUTF8(t *testing.T) {
	// Three-byte runes guarantee the byte limits land mid-sequence.
	long := strings.Repeat("€", promptContextLimit)
	if got := extractionPrompt(long, ""); !utf8.ValidString(got) {
		t.Fatal("extraction prompt contains invalid UTF-8 after truncation")
	}
	raw := strings.Repeat("€", repairInputLimit)
	if got := repairPrompt(raw); !utf8.ValidString(got) {
		t.Fatal("repair prompt contains invalid UTF-8 after truncation")
	}
	if got := cutAtRune("abc", 10); got != "abc" {
		t.Fatalf("short strings pass through: %q", got)
	}
}

// WHAT: Tests missing screenshot handling.
// WHY: A failed capture must surface as an error, not a model call.
func TestExtractMissingScreenshot(t *testing.T) {
	p := &fakeProvider{name: "ollama"}
	c, cfg, _ := newTestClient(t, p)

	if _, _, err := c.Extract(context.Background(), cfg, "/nonexistent/shot.png", ""); err == nil {
		t.Fatal("expected error for missing screenshot")
	}
	if len(p.calls) != 0 {
		t.Fatal("model must not be called without a screenshot")
	}
}
