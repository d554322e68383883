package pricewatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/pricewatch/internal/notify"
	"github.com/hazyhaar/pricewatch/internal/session"
	"github.com/hazyhaar/pricewatch/internal/store"
	"github.com/hazyhaar/pricewatch/internal/vision"
)

type stubScraper func(ctx context.Context, req session.CaptureRequest) (*session.CaptureResult, error)

func (f stubScraper) Capture(ctx context.Context, req session.CaptureRequest) (*session.CaptureResult, error) {
	return f(ctx, req)
}

type stubExtractor func(ctx context.Context, cfg vision.Config, shot, text string) (*vision.Extraction, *vision.Metadata, error)

func (f stubExtractor) Extract(ctx context.Context, cfg vision.Config, shot, text string) (*vision.Extraction, *vision.Metadata, error) {
	return f(ctx, cfg, shot, text)
}

type stubSender struct{ alerts []notify.Alert }

func (s *stubSender) Send(ctx context.Context, url string, a notify.Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}

func priceReader(price float64) stubExtractor {
	return func(ctx context.Context, cfg vision.Config, shot, text string) (*vision.Extraction, *vision.Metadata, error) {
		p := price
		return &vision.Extraction{Price: &p, PriceConfidence: 0.9},
			&vision.Metadata{Model: "m", Provider: "ollama", PromptVersion: vision.PromptVersion}, nil
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	base := []Option{
		WithScraper(stubScraper(func(ctx context.Context, req session.CaptureRequest) (*session.CaptureResult, error) {
			return &session.CaptureResult{ScreenshotPath: "screenshots/x.png"}, nil
		})),
		WithExtractor(priceReader(9.99)),
		WithSender(&stubSender{}),
	}
	svc := New(st, nil, nil, append(base, opts...)...)
	t.Cleanup(func() { svc.Close() })
	return svc, st
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec, rec.Body.Bytes()
}

// WHAT: Tests the item CRUD surface end to end through the router.
// WHY: These are the endpoints the UI lives on; status codes and JSON
// shapes are the contract.
func TestAPIItemCRUD(t *testing.T) {
	svc, _ := newTestService(t)
	r := svc.Routes()

	rec, body := doJSON(t, r, "POST", "/api/items", map[string]any{
		"url": "https://shop.example/tv", "name": "tv",
	})
	if rec.Code != 201 {
		t.Fatalf("create: %d %s", rec.Code, body)
	}
	var created Item
	json.Unmarshal(body, &created)
	if created.ID == 0 || !created.IsActive {
		t.Fatalf("created item: %+v", created)
	}

	rec, body = doJSON(t, r, "GET", "/api/items", nil)
	var list []Item
	json.Unmarshal(body, &list)
	if rec.Code != 200 || len(list) != 1 {
		t.Fatalf("list: %d %s", rec.Code, body)
	}

	rec, _ = doJSON(t, r, "GET", fmt.Sprintf("/api/items/%d", created.ID), nil)
	if rec.Code != 200 {
		t.Fatalf("get: %d", rec.Code)
	}

	rec, body = doJSON(t, r, "PUT", fmt.Sprintf("/api/items/%d", created.ID), map[string]any{
		"url": "https://shop.example/tv", "name": "big tv", "target_price": 500.0,
	})
	if rec.Code != 200 {
		t.Fatalf("update: %d %s", rec.Code, body)
	}
	var updated Item
	json.Unmarshal(body, &updated)
	if updated.Name != "big tv" || updated.TargetPrice == nil || *updated.TargetPrice != 500 {
		t.Fatalf("updated item: %+v", updated)
	}

	rec, _ = doJSON(t, r, "DELETE", fmt.Sprintf("/api/items/%d", created.ID), nil)
	if rec.Code != 200 {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec, _ = doJSON(t, r, "GET", fmt.Sprintf("/api/items/%d", created.ID), nil)
	if rec.Code != 404 {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

// WHAT: Tests that unsafe target URLs are rejected at the API boundary.
// WHY: The browser must never be pointed at internal hosts.
func TestAPIItemURLValidation(t *testing.T) {
	svc, _ := newTestService(t)
	r := svc.Routes()

	for _, u := range []string{"ftp://x/y", "http://127.0.0.1/admin", "http://localhost:9222"} {
		rec, body := doJSON(t, r, "POST", "/api/items", map[string]any{"url": u, "name": "x"})
		if rec.Code != 400 {
			t.Errorf("POST url %q: got %d %s, want 400", u, rec.Code, body)
		}
	}
}

// WHAT: Tests the manual check trigger.
// WHY: The endpoint must queue asynchronously, 404 unknown items and be
// idempotent while a check is running.
func TestAPITriggerCheck(t *testing.T) {
	svc, st := newTestService(t)
	r := svc.Routes()
	ctx := context.Background()

	it := &Item{URL: "https://shop.example/x", Name: "x", IsActive: true}
	if err := st.InsertItem(ctx, it); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	rec, body := doJSON(t, r, "POST", fmt.Sprintf("/api/items/%d/check", it.ID), nil)
	if rec.Code != 202 {
		t.Fatalf("trigger: %d %s", rec.Code, body)
	}
	// Close waits for the queued check to finish.
	svc.Close()

	got, _ := st.GetItem(ctx, it.ID)
	if got.CurrentPrice == nil || *got.CurrentPrice != 9.99 {
		t.Fatalf("check did not run: %+v", got)
	}
	if got.IsRefreshing || got.LastChecked == nil {
		t.Fatalf("check did not settle: %+v", got)
	}

	rec, _ = doJSON(t, r, "POST", "/api/items/99999/check", nil)
	if rec.Code != 404 {
		t.Fatalf("trigger unknown item: %d", rec.Code)
	}
}

// WHAT: Tests the history endpoint with its limit parameter.
func TestAPIHistory(t *testing.T) {
	svc, st := newTestService(t)
	r := svc.Routes()
	ctx := context.Background()

	it := &Item{URL: "https://shop.example/x", Name: "x", IsActive: true}
	st.InsertItem(ctx, it)
	for i := 1; i <= 3; i++ {
		p := float64(i)
		st.InsertHistory(ctx, &store.HistoryEntry{
			ItemID: it.ID, Price: &p, PriceConfidence: 0.9, RecordedAt: int64(i),
		})
	}

	rec, body := doJSON(t, r, "GET", fmt.Sprintf("/api/items/%d/history?limit=2", it.ID), nil)
	if rec.Code != 200 {
		t.Fatalf("history: %d %s", rec.Code, body)
	}
	var hist []HistoryEntry
	json.Unmarshal(body, &hist)
	if len(hist) != 2 || *hist[0].Price != 3 {
		t.Fatalf("history rows: %+v", hist)
	}

	rec, _ = doJSON(t, r, "GET", "/api/items/99999/history", nil)
	if rec.Code != 404 {
		t.Fatalf("history of unknown item: %d", rec.Code)
	}
}

// WHAT: Tests the notification profile CRUD surface.
func TestAPIProfileCRUD(t *testing.T) {
	svc, _ := newTestService(t)
	r := svc.Routes()

	rec, body := doJSON(t, r, "POST", "/api/notification-profiles", map[string]any{
		"name": "deals", "channel_url": "https://hooks.example/d",
		"notify_on_price_drop": true, "price_drop_threshold_percent": 15.0,
	})
	if rec.Code != 201 {
		t.Fatalf("create: %d %s", rec.Code, body)
	}
	var p Profile
	json.Unmarshal(body, &p)
	if p.ID == 0 || p.PriceDropThresholdPercent != 15 {
		t.Fatalf("created profile: %+v", p)
	}

	rec, body = doJSON(t, r, "PUT", fmt.Sprintf("/api/notification-profiles/%d", p.ID), map[string]any{
		"name": "deals", "channel_url": "https://hooks.example/d2",
	})
	if rec.Code != 200 {
		t.Fatalf("update: %d %s", rec.Code, body)
	}

	rec, _ = doJSON(t, r, "DELETE", fmt.Sprintf("/api/notification-profiles/%d", p.ID), nil)
	if rec.Code != 200 {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec, _ = doJSON(t, r, "DELETE", fmt.Sprintf("/api/notification-profiles/%d", p.ID), nil)
	if rec.Code != 404 {
		t.Fatalf("delete again: %d", rec.Code)
	}
}

// WHAT: Tests settings read and write through the API.
// WHY: GET must show defaults merged with overrides; POST must persist.
func TestAPISettings(t *testing.T) {
	svc, _ := newTestService(t)
	r := svc.Routes()

	rec, body := doJSON(t, r, "GET", "/api/settings", nil)
	if rec.Code != 200 {
		t.Fatalf("get settings: %d", rec.Code)
	}
	var settings map[string]string
	json.Unmarshal(body, &settings)
	if settings["ai_provider"] != "ollama" {
		t.Fatalf("defaults missing: %+v", settings)
	}

	rec, _ = doJSON(t, r, "POST", "/api/settings", map[string]string{
		"ai_provider": "openai", "ai_model": "gpt-4o-mini",
	})
	if rec.Code != 200 {
		t.Fatalf("post settings: %d", rec.Code)
	}

	_, body = doJSON(t, r, "GET", "/api/settings", nil)
	json.Unmarshal(body, &settings)
	if settings["ai_provider"] != "openai" || settings["ai_model"] != "gpt-4o-mini" {
		t.Fatalf("overrides not applied: %+v", settings)
	}
}

// WHAT: Tests the refresh-all job endpoint.
// WHY: It must queue every idle active item and report the count.
func TestAPIRefreshAll(t *testing.T) {
	svc, st := newTestService(t)
	r := svc.Routes()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		st.InsertItem(ctx, &Item{
			URL: fmt.Sprintf("https://shop.example/%d", i), Name: "x", IsActive: true,
		})
	}

	rec, body := doJSON(t, r, "POST", "/api/jobs/refresh-all", nil)
	if rec.Code != 202 {
		t.Fatalf("refresh-all: %d %s", rec.Code, body)
	}
	var resp map[string]int
	json.Unmarshal(body, &resp)
	if resp["queued"] != 2 {
		t.Fatalf("queued: %+v", resp)
	}
	svc.Close()

	items, _ := st.ListItems(ctx)
	for _, it := range items {
		if it.LastChecked == nil {
			t.Fatalf("item %d never checked", it.ID)
		}
	}
}
