package checker

import (
	"strings"
	"testing"

	"github.com/hazyhaar/pricewatch/internal/store"
	"github.com/hazyhaar/pricewatch/internal/vision"
)

func fp(v float64) *float64 { return &v }
func bp(v bool) *bool       { return &v }

func th() Thresholds {
	return Thresholds{Price: 0.5, Stock: 0.5, OutlierPercent: 500}
}

// WHAT: Tests the outlier boundary: increases strictly above the threshold
// are rejected, an increase exactly at the threshold is accepted.
// WHY: The rejection condition is a strict comparison; off-by-one here
// silently discards legitimate price jumps.
func TestDecideOutlierBoundary(t *testing.T) {
	g := th()
	g.OutlierEnabled = true
	g.OutlierPercent = 50

	// 100 -> 150 is exactly +50%: accepted.
	d := Decide(Previous{Price: fp(100)}, &vision.Extraction{Price: fp(150), PriceConfidence: 0.9}, g)
	if d.OutlierRejected {
		t.Fatal("+50% at a 50% threshold must be accepted")
	}
	if !d.AcceptPrice || !d.AppendHistory {
		t.Fatalf("accepted jump should update and append: %+v", d)
	}

	// 100 -> 151 is above the threshold: rejected outright.
	d = Decide(Previous{Price: fp(100)}, &vision.Extraction{Price: fp(151), PriceConfidence: 0.9}, g)
	if !d.OutlierRejected {
		t.Fatal("+51% at a 50% threshold must be rejected")
	}
	if d.AcceptPrice || d.AppendHistory || d.AcceptStock {
		t.Fatalf("rejection must short-circuit everything: %+v", d)
	}
	if !strings.Contains(d.ErrorMessage, "Price rejected") ||
		!strings.Contains(d.ErrorMessage, "51.0%") {
		t.Fatalf("rejection message: %q", d.ErrorMessage)
	}
}

// WHAT: Tests that the outlier guard only arms when enabled and when a
// positive previous price exists.
// WHY: First observations and disabled deployments must never reject.
func TestDecideOutlierGuardConditions(t *testing.T) {
	g := th()
	g.OutlierPercent = 50

	// Disabled: huge jump passes.
	d := Decide(Previous{Price: fp(100)}, &vision.Extraction{Price: fp(900), PriceConfidence: 0.9}, g)
	if d.OutlierRejected {
		t.Fatal("disabled guard must not reject")
	}

	g.OutlierEnabled = true
	// No previous price.
	d = Decide(Previous{}, &vision.Extraction{Price: fp(900), PriceConfidence: 0.9}, g)
	if d.OutlierRejected {
		t.Fatal("no previous price, nothing to compare against")
	}
	// Previous price zero.
	d = Decide(Previous{Price: fp(0)}, &vision.Extraction{Price: fp(900), PriceConfidence: 0.9}, g)
	if d.OutlierRejected {
		t.Fatal("zero previous price must not arm the guard")
	}
	// Price drops are never outliers.
	d = Decide(Previous{Price: fp(900)}, &vision.Extraction{Price: fp(100), PriceConfidence: 0.9}, g)
	if d.OutlierRejected {
		t.Fatal("a drop is never an outlier")
	}
}

// WHAT: Tests confidence gating of price and stock, and the history rule.
// WHY: A reading below threshold must not touch item state but still
// lands in history when the price is non-null.
func TestDecideConfidenceGates(t *testing.T) {
	// Low price confidence: not accepted, history still appended.
	d := Decide(Previous{}, &vision.Extraction{Price: fp(10), PriceConfidence: 0.4}, th())
	if d.AcceptPrice {
		t.Fatal("price below threshold must not be accepted")
	}
	if !d.AppendHistory {
		t.Fatal("non-null price always lands in history")
	}
	if d.ErrMode != store.ErrClearOrdinary {
		t.Fatalf("unaccepted price must not clear an Uncertain flag: %v", d.ErrMode)
	}

	// At-threshold confidence is accepted.
	d = Decide(Previous{}, &vision.Extraction{Price: fp(10), PriceConfidence: 0.5}, th())
	if !d.AcceptPrice || d.ErrMode != store.ErrClear {
		t.Fatalf("at-threshold price should be accepted cleanly: %+v", d)
	}

	// Null price: no price path, no history.
	d = Decide(Previous{}, &vision.Extraction{InStock: bp(true), StockConfidence: 0.9}, th())
	if d.AppendHistory {
		t.Fatal("null price must not append history")
	}
	if !d.AcceptStock {
		t.Fatal("stock is gated independently of price")
	}

	// Low stock confidence.
	d = Decide(Previous{}, &vision.Extraction{Price: fp(10), PriceConfidence: 0.9,
		InStock: bp(true), StockConfidence: 0.3}, th())
	if d.AcceptStock {
		t.Fatal("stock below threshold must not be accepted")
	}
	if !d.AcceptPrice {
		t.Fatal("price acceptance must not depend on stock")
	}
}

// WHAT: Tests the uncertain-but-accepted flag.
// WHY: A >20% swing with confidence under 0.7 is accepted but must carry
// the "Uncertain:" marker in last_error.
func TestDecideUncertainFlag(t *testing.T) {
	// 100 -> 125 at 0.6 confidence: accepted and flagged.
	d := Decide(Previous{Price: fp(100)}, &vision.Extraction{Price: fp(125), PriceConfidence: 0.6}, th())
	if !d.AcceptPrice {
		t.Fatal("swing must still be accepted")
	}
	if !d.Uncertain || d.ErrMode != store.ErrSet {
		t.Fatalf("swing at low confidence must be flagged: %+v", d)
	}
	if !strings.HasPrefix(d.ErrorMessage, "Uncertain:") ||
		!strings.Contains(d.ErrorMessage, "0.60") {
		t.Fatalf("flag message: %q", d.ErrorMessage)
	}

	// Same swing at high confidence: clean accept.
	d = Decide(Previous{Price: fp(100)}, &vision.Extraction{Price: fp(125), PriceConfidence: 0.9}, th())
	if d.Uncertain || d.ErrMode != store.ErrClear {
		t.Fatalf("confident swing must be clean: %+v", d)
	}

	// Small change at low confidence: clean accept.
	d = Decide(Previous{Price: fp(100)}, &vision.Extraction{Price: fp(110), PriceConfidence: 0.6}, th())
	if d.Uncertain {
		t.Fatalf("20%% or less is not a large swing: %+v", d)
	}

	// Downward swing also counts.
	d = Decide(Previous{Price: fp(100)}, &vision.Extraction{Price: fp(75), PriceConfidence: 0.6}, th())
	if !d.Uncertain {
		t.Fatal("large drops are swings too")
	}
}

// WHAT: Tests threshold loading from the settings map.
// WHY: Bad values must fall back to the documented defaults.
func TestLoadThresholds(t *testing.T) {
	got := LoadThresholds(map[string]string{
		"confidence_threshold_price":      "0.7",
		"confidence_threshold_stock":      "not-a-number",
		"price_outlier_threshold_percent": "50",
		"price_outlier_threshold_enabled": "true",
	})
	if got.Price != 0.7 || got.Stock != 0.5 || got.OutlierPercent != 50 || !got.OutlierEnabled {
		t.Fatalf("thresholds: %+v", got)
	}

	def := LoadThresholds(map[string]string{})
	if def.Price != 0.5 || def.Stock != 0.5 || def.OutlierPercent != 500 || def.OutlierEnabled {
		t.Fatalf("defaults: %+v", def)
	}
}
