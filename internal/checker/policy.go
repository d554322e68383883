package checker

import (
	"fmt"
	"math"

	"github.com/hazyhaar/pricewatch/internal/store"
	"github.com/hazyhaar/pricewatch/internal/vision"
)

// Thresholds gates which extracted values make it into item state.
type Thresholds struct {
	Price          float64
	Stock          float64
	OutlierPercent float64
	OutlierEnabled bool
}

// LoadThresholds reads the gating thresholds from the settings map.
func LoadThresholds(m map[string]string) Thresholds {
	return Thresholds{
		Price:          store.SettingFloat(m, "confidence_threshold_price", 0.5),
		Stock:          store.SettingFloat(m, "confidence_threshold_stock", 0.5),
		OutlierPercent: store.SettingFloat(m, "price_outlier_threshold_percent", 500),
		OutlierEnabled: store.SettingBool(m, "price_outlier_threshold_enabled", false),
	}
}

// A price swing beyond swingPercent with confidence below lowConfidence is
// accepted but flagged for review.
const (
	swingPercent  = 20.0
	lowConfidence = 0.7
)

// Previous is the item state before the check.
type Previous struct {
	Price *float64
	Stock *bool
}

// Decision is what a successful extraction does to item state.
type Decision struct {
	OutlierRejected bool
	AcceptPrice     bool
	AcceptStock     bool
	AppendHistory   bool
	Uncertain       bool
	ErrorMessage    string
	ErrMode         store.ErrMode
}

// Decide applies the state-update policy to one extraction.
//
// Order matters: the outlier guard runs before any confidence gating and
// rejects the whole price path when the increase strictly exceeds the
// threshold. A history row is appended for every non-null price, accepted
// or not. Stock is gated independently of price.
func Decide(prev Previous, ext *vision.Extraction, th Thresholds) Decision {
	d := Decision{ErrMode: store.ErrClearOrdinary}

	if ext.Price != nil {
		if th.OutlierEnabled && prev.Price != nil && *prev.Price > 0 {
			pct := (*ext.Price - *prev.Price) / *prev.Price * 100
			if pct > th.OutlierPercent {
				d.OutlierRejected = true
				d.ErrorMessage = fmt.Sprintf(
					"Price rejected: %.1f%% increase exceeds outlier threshold (%g%%)",
					pct, th.OutlierPercent)
				return d
			}
		}

		if ext.PriceConfidence >= th.Price {
			d.AcceptPrice = true
			d.ErrMode = store.ErrClear
			if prev.Price != nil && *prev.Price > 0 {
				change := math.Abs(*ext.Price-*prev.Price) / *prev.Price * 100
				if change > swingPercent && ext.PriceConfidence < lowConfidence {
					d.Uncertain = true
					d.ErrMode = store.ErrSet
					d.ErrorMessage = fmt.Sprintf(
						"Uncertain: Large price change with low confidence (%.2f)",
						ext.PriceConfidence)
				}
			}
		}
		d.AppendHistory = true
	}

	if ext.InStock != nil && ext.StockConfidence >= th.Stock {
		d.AcceptStock = true
	}
	return d
}
