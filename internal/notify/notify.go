// Package notify decides which alerts an observation triggers and delivers
// them to the profile's webhook channel.
package notify

import "fmt"

// Rules is the per-profile alert configuration.
type Rules struct {
	ChannelURL           string
	OnPriceDrop          bool
	DropThresholdPercent float64
	OnTargetPrice        bool
	OnStockChange        bool
}

// Alert is one formatted notification.
type Alert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Observation is the before/after view of a completed check.
type Observation struct {
	ItemName    string
	TargetPrice *float64
	NewPrice    *float64
	OldPrice    *float64
	NewStock    *bool
	OldStock    *bool
}

// Evaluate returns the alerts an observation triggers. The three kinds
// fire independently: a single check can produce several alerts.
func Evaluate(r Rules, o Observation) []Alert {
	var alerts []Alert

	if r.OnPriceDrop && o.NewPrice != nil && o.OldPrice != nil && *o.NewPrice < *o.OldPrice {
		drop := (*o.OldPrice - *o.NewPrice) / *o.OldPrice * 100
		if drop >= r.DropThresholdPercent {
			alerts = append(alerts, Alert{
				Title: fmt.Sprintf("Price Drop Alert: %s", o.ItemName),
				Body: fmt.Sprintf("Price dropped by %.1f%%! Now $%v (was $%v)",
					drop, *o.NewPrice, *o.OldPrice),
			})
		}
	}

	if r.OnTargetPrice && o.NewPrice != nil && o.TargetPrice != nil &&
		*o.TargetPrice > 0 && *o.NewPrice <= *o.TargetPrice {
		alerts = append(alerts, Alert{
			Title: fmt.Sprintf("Target Price Alert: %s", o.ItemName),
			Body:  fmt.Sprintf("Price is $%v (Target: $%v)", *o.NewPrice, *o.TargetPrice),
		})
	}

	if r.OnStockChange && o.NewStock != nil && o.OldStock != nil && *o.NewStock != *o.OldStock {
		status := "Out of Stock"
		if *o.NewStock {
			status = "In Stock"
		}
		alerts = append(alerts, Alert{
			Title: fmt.Sprintf("Stock Alert: %s", o.ItemName),
			Body:  fmt.Sprintf("Item is now %s", status),
		})
	}

	return alerts
}
