// Package schedule decides when items are due and dispatches their checks.
package schedule

import (
	"time"

	"github.com/hazyhaar/pricewatch/internal/store"
)

// MinIntervalMinutes is the floor applied to any effective interval.
const MinIntervalMinutes = 5

// DueItem is one item the selector decided to check now.
type DueItem struct {
	ID              int64
	IntervalMinutes int
	// OverdueMinutes is the age of the last check in whole minutes,
	// -1 when the item has never been checked.
	OverdueMinutes int
}

// EffectiveInterval resolves the check interval for an item: the item
// override wins, then the profile override, then the global default.
// Zero or negative values mean unset; the result never goes below the floor.
func EffectiveInterval(itemMin, profileMin, globalMin int) int {
	iv := globalMin
	switch {
	case itemMin > 0:
		iv = itemMin
	case profileMin > 0:
		iv = profileMin
	}
	if iv < MinIntervalMinutes {
		iv = MinIntervalMinutes
	}
	return iv
}

// SelectDue returns the candidates whose next check time has arrived.
// Items with a check in flight are skipped.
func SelectDue(cands []store.Candidate, globalMin int, now time.Time) []DueItem {
	var due []DueItem
	for _, c := range cands {
		if c.IsRefreshing {
			continue
		}
		iv := EffectiveInterval(c.ItemIntervalMinutes, c.ProfileIntervalMinutes, globalMin)
		if c.LastChecked == nil {
			due = append(due, DueItem{ID: c.ID, IntervalMinutes: iv, OverdueMinutes: -1})
			continue
		}
		age := now.Sub(time.UnixMilli(*c.LastChecked))
		if age >= time.Duration(iv)*time.Minute {
			due = append(due, DueItem{
				ID:              c.ID,
				IntervalMinutes: iv,
				OverdueMinutes:  int(age.Minutes()),
			})
		}
	}
	return due
}
