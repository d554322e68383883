// Package pricewatch monitors product pages for price and stock changes.
//
// A heartbeat scheduler selects items whose check interval has elapsed and
// dispatches checks under a concurrency bound. Each check captures the page
// through a persistent remote browser session, asks a vision model for a
// structured price/stock reading, gates the result on confidence and an
// outlier guard, persists the outcome in SQLite and fires webhook alerts
// per the item's notification profile.
package pricewatch

import "github.com/hazyhaar/pricewatch/internal/store"

// Re-export store types for public API.
type (
	Item         = store.Item
	Profile      = store.Profile
	HistoryEntry = store.HistoryEntry
)
