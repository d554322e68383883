package store

// Item is a monitored product page.
type Item struct {
	ID                   int64    `json:"id"`
	URL                  string   `json:"url"`
	Name                 string   `json:"name"`
	Selector             string   `json:"selector"`
	CustomPrompt         string   `json:"custom_prompt"`
	TargetPrice          *float64 `json:"target_price,omitempty"`
	CheckIntervalMinutes int      `json:"check_interval_minutes"` // 0 = inherit
	CurrentPrice         *float64 `json:"current_price,omitempty"`
	PriceConfidence      float64  `json:"price_confidence"`
	InStock              *bool    `json:"in_stock,omitempty"`
	StockConfidence      float64  `json:"stock_confidence"`
	Tags                 string   `json:"tags"`
	Description          string   `json:"description"`
	IsActive             bool     `json:"is_active"`
	IsRefreshing         bool     `json:"is_refreshing"`
	LastChecked          *int64   `json:"last_checked,omitempty"` // ms
	LastError            string   `json:"last_error"`
	ProfileID            *int64   `json:"profile_id,omitempty"`
	CreatedAt            int64    `json:"created_at"`
	UpdatedAt            int64    `json:"updated_at"`
}

// Profile is a notification profile shared by items.
type Profile struct {
	ID                        int64   `json:"id"`
	Name                      string  `json:"name"`
	ChannelURL                string  `json:"channel_url"`
	NotifyOnPriceDrop         bool    `json:"notify_on_price_drop"`
	NotifyOnTargetPrice       bool    `json:"notify_on_target_price"`
	NotifyOnStockChange       bool    `json:"notify_on_stock_change"`
	PriceDropThresholdPercent float64 `json:"price_drop_threshold_percent"`
	CheckIntervalMinutes      int     `json:"check_interval_minutes"` // 0 = inherit
	CreatedAt                 int64   `json:"created_at"`
	UpdatedAt                 int64   `json:"updated_at"`
}

// HistoryEntry is one observed data point for an item.
type HistoryEntry struct {
	ID              int64    `json:"id"`
	ItemID          int64    `json:"item_id"`
	Price           *float64 `json:"price,omitempty"`
	PriceConfidence float64  `json:"price_confidence"`
	InStock         *bool    `json:"in_stock,omitempty"`
	StockConfidence float64  `json:"stock_confidence"`
	ScreenshotPath  string   `json:"screenshot_path"`
	Model           string   `json:"model"`
	Provider        string   `json:"provider"`
	PromptVersion   string   `json:"prompt_version"`
	RepairUsed      bool     `json:"repair_used"`
	RecordedAt      int64    `json:"recorded_at"` // ms
}

// Candidate is the scheduling view of an item: just enough to decide
// whether a check is due.
type Candidate struct {
	ID                     int64
	IsRefreshing           bool
	LastChecked            *int64 // ms
	ItemIntervalMinutes    int    // 0 = unset
	ProfileIntervalMinutes int    // 0 = unset or no profile
}

// CheckSnapshot is the read snapshot a check executes against. Profile is
// nil when the item has none.
type CheckSnapshot struct {
	Item    Item
	Profile *Profile
}

// ErrMode selects how a successful check touches last_error.
type ErrMode string

const (
	// ErrSet overwrites last_error with the new message.
	ErrSet ErrMode = "set"
	// ErrClear unconditionally clears last_error.
	ErrClear ErrMode = "clear"
	// ErrClearOrdinary clears last_error unless it carries an
	// "Uncertain:" flag from an earlier check.
	ErrClearOrdinary ErrMode = "keep-uncertain"
)

// CheckUpdate is the terminal item mutation of a successful check.
type CheckUpdate struct {
	SetPrice        bool
	Price           float64
	PriceConfidence float64
	SetStock        bool
	InStock         bool
	StockConfidence float64
	ErrMode         ErrMode
	ErrMsg          string
	CheckedAt       int64 // ms
}
