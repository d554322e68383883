// Package vision turns a product-page screenshot (plus optional page text)
// into a structured price/stock reading using a vision-capable model.
package vision

import (
	"errors"
	"time"

	"github.com/hazyhaar/pricewatch/internal/store"
)

// PromptVersion tags history rows so readings from different prompt
// generations are never compared blindly.
const PromptVersion = "v2.0"

// ErrEmptyContent means the model replied with no content at all.
var ErrEmptyContent = errors.New("vision: empty model response")

// Extraction is one normalized model reading.
type Extraction struct {
	Price           *float64
	Currency        string
	InStock         *bool
	PriceConfidence float64
	StockConfidence float64
	SourceType      string // "image", "text" or "both"
}

// Metadata records how the reading was produced.
type Metadata struct {
	Model         string
	Provider      string
	PromptVersion string
	RepairUsed    bool
}

// Config selects and tunes the model provider. It is rebuilt from settings
// on every call so changes take effect without a restart.
type Config struct {
	Provider        string
	Model           string
	APIKey          string
	APIBase         string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	EnableRepair    bool
	ReasoningEffort string

	// CustomPrompt is per-item extra instruction text appended to the
	// extraction prompt. Set by the caller, not read from settings.
	CustomPrompt string
}

// ConfigFromSettings builds a Config from the runtime settings map. The
// ollama base URL default only applies to the ollama provider; hosted
// providers fall back to their public endpoints when ai_api_base is unset.
func ConfigFromSettings(m map[string]string) Config {
	provider := store.SettingString(m, "ai_provider", "ollama")
	apiBase := m["ai_api_base"]
	if provider == "ollama" && apiBase == "" {
		apiBase = "http://ollama:11434"
	}
	return Config{
		Provider:        provider,
		Model:           store.SettingString(m, "ai_model", "gemma3:4b"),
		APIKey:          m["ai_api_key"],
		APIBase:         apiBase,
		Temperature:     store.SettingFloat(m, "ai_temperature", 0.1),
		MaxTokens:       store.SettingInt(m, "ai_max_tokens", 1000),
		Timeout:         time.Duration(store.SettingInt(m, "ai_timeout", 30)) * time.Second,
		EnableRepair:    store.SettingBool(m, "enable_json_repair", true),
		ReasoningEffort: store.SettingString(m, "ai_reasoning_effort", "low"),
	}
}
