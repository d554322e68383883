package vision

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSONBlock digs the JSON object out of a model reply: a fenced
// code block first, then the first balanced object, then the raw text.
func extractJSONBlock(s string) string {
	if m := fencedJSON.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if obj := firstObject(s); obj != "" {
		return obj
	}
	return s
}

func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// parseExtraction normalizes a model reply into an Extraction. Models are
// sloppy: prices arrive as strings with currency symbols, stock as words,
// confidences out of range. Everything is coerced per the schema rules.
func parseExtraction(raw string) (*Extraction, error) {
	block := extractJSONBlock(raw)
	if !gjson.Valid(block) {
		return nil, fmt.Errorf("vision: invalid JSON in model reply")
	}
	root := gjson.Parse(block)
	if !root.IsObject() {
		return nil, fmt.Errorf("vision: model reply is not a JSON object")
	}

	ext := &Extraction{
		Price:           normalizePrice(root.Get("price")),
		Currency:        "USD",
		InStock:         normalizeStock(root.Get("in_stock")),
		PriceConfidence: clampConfidence(root.Get("price_confidence")),
		StockConfidence: clampConfidence(root.Get("in_stock_confidence")),
		SourceType:      "image",
	}
	if c := root.Get("currency"); c.Type == gjson.String && c.Str != "" {
		ext.Currency = c.Str
	}
	switch st := root.Get("source_type").Str; st {
	case "image", "text", "both":
		ext.SourceType = st
	}
	return ext, nil
}

func normalizePrice(v gjson.Result) *float64 {
	switch v.Type {
	case gjson.Number:
		f := v.Num
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return nil
		}
		return &f
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" || strings.EqualFold(s, "null") {
			return nil
		}
		var b strings.Builder
		for _, r := range s {
			if (r >= '0' && r <= '9') || r == '.' {
				b.WriteRune(r)
			}
		}
		f, err := strconv.ParseFloat(b.String(), 64)
		if err != nil || math.IsInf(f, 0) {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func normalizeStock(v gjson.Result) *bool {
	t := true
	f := false
	switch v.Type {
	case gjson.True:
		return &t
	case gjson.False:
		return &f
	case gjson.Number:
		switch v.Num {
		case 1:
			return &t
		case 0:
			return &f
		}
		return nil
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "yes", "in stock", "available", "1":
			return &t
		case "false", "no", "out of stock", "unavailable", "0":
			return &f
		}
		return nil
	default:
		return nil
	}
}

func clampConfidence(v gjson.Result) float64 {
	if !v.Exists() || v.Type == gjson.Null {
		return 0
	}
	f := v.Float()
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
