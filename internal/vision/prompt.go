package vision

import (
	"fmt"
	"unicode/utf8"
)

const schemaBlock = `{
  "price": <number or null>,
  "currency": "<ISO currency code, default USD>",
  "in_stock": <true, false, or null>,
  "price_confidence": <number from 0.0 to 1.0>,
  "in_stock_confidence": <number from 0.0 to 1.0>,
  "source_type": "<image, text, or both>"
}`

const extractionPromptHead = `You are a price extraction assistant. Extract the product price and stock status from the provided image and optional text context.

**Extraction Rules:**
1. **Price**:
   - Choose the main current price (usually the largest, most prominent price)
   - Ignore crossed-out/struck-through prices (those are old prices)
   - If multiple prices (e.g., sale price and regular price), choose the current/sale price
   - If no clear price is visible, set price to null and price_confidence below 0.5
   - Extract only the numeric value (no currency symbols)

2. **Stock Status**:
   - Set in_stock to true if: "Add to Cart", "Buy Now", "Available", "In Stock" buttons/text are visible
   - Set in_stock to false if: "Out of Stock", "Unavailable", "Sold Out", "Notify Me" are shown
   - Set in_stock to null if stock status is unclear or not shown
   - If unclear, set in_stock_confidence below 0.5

3. **Confidence Scores:**
   - price_confidence: Your subjective probability (0.0 to 1.0) that the extracted price is correct
   - in_stock_confidence: Your subjective probability (0.0 to 1.0) that the stock status is correct
   - Be honest: if the image is blurry, text is unclear, or multiple prices are confusing, use lower confidence
   - Confidence of 0.9-1.0 means you're very certain
   - Confidence of 0.5-0.8 means you're moderately certain
   - Confidence below 0.5 means you're unsure

**Output Format:**
Respond ONLY with valid JSON matching this exact schema. No markdown, no prose, no explanation.

` + schemaBlock + `

`

const (
	promptContextLimit = 2000
	repairInputLimit   = 1000
)

// extractionPrompt builds the v2.0 prompt, appending the item's custom
// instructions and bounded page text context when available.
func extractionPrompt(pageText, customPrompt string) string {
	prompt := extractionPromptHead
	if customPrompt != "" {
		prompt += "**Additional instructions for this item:**\n" + customPrompt + "\n\n"
	}
	if pageText == "" {
		return prompt
	}
	if len(pageText) > promptContextLimit {
		pageText = cutAtRune(pageText, promptContextLimit) + "...(truncated)"
	}
	return prompt + "**Context from webpage text:**\n" + pageText
}

// repairPrompt asks the model to convert a malformed reply into schema JSON.
func repairPrompt(raw string) string {
	raw = cutAtRune(raw, repairInputLimit)
	return fmt.Sprintf(`Convert the following text into valid JSON matching this schema:

%s

Rules:
- Extract numeric price value only (no symbols)
- Boolean values must be true, false, or null (not strings)
- Confidence values must be numbers between 0.0 and 1.0
- Respond with ONLY the JSON object, no other text

Text to convert:
%s`, schemaBlock, raw)
}

// cutAtRune caps s at limit bytes without splitting a UTF-8 sequence.
func cutAtRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
