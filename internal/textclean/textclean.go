// Package textclean prepares extracted page text for the vision model:
// strips markup and noise, then narrows the text to snippets around price
// and stock indicators.
package textclean

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	minSnippetLength = 10
	mergeDistance    = 50
	contextWindow    = 100
)

var (
	stripPolicy  = bluemonday.StrictPolicy()
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	nonPrintable = regexp.MustCompile(`[^\x20-\x7E\n\t]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Clean removes code blocks, residual markup and non-printable characters,
// and collapses whitespace.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s = codeBlockRe.ReplaceAllString(s, "")
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = nonPrintable.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\$\d+\.?\d*`),
	regexp.MustCompile(`(?i)\d+\.\d{2}\s*(usd|eur|gbp|cad)`),
	regexp.MustCompile(`(?i)price:`),
	regexp.MustCompile(`(?i)cost:`),
	regexp.MustCompile(`(?i)sale:`),
	regexp.MustCompile(`(?i)msrp:`),
	regexp.MustCompile(`(?i)save:`),
	regexp.MustCompile(`(?i)discount:`),
	regexp.MustCompile(`\$`),
}

var stockKeywords = []string{
	"add to cart", "buy now", "purchase", "order now",
	"in stock", "out of stock", "available", "unavailable",
	"sold out", "notify me", "back in stock", "pre-order",
	"ships", "delivery", "get it by",
}

type span struct{ start, end int }

// FilterRelevant narrows cleaned text to windows around price and stock
// indicators, merging nearby windows, and caps the result at maxLen. When
// nothing matches, the head of the text is returned instead.
func FilterRelevant(text string, maxLen int) string {
	if text == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = 2000
	}

	var spans []span
	for _, re := range pricePatterns {
		for _, m := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, window(m[0], m[1], len(text)))
		}
	}
	lower := strings.ToLower(text)
	for _, kw := range stockKeywords {
		for pos := 0; ; {
			i := strings.Index(lower[pos:], kw)
			if i < 0 {
				break
			}
			at := pos + i
			spans = append(spans, window(at, at+len(kw), len(text)))
			pos = at + 1
		}
	}

	if len(spans) == 0 {
		return truncate(text, maxLen)
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end+mergeDistance {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	var parts []string
	for _, sp := range merged {
		snippet := strings.TrimSpace(text[sp.start:sp.end])
		if len(snippet) > minSnippetLength {
			parts = append(parts, snippet)
		}
	}
	if len(parts) == 0 {
		return truncate(text, maxLen)
	}
	return truncate(strings.Join(parts, " ... "), maxLen)
}

func window(start, end, max int) span {
	s := start - contextWindow
	if s < 0 {
		s = 0
	}
	e := end + contextWindow
	if e > max {
		e = max
	}
	return span{start: s, end: e}
}

// truncate caps s at maxLen bytes, backing up to a rune boundary so a
// multi-byte character is never split.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "...(truncated)"
}
