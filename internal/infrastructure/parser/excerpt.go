package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultExcerptLimit caps stored snippets.
const DefaultExcerptLimit = 500

// truncationMarker matches NewsAPI's "[+1234 chars]" suffix on content.
var truncationMarker = regexp.MustCompile(`\s*\[\+\d+ chars\]\s*$`)

// CleanExcerpt prefers the description and falls back to content, strips any
// HTML, collapses whitespace and caps the result at limit runes.
func CleanExcerpt(description, content string, limit int) string {
	if limit <= 0 {
		limit = DefaultExcerptLimit
	}

	text := plainText(description)
	if text == "" {
		text = plainText(truncationMarker.ReplaceAllString(content, ""))
	}

	runes := []rune(text)
	if len(runes) > limit {
		text = strings.TrimSpace(string(runes[:limit]))
	}
	return text
}

func plainText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	text := raw
	if strings.ContainsAny(raw, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}
