// Package sanitize cleans user-supplied post content.
package sanitize

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var (
	ugc    = newUGCPolicy()
	strict = newStrictPolicy()
)

func newStrictPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}

func newUGCPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span")
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// HTML strips scripts, event handlers and unsafe URLs from post bodies.
func HTML(s string) string {
	return strings.TrimSpace(ugc.Sanitize(s))
}

// Text removes every tag and returns plain text with collapsed whitespace.
func Text(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(strict.Sanitize(s))), " ")
}

// Title normalises a post title to NFC on a single line.
func Title(s string) string {
	return norm.NFC.String(Text(s))
}

// Truncate shortens s to at most max runes, ending with an ellipsis when cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	cut := strings.TrimRight(string(r[:max-1]), " ")
	return cut + "…"
}

// Excerpt derives a plain-text summary from an HTML body.
func Excerpt(body string, max int) string {
	return Truncate(Text(body), max)
}
