// Package richtext cleans note HTML before it is stored and derives the
// plain text used for search and snippets.
package richtext

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var widthValue = regexp.MustCompile(`^\d+(\.\d+)?(px|%|em|rem)$`)

var (
	contentPolicy = newContentPolicy()
	textPolicy    = newTextPolicy()
)

func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowDataURIImages()
	p.AllowRelativeURLs(true)
	p.AllowDataAttributes()
	p.AllowAttrs("class").Globally()
	p.AllowAttrs("contenteditable").OnElements("div", "span", "figure")
	p.AllowStyles("width").Matching(widthValue).OnElements("div", "figure", "img")
	return p
}

func newTextPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}

// Sanitize returns content safe to store and render. Inline font sizes
// are dropped so the note's own font size applies.
func Sanitize(content string) string {
	return contentPolicy.Sanitize(content)
}

// PlainText strips every tag and collapses whitespace.
func PlainText(content string) string {
	stripped := html.UnescapeString(textPolicy.Sanitize(content))
	return strings.Join(strings.Fields(stripped), " ")
}

// Snippet returns at most n runes of the plain text.
func Snippet(content string, n int) string {
	text := []rune(PlainText(content))
	if n <= 0 || len(text) <= n {
		return string(text)
	}
	return strings.TrimSpace(string(text[:n])) + "…"
}
