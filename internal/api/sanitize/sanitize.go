// Package sanitize strips markup from user supplied and model generated text.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const maxPasses = 5

var (
	strict = bluemonday.StrictPolicy()

	jsSchemePattern = regexp.MustCompile(`(?i)\b(?:java|vb)script\s*:`)
)

// Text returns s as plain text: tags are removed (script and style bodies
// included), entities decoded, and javascript: schemes neutralized.
// Entity-encoded markup is decoded and stripped again until the output is
// stable.
func Text(s string) string {
	out := s
	for i := 0; i < maxPasses; i++ {
		next := html.UnescapeString(strict.Sanitize(out))
		next = jsSchemePattern.ReplaceAllString(next, "")
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}
