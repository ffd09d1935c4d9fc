package comments

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FACorreiaa/go-comment-suggestions/internal/api/sanitize"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

const (
	// SuggestionDelimiter separates variations in a single completion.
	SuggestionDelimiter = "---"
	// MaxSuggestions is the number of variations requested and returned.
	MaxSuggestions = 3
)

// BuildPrompt asks for MaxSuggestions variations in one call so a single
// round-trip serves the whole response.
func BuildPrompt(post string, platform types.Platform, tone types.Tone, maxLength int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write social media comments. Write %d different comments replying to the %s post below.\n\n", MaxSuggestions, platform)
	fmt.Fprintf(&b, "Platform: %s\n", platform)
	fmt.Fprintf(&b, "Platform guidelines: %s\n", platform.Guideline())
	fmt.Fprintf(&b, "Tone: %s\n", tone)
	fmt.Fprintf(&b, "Tone guidelines: %s\n", tone.Instruction())
	fmt.Fprintf(&b, "Maximum length: %d characters per comment.\n\n", maxLength)
	b.WriteString("Rules:\n")
	b.WriteString("- Reply to the post as a real person would. Do not restate it.\n")
	b.WriteString("- Output plain text only. No HTML, no markdown, no numbering, no quotes around the comment.\n")
	fmt.Fprintf(&b, "- Separate the comments with a line containing only %s\n", SuggestionDelimiter)
	b.WriteString("- Do not add any introduction or explanation.\n\n")
	b.WriteString("Post:\n\"\"\"\n")
	b.WriteString(post)
	b.WriteString("\n\"\"\"\n")
	return b.String()
}

var leadingMarker = regexp.MustCompile(`(?i)^(?:(?:comment|option|variation)\s*[1-9]\s*[:.)-]\s*|[1-9][.)]\s+|[-*•]\s+)`)

// ParseSuggestions splits a raw completion into at most MaxSuggestions clean
// suggestions, each no longer than maxLength characters.
func ParseSuggestions(raw string, maxLength int) []string {
	segments := strings.Split(raw, SuggestionDelimiter)
	out := make([]string, 0, MaxSuggestions)
	for _, seg := range segments {
		text := sanitize.Text(seg)
		text = leadingMarker.ReplaceAllString(text, "")
		text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"“”`))
		if text == "" {
			continue
		}
		out = append(out, truncate(text, maxLength))
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

// truncate cuts s to at most max runes, preferring the last word boundary in
// the second half of the allowed length.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)[:max]
	cut := len(runes)
	for i := len(runes) - 1; i >= max/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':'
	})
}
