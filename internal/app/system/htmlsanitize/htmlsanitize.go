// internal/app/system/htmlsanitize/htmlsanitize.go
package htmlsanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// rich allows the formatting a project description may carry.
	rich = func() *bluemonday.Policy {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class").OnElements("table", "thead", "tbody", "tr", "th", "td")
		p.AllowElements("u", "s", "mark")
		return p
	}()

	strict = bluemonday.StrictPolicy()

	tagPattern = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)
)

// Sanitize strips scripts, event handlers and unsafe URLs, keeping basic
// formatting, lists, links and tables.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(rich.Sanitize(s))
}

// maxTextPasses bounds how many layers of entity encoding Text unwraps.
const maxTextPasses = 4

// Text removes every tag and returns the remaining text unescaped, for
// single-line fields such as titles and locations. Unescaping can expose
// markup that was entity-encoded in the input, so tags are stripped again
// until the text stops changing.
func Text(s string) string {
	if s == "" {
		return ""
	}
	out := s
	for i := 0; i < maxTextPasses; i++ {
		next := html.UnescapeString(strict.Sanitize(out))
		if next == out {
			break
		}
		out = next
	}
	if !IsPlainText(out) {
		// The last pass exposed markup: strip it and leave the rest escaped.
		out = strict.Sanitize(out)
	}
	return strings.TrimSpace(out)
}

// IsPlainText reports whether s contains no HTML tags.
// A bare "<" or ">" (as in "5 < 10") is not a tag.
func IsPlainText(s string) bool {
	return !tagPattern.MatchString(s)
}
