// Package normalize cleans names, slugs, and descriptions before they reach the repository.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	// Opening tags of the markup primaries usually carry.
	htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote|figure|img)[\s>/]`)
)

// Slugify converts a string to a URL-safe slug.
// "Science Fiction" -> "science-fiction".
// "Café Society" -> "cafe-society".
// "Rock (ID: 42)" -> "rock-id-42".
func Slugify(s string) string {
	s = norm.NFKD.String(s)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Name strips markup and collapses whitespace in a display name.
func Name(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Description converts an HTML body to Markdown for use as a category
// description. Plain text passes through unchanged, as does anything the
// converter rejects.
func Description(body string) string {
	body = strings.TrimSpace(body)
	if body == "" || !htmlTagPattern.MatchString(strings.ToLower(body)) {
		return body
	}
	markdown, err := htmltomarkdown.ConvertString(body)
	if err != nil {
		return body
	}
	return strings.TrimSpace(markdown)
}
