package catalog

import (
	"regexp"
	"strings"
)

const maxSlugLength = 50

var (
	unsafeChars = regexp.MustCompile(`[^\w\s-]`)
	separators  = regexp.MustCompile(`[\s_]+`)
)

// SanitizeSlug strips text into a filesystem-safe slug of at most 50 bytes.
func SanitizeSlug(text string) string {
	s := unsafeChars.ReplaceAllString(text, "")
	s = separators.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
	}
	return s
}

// Filename returns the document name for post: <YYYY-MM-DD|undated>-<slug>.md.
func Filename(post Post) string {
	prefix := "undated"
	if post.HasDate() {
		prefix = post.Date.Format(DateLayout)
	}
	source := post.Slug
	if source == "" {
		source = strings.ToLower(post.Title)
	}
	slug := SanitizeSlug(source)
	if slug == "" {
		slug = "untitled"
	}
	return prefix + "-" + slug + ".md"
}
