// Package catalog defines the post model shared by discovery, extraction,
// conversion, and the batch driver, together with the merge rules that turn
// raw discovery output into an ordered, filtered catalog.
package catalog

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const wordsPerMinute = 200

var slugPattern = regexp.MustCompile(`/p/([^/?#]+)`)

// Post is one article of a publication. URL is the identity key.
type Post struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Slug      string     `json:"slug"`
	Date      *time.Time `json:"date,omitempty"`
	Subtitle  string     `json:"subtitle,omitempty"`
	Author    string     `json:"author,omitempty"`
	Excerpt   string     `json:"excerpt,omitempty"`
	IsPaid    bool       `json:"is_paid"`
	IsPodcast bool       `json:"is_podcast"`
	WordCount int        `json:"word_count"`
	ReadTime  int        `json:"read_time"`
}

// HasDate reports whether the post carries a publication date.
func (p Post) HasDate() bool {
	return p.Date != nil && !p.Date.IsZero()
}

// EstimateReadTime fills ReadTime from WordCount when the count is known.
func (p *Post) EstimateReadTime() {
	if p.WordCount <= 0 {
		return
	}
	minutes := int(math.Round(float64(p.WordCount) / wordsPerMinute))
	if minutes < 1 {
		minutes = 1
	}
	p.ReadTime = minutes
}

// Content is the transient per-entry payload carried through extraction,
// conversion and media resolution.
type Content struct {
	Post     *Post
	HTML     string
	Markdown string
	Images   []ImageRef
}

// ImageRef is one image referenced by a post body.
type ImageRef struct {
	URL       string `json:"url"`
	LocalName string `json:"local_path,omitempty"`
	Alt       string `json:"alt,omitempty"`
}

// SlugFromURL returns the path segment following /p/, or "" when absent.
func SlugFromURL(raw string) string {
	m := slugPattern.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// PostURL builds the canonical detail-page URL for slug under base.
func PostURL(base, slug string) string {
	return strings.TrimRight(base, "/") + "/p/" + slug
}

// TitleFromSlug produces a placeholder title ("my-first-post" -> "My First Post")
// used until the detail page supplies the real one.
func TitleFromSlug(slug string) string {
	words := strings.ReplaceAll(slug, "-", " ")
	var b strings.Builder
	prevLetter := false
	for _, r := range words {
		switch {
		case unicode.IsLetter(r) && prevLetter:
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

// PlaceholderFromURL builds a partially populated Post for a detail-page URL,
// as used by single-post downloads.
func PlaceholderFromURL(raw string) Post {
	slug := SlugFromURL(raw)
	if slug == "" {
		slug = "unknown"
	}
	return Post{
		URL:   raw,
		Title: TitleFromSlug(slug),
		Slug:  slug,
	}
}
