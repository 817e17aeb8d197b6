// Package extract locates the article body inside a rendered post page,
// strips non-article chrome, and refines the post's metadata from the page.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
	"github.com/JakeFAU/substack-archiver/internal/fetch"
)

// ErrContentNotFound is returned when no content selector matches.
var ErrContentNotFound = errors.New("content region not found")

var (
	contentSelectors = []string{
		".body.markup",
		".post-content",
		"article .body",
		".available-content",
		`[class*="post-content"]`,
		"article",
	}
	cleanupSelectors = []string{
		"script",
		"style",
		"noscript",
		".subscription-widget",
		".subscribe-widget",
		".paywall",
		".share-buttons",
		".comments",
		`[class*="share"]`,
		`[class*="social"]`,
		`[class*="footer"]`,
		".post-footer",
		".publication-footer",
	}

	titleSelector    = `h1.post-title, h1[class*="title"], article h1`
	subtitleSelector = `.subtitle, h2.post-subtitle, [class*="subtitle"]`
	authorSelector   = `.author-name, [class*="author"]`
	dateSelector     = `time[datetime], .post-date`
)

// Extractor turns detail pages into Content.
type Extractor struct {
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

// New builds an Extractor. fetcher may be nil when only Extract is used.
func New(fetcher fetch.Fetcher, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: fetcher, logger: logger}
}

// Fetch loads post's detail page through the fetch port and extracts it.
func (e *Extractor) Fetch(ctx context.Context, post *catalog.Post) (*catalog.Content, error) {
	if e.fetcher == nil {
		return nil, fmt.Errorf("extractor has no fetcher: %w", fetch.ErrNoContent)
	}
	body, ok := e.fetcher.Fetch(ctx, post.URL)
	if !ok {
		return nil, fmt.Errorf("load %s: %w", post.URL, fetch.ErrNoContent)
	}
	return e.Extract(post, body)
}

// Extract selects the content region of body, refines post in place and
// returns the cleaned region as HTML.
func (e *Extractor) Extract(post *catalog.Post, body string) (*catalog.Content, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	region := selectContent(doc)
	if region == nil {
		return nil, fmt.Errorf("%s: %w", post.URL, ErrContentNotFound)
	}

	refine(post, doc)

	clean(region)
	html, err := goquery.OuterHtml(region)
	if err != nil {
		return nil, fmt.Errorf("render content: %w", err)
	}
	e.logger.Debug("Extracted content", zap.String("url", post.URL), zap.Int("bytes", len(html)))
	return &catalog.Content{Post: post, HTML: html}, nil
}

func selectContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		if match := doc.Find(sel).First(); match.Length() > 0 {
			return match
		}
	}
	return nil
}

func clean(region *goquery.Selection) {
	for _, sel := range cleanupSelectors {
		region.Find(sel).Remove()
	}
}

// refine never replaces a populated field with an empty one.
func refine(post *catalog.Post, doc *goquery.Document) {
	if text := firstText(doc, titleSelector); text != "" {
		post.Title = text
	}
	if text := firstText(doc, subtitleSelector); text != "" {
		post.Subtitle = text
	}
	if text := firstText(doc, authorSelector); text != "" {
		post.Author = text
	}
	if post.HasDate() {
		return
	}
	node := doc.Find(dateSelector).First()
	if node.Length() == 0 {
		return
	}
	raw, ok := node.Attr("datetime")
	if !ok || strings.TrimSpace(raw) == "" {
		raw = node.Text()
	}
	if d := catalog.ParseDate(raw); d != nil {
		post.Date = d
	}
}

func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}
