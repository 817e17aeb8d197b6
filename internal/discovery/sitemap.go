package discovery

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
)

type sitemapEntry struct {
	loc     string
	lastmod string
}

func (e *Engine) fromSitemap(ctx context.Context) ([]catalog.Post, error) {
	body, ok := e.fetcher.Fetch(ctx, e.cfg.BaseURL+"/sitemap.xml")
	if !ok {
		return nil, nil
	}
	entries := sitemapEntries(body)
	var posts []catalog.Post
	for _, entry := range entries {
		if !strings.Contains(entry.loc, "/p/") {
			continue
		}
		slug := catalog.SlugFromURL(entry.loc)
		posts = append(posts, catalog.Post{
			URL:   entry.loc,
			Title: catalog.TitleFromSlug(slug),
			Slug:  slug,
			Date:  catalog.ParseDate(entry.lastmod),
		})
	}
	return posts, nil
}

// sitemapEntries reads <url> entries from a sitemap. A browser may hand back
// its XML viewer page instead of the document, so HTML is scanned as well.
func sitemapEntries(body string) []sitemapEntry {
	if entries := xmlEntries(body); len(entries) > 0 {
		return entries
	}
	return htmlEntries(body)
}

func xmlEntries(body string) []sitemapEntry {
	doc, err := xmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}
	nodes, err := xmlquery.QueryAll(doc, "//*[local-name()='url']")
	if err != nil {
		return nil
	}
	entries := make([]sitemapEntry, 0, len(nodes))
	for _, n := range nodes {
		loc := xmlquery.FindOne(n, "./*[local-name()='loc']")
		if loc == nil {
			continue
		}
		entry := sitemapEntry{loc: strings.TrimSpace(loc.InnerText())}
		if lastmod := xmlquery.FindOne(n, "./*[local-name()='lastmod']"); lastmod != nil {
			entry.lastmod = strings.TrimSpace(lastmod.InnerText())
		}
		entries = append(entries, entry)
	}
	return entries
}

func htmlEntries(body string) []sitemapEntry {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	var entries []sitemapEntry
	doc.Find("url").Each(func(_ int, n *goquery.Selection) {
		loc := strings.TrimSpace(n.Find("loc").First().Text())
		if loc == "" {
			return
		}
		entries = append(entries, sitemapEntry{
			loc:     loc,
			lastmod: strings.TrimSpace(n.Find("lastmod").First().Text()),
		})
	})
	return entries
}
