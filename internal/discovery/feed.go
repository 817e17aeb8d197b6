package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
)

const xmlViewerSource = "#webkit-xml-viewer-source-xml"

func (e *Engine) fromFeed(ctx context.Context) ([]catalog.Post, error) {
	body, ok := e.fetcher.Fetch(ctx, e.cfg.BaseURL+"/feed")
	if !ok {
		return nil, nil
	}
	feed, err := parseFeed(body)
	if err != nil {
		return nil, err
	}
	var posts []catalog.Post
	for _, item := range feed.Items {
		if item == nil || !strings.Contains(item.Link, "/p/") {
			continue
		}
		slug := catalog.SlugFromURL(item.Link)
		post := catalog.Post{
			URL:     item.Link,
			Title:   strings.TrimSpace(item.Title),
			Slug:    slug,
			Excerpt: strings.TrimSpace(item.Description),
		}
		if post.Title == "" {
			post.Title = catalog.TitleFromSlug(slug)
		}
		if item.PublishedParsed != nil {
			d := item.PublishedParsed.UTC()
			post.Date = &d
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil {
			post.Author = item.Authors[0].Name
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// parseFeed accepts a raw RSS document or a browser's XML viewer page.
func parseFeed(body string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	feed, err := fp.ParseString(body)
	if err == nil {
		return feed, nil
	}
	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(body))
	if docErr != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	inner, htmlErr := doc.Find(xmlViewerSource).Html()
	if htmlErr != nil || strings.TrimSpace(inner) == "" {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	feed, err = fp.ParseString(inner)
	if err != nil {
		return nil, fmt.Errorf("parse embedded feed: %w", err)
	}
	return feed, nil
}
