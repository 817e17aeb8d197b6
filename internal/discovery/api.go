package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
)

// apiPost mirrors one item of the /api/v1/archive listing.
type apiPost struct {
	Slug        string          `json:"slug"`
	Title       *string         `json:"title"`
	Subtitle    string          `json:"subtitle"`
	PostDate    string          `json:"post_date"`
	PublishedAt string          `json:"published_at"`
	Author      json.RawMessage `json:"author"`
	Audience    string          `json:"audience"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Wordcount   float64         `json:"wordcount"`
}

func (e *Engine) fromAPI(ctx context.Context) ([]catalog.Post, error) {
	var posts []catalog.Post
	for offset := 0; ; offset += e.cfg.PageSize {
		if ctx.Err() != nil {
			return posts, ctx.Err()
		}
		pageURL := fmt.Sprintf("%s/api/v1/archive?sort=new&offset=%d&limit=%d", e.cfg.BaseURL, offset, e.cfg.PageSize)
		body, ok := e.fetcher.Fetch(ctx, pageURL)
		if !ok {
			return posts, nil
		}
		items, err := decodeListing(body)
		if err != nil {
			return posts, fmt.Errorf("parse listing at offset %d: %w", offset, err)
		}
		if len(items) == 0 {
			return posts, nil
		}
		for _, item := range items {
			posts = append(posts, e.postFromAPI(item))
		}
		e.logger.Debug("Listing page", zap.Int("offset", offset), zap.Int("items", len(items)))
		if len(items) < e.cfg.PageSize {
			return posts, nil
		}
		e.pauser.Pause(ctx, e.cfg.PagePause)
	}
}

// decodeListing accepts the raw JSON body or a browser rendering that wraps
// it in a <pre> element.
func decodeListing(body string) ([]apiPost, error) {
	var items []apiPost
	trimmed := strings.TrimSpace(body)
	if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
		return items, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse wrapper: %w", err)
	}
	pre := doc.Find("pre").First()
	if pre.Length() == 0 {
		return nil, fmt.Errorf("no JSON payload in response")
	}
	if err := json.Unmarshal([]byte(pre.Text()), &items); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return items, nil
}

func (e *Engine) postFromAPI(item apiPost) catalog.Post {
	title := untitled
	if item.Title != nil {
		title = *item.Title
	}
	dateRaw := item.PostDate
	if dateRaw == "" {
		dateRaw = item.PublishedAt
	}
	post := catalog.Post{
		URL:       catalog.PostURL(e.cfg.BaseURL, item.Slug),
		Title:     title,
		Slug:      item.Slug,
		Date:      catalog.ParseDate(dateRaw),
		Subtitle:  item.Subtitle,
		Author:    authorName(item.Author),
		Excerpt:   item.Description,
		IsPaid:    item.Audience == "only_paid",
		IsPodcast: item.Type == "podcast",
		WordCount: int(item.Wordcount),
	}
	post.EstimateReadTime()
	return post
}

// authorName reads author.name only when author is a JSON object.
func authorName(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var a struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return ""
	}
	return a.Name
}
