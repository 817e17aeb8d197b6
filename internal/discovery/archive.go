package discovery

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
	"github.com/JakeFAU/substack-archiver/internal/fetch"
)

var (
	archiveSelectors = []string{
		"article",
		".post-preview",
		`[class*="post"]`,
		`a[href*="/p/"]`,
	}
	paidClass = regexp.MustCompile(`paid|premium|locked|subscriber`)
)

func (e *Engine) fromArchive(ctx context.Context) ([]catalog.Post, error) {
	body, ok := e.fetcher.Fetch(ctx, e.cfg.BaseURL+"/archive")
	if !ok {
		return nil, nil
	}
	if scroller, ok := e.fetcher.(fetch.Scroller); ok {
		scrolled, err := scroller.ScrollToBottom(ctx)
		switch {
		case err == nil:
			body = scrolled
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			e.logger.Debug("Archive scroll unavailable", zap.Error(err))
		}
	}
	return e.parseArchive(body)
}

func (e *Engine) parseArchive(body string) ([]catalog.Post, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(e.cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	var posts []catalog.Post
	seen := make(map[string]struct{})
	for _, sel := range archiveSelectors {
		doc.Find(sel).Each(func(_ int, elem *goquery.Selection) {
			post, ok := archiveEntry(elem, base)
			if !ok {
				return
			}
			if _, dup := seen[post.URL]; dup {
				return
			}
			seen[post.URL] = struct{}{}
			posts = append(posts, post)
		})
	}
	return posts, nil
}

func archiveEntry(elem *goquery.Selection, base *url.URL) (catalog.Post, bool) {
	link := elem
	if goquery.NodeName(elem) != "a" || !strings.Contains(elem.AttrOr("href", ""), "/p/") {
		link = elem.Find(`a[href*="/p/"]`).First()
	}
	href := strings.TrimSpace(link.AttrOr("href", ""))
	if link.Length() == 0 || !strings.Contains(href, "/p/") {
		return catalog.Post{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return catalog.Post{}, false
	}
	postURL := base.ResolveReference(ref).String()

	title := strings.TrimSpace(elem.Find("h1, h2, h3, h4").First().Text())
	if title == "" {
		title = strings.TrimSpace(link.Text())
	}
	if title == "" {
		title = untitled
	}

	post := catalog.Post{
		URL:    postURL,
		Title:  title,
		Slug:   catalog.SlugFromURL(postURL),
		IsPaid: hasPaidMarker(elem),
	}
	if t := elem.Find("time").First(); t.Length() > 0 {
		raw, ok := t.Attr("datetime")
		if !ok || strings.TrimSpace(raw) == "" {
			raw = t.Text()
		}
		post.Date = catalog.ParseDate(raw)
	}
	return post, true
}

func hasPaidMarker(elem *goquery.Selection) bool {
	return elem.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return paidClass.MatchString(s.AttrOr("class", ""))
	}).Length() > 0
}
