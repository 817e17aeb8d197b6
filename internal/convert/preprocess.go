package convert

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/substack-archiver/internal/extract"
)

var (
	embedClass  = regexp.MustCompile(`embed|iframe`)
	buttonClass = regexp.MustCompile(`button-wrapper|subscribe-btn`)
)

// preprocess rewrites Substack-specific markup into shapes the Markdown
// converter renders well. Steps run in a fixed order.
func preprocess(doc *goquery.Document, base string) {
	normalizeImages(doc, base)
	unwrapButtonLinks(doc)
	replaceEmbeds(doc)
	doc.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return buttonClass.MatchString(s.AttrOr("class", ""))
	}).Remove()
	flattenFigures(doc)
	markCodeLanguages(doc)
	flattenBlockquotes(doc)
	dropEmptyParagraphs(doc)
}

// normalizeImages makes every img carry an absolute src so image references
// in the output match the URLs the media resolver downloads.
func normalizeImages(doc *goquery.Document, base string) {
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		if strings.HasPrefix(strings.TrimSpace(src), "data:") {
			return
		}
		if resolved := extract.NormalizeImageURL(src, base); resolved != "" {
			img.SetAttr("src", resolved)
		}
	})
}

func unwrapButtonLinks(doc *goquery.Document) {
	doc.Find("button").Each(func(_ int, b *goquery.Selection) {
		if link := b.Find("a").First(); link.Length() > 0 {
			b.ReplaceWithSelection(link)
		}
	})
}

func replaceEmbeds(doc *goquery.Document) {
	doc.Find("[class], iframe").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "iframe" && !embedClass.MatchString(s.AttrOr("class", "")) {
			return
		}
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			return
		}
		s.ReplaceWithHtml("<p>[Embedded content: " + html.EscapeString(src) + "]</p>")
	})
}

func flattenFigures(doc *goquery.Document) {
	doc.Find("figure").Each(func(_ int, fig *goquery.Selection) {
		if fig.Find("img").Length() == 0 {
			return
		}
		if caption := fig.Find("figcaption").First(); caption.Length() > 0 {
			text := strings.TrimSpace(caption.Text())
			caption.Remove()
			fig.AppendHtml("<br><em>" + html.EscapeString(text) + "</em>")
		}
		fig.ReplaceWithSelection(fig.Contents())
	})
}

func markCodeLanguages(doc *goquery.Document) {
	doc.Find("pre").Each(func(_ int, pre *goquery.Selection) {
		code := pre.Find("code").First()
		if code.Length() == 0 {
			return
		}
		lang := ""
		for _, cls := range strings.Fields(code.AttrOr("class", "")) {
			if strings.HasPrefix(cls, "language-") {
				lang = strings.TrimPrefix(cls, "language-")
				break
			}
		}
		pre.SetAttr("data-language", lang)
	})
}

func flattenBlockquotes(doc *goquery.Document) {
	for {
		nested := doc.Find("blockquote blockquote")
		if nested.Length() == 0 {
			return
		}
		nested.Each(func(_ int, bq *goquery.Selection) {
			bq.ReplaceWithSelection(bq.Contents())
		})
	}
}

func dropEmptyParagraphs(doc *goquery.Document) {
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if strings.TrimSpace(p.Text()) == "" && p.Find("img").Length() == 0 {
			p.Remove()
		}
	})
}
