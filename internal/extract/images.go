package extract

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
)

const minPixelSize = 10

// NormalizeImageURL resolves protocol- and root-relative image sources
// against base. Data URIs and empty sources yield "".
func NormalizeImageURL(src, base string) string {
	src = strings.TrimSpace(src)
	switch {
	case src == "", strings.HasPrefix(src, "data:"):
		return ""
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	case strings.HasPrefix(src, "/"):
		b, err := url.Parse(base)
		if err != nil || b.Host == "" {
			return strings.TrimRight(base, "/") + src
		}
		ref, err := url.Parse(src)
		if err != nil {
			return ""
		}
		return b.ResolveReference(ref).String()
	default:
		return src
	}
}

// ImageSources lists every image referenced by html in document order.
func ImageSources(html, base string) []catalog.ImageRef {
	return collectImages(html, base, false)
}

// ImageCandidates is ImageSources without tracking pixels: images declaring
// both a width and a height where either is under 10.
func ImageCandidates(html, base string) []catalog.ImageRef {
	return collectImages(html, base, true)
}

func collectImages(html, base string, skipPixels bool) []catalog.ImageRef {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var refs []catalog.ImageRef
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		resolved := NormalizeImageURL(src, base)
		if resolved == "" || (skipPixels && isTrackingPixel(img)) {
			return
		}
		refs = append(refs, catalog.ImageRef{URL: resolved, Alt: img.AttrOr("alt", "")})
	})
	return refs
}

func isTrackingPixel(img *goquery.Selection) bool {
	w, wok := img.Attr("width")
	h, hok := img.Attr("height")
	if !wok || !hok {
		return false
	}
	width, err1 := strconv.Atoi(strings.TrimSpace(w))
	height, err2 := strconv.Atoi(strings.TrimSpace(h))
	if err1 != nil || err2 != nil {
		return false
	}
	return width < minPixelSize || height < minPixelSize
}
