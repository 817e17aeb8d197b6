// Package media downloads the images a post references into the shared
// images directory and rewrites the Markdown to point at the local copies.
package media

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
	"github.com/JakeFAU/substack-archiver/internal/extract"
	"github.com/JakeFAU/substack-archiver/internal/fetch"
	"github.com/JakeFAU/substack-archiver/internal/hash/md5"
	"github.com/JakeFAU/substack-archiver/internal/metrics"
	"github.com/JakeFAU/substack-archiver/internal/storage"
)

const (
	hashLength  = 12
	defaultExt  = ".jpg"
	imagePrefix = "../images/"
)

var (
	contentTypeExt = []struct {
		mime string
		ext  string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png", ".png"},
		{"image/gif", ".gif"},
		{"image/webp", ".webp"},
		{"image/svg+xml", ".svg"},
	}
	pathExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}
)

// Downloader fetches a binary resource.
type Downloader interface {
	Download(ctx context.Context, url string) (fetch.Blob, error)
}

// Config controls where images go and how fast they are fetched.
type Config struct {
	// BaseURL resolves root-relative image sources.
	BaseURL string
	// Dir is the store path of the images directory.
	Dir string
	// RatePerSecond paces downloads; zero or less disables pacing.
	RatePerSecond float64
}

// Resolver downloads images once per URL for the lifetime of the instance.
// It is not safe for concurrent use.
type Resolver struct {
	cfg        Config
	downloader Downloader
	store      storage.BlobStore
	limiter    *rate.Limiter
	hasher     *md5.Hasher
	metrics    *metrics.Recorder
	logger     *zap.Logger

	cache map[string]string
}

// New builds a Resolver.
func New(cfg Config, downloader Downloader, store storage.BlobStore, rec *metrics.Recorder, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Resolver{
		cfg:        cfg,
		downloader: downloader,
		store:      store,
		limiter:    limiter,
		hasher:     md5.New(),
		metrics:    rec,
		logger:     logger,
		cache:      make(map[string]string),
	}
}

// Resolve downloads every image referenced by c.HTML that is not cached yet
// and records the successful ones in c.Images. Failures drop the image.
func (r *Resolver) Resolve(ctx context.Context, c *catalog.Content) []catalog.ImageRef {
	var resolved []catalog.ImageRef
	for _, ref := range extract.ImageSources(c.HTML, r.cfg.BaseURL) {
		if local, ok := r.cache[ref.URL]; ok {
			r.metrics.ObserveImage(metrics.ImageCached)
			ref.LocalName = local
			resolved = append(resolved, ref)
			continue
		}
		local, err := r.download(ctx, ref.URL)
		if err != nil {
			r.metrics.ObserveImage(metrics.ImageFailed)
			r.logger.Warn("Failed to download image", zap.String("image", ref.URL), zap.Error(err))
			continue
		}
		r.metrics.ObserveImage(metrics.ImageDownloaded)
		r.cache[ref.URL] = local
		ref.LocalName = local
		resolved = append(resolved, ref)
	}
	c.Images = resolved
	return resolved
}

func (r *Resolver) download(ctx context.Context, src string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for image slot: %w", err)
	}
	blob, err := r.downloader.Download(ctx, src)
	if err != nil {
		return "", err
	}
	name := r.Filename(src, blob.ContentType)
	if _, err := r.store.PutObject(ctx, path.Join(r.cfg.Dir, name), blob.ContentType, bytes.NewReader(blob.Body)); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return name, nil
}

// Filename names a downloaded image: img_<first 12 hex of md5(url)><ext>.
func (r *Resolver) Filename(src, contentType string) string {
	return "img_" + r.hasher.Short(src, hashLength) + Extension(src, contentType)
}

// Extension picks a file extension from the Content-Type, then the URL path,
// defaulting to .jpg.
func Extension(src, contentType string) string {
	for _, m := range contentTypeExt {
		if strings.Contains(contentType, m.mime) {
			return m.ext
		}
	}
	p := strings.ToLower(src)
	if u, err := url.Parse(src); err == nil {
		p = strings.ToLower(u.Path)
	}
	for _, ext := range pathExts {
		if strings.HasSuffix(p, ext) {
			return ext
		}
	}
	return defaultExt
}

// RewriteLinks points every resolved image URL in c.Markdown at its local
// copy and returns the updated Markdown.
func RewriteLinks(c *catalog.Content) string {
	text := c.Markdown
	for _, img := range c.Images {
		if img.LocalName == "" {
			continue
		}
		text = strings.ReplaceAll(text, img.URL, imagePrefix+img.LocalName)
	}
	c.Markdown = text
	return text
}
