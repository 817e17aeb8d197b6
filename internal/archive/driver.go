// Package archive drives the per-post pipeline over a discovered catalog:
// fetch and extract, convert, resolve images, persist, and finally record the
// run in metadata.json.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
	"github.com/JakeFAU/substack-archiver/internal/clock/system"
	"github.com/JakeFAU/substack-archiver/internal/id/uuid"
	"github.com/JakeFAU/substack-archiver/internal/media"
	"github.com/JakeFAU/substack-archiver/internal/metrics"
	"github.com/JakeFAU/substack-archiver/internal/storage"
)

// MetadataFile is the snapshot name written under the publication directory.
const MetadataFile = "metadata.json"

const (
	markdownType = "text/markdown; charset=utf-8"
	htmlType     = "text/html; charset=utf-8"
	jsonType     = "application/json"
)

// ErrPanic marks an entry whose processing panicked.
var ErrPanic = errors.New("post processing panicked")

// Extractor fetches a post page and returns its cleaned content.
type Extractor interface {
	Fetch(ctx context.Context, post *catalog.Post) (*catalog.Content, error)
}

// Converter renders content as a Markdown document.
type Converter interface {
	Convert(content *catalog.Content) (string, error)
}

// ImageResolver downloads the images a post references.
type ImageResolver interface {
	Resolve(ctx context.Context, content *catalog.Content) []catalog.ImageRef
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Config describes where and what a run writes. Dir is the publication
// directory relative to the store root.
type Config struct {
	Publication    string
	URL            string
	Dir            string
	DownloadImages bool
	SaveHTML       bool
}

// PostsDir is the store path holding Markdown documents.
func (c Config) PostsDir() string {
	return path.Join(c.Dir, "posts")
}

// MetadataPath is the store path of the run snapshot.
func (c Config) MetadataPath() string {
	return path.Join(c.Dir, MetadataFile)
}

// Options tune a single run.
type Options struct {
	Resume bool
	Limit  int
}

// Result counts the outcome of a run.
type Result struct {
	RunID       string
	Succeeded   int
	Failed      int
	Skipped     int
	Interrupted bool
}

// Processed is the number of entries that reached a verdict.
func (r Result) Processed() int {
	return r.Succeeded + r.Failed + r.Skipped
}

// Driver runs the pipeline sequentially over a catalog.
type Driver struct {
	cfg       Config
	extractor Extractor
	converter Converter
	images    ImageResolver
	store     storage.Store
	clock     Clock
	ids       IDGenerator
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// Option customizes a Driver.
type Option func(*Driver)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(d *Driver) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithIDGenerator overrides the run ID source.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Driver) {
		if g != nil {
			d.ids = g
		}
	}
}

// WithMetrics records per-post outcomes and run duration.
func WithMetrics(m *metrics.Recorder) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// New constructs a Driver. images may be nil when downloads are disabled.
func New(
	cfg Config,
	extractor Extractor,
	converter Converter,
	images ImageResolver,
	store storage.Store,
	logger *zap.Logger,
	opts ...Option,
) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		cfg:       cfg,
		extractor: extractor,
		converter: converter,
		images:    images,
		store:     store,
		clock:     system.New(),
		ids:       uuid.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes posts in order and always writes the snapshot of the full
// catalog afterwards, even when ctx is cancelled mid-run. The returned error
// only reports a failed snapshot write.
func (d *Driver) Run(ctx context.Context, posts []catalog.Post, opts Options) (Result, error) {
	start := d.clock.Now()
	var res Result

	var existing map[string]struct{}
	if opts.Resume {
		existing = d.downloaded(ctx)
		if len(existing) > 0 {
			d.logger.Info("Found already downloaded posts", zap.Int("count", len(existing)))
		}
	}

	batch := posts
	if opts.Limit > 0 && opts.Limit < len(batch) {
		batch = batch[:opts.Limit]
	}
	d.logger.Info("Downloading posts", zap.Int("count", len(batch)))

	for i := range batch {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		post := &batch[i]
		if _, ok := existing[ResumeKey(*post)]; ok {
			res.Skipped++
			d.metrics.ObservePost(metrics.ResultSkipped)
			d.logger.Debug("Skipping downloaded post", zap.String("slug", post.Slug))
			continue
		}

		uri, err := d.process(ctx, post)
		if err != nil {
			if ctx.Err() != nil {
				res.Interrupted = true
				break
			}
			res.Failed++
			d.metrics.ObservePost(metrics.ResultFailed)
			d.logger.Error("Error processing post",
				zap.String("title", post.Title),
				zap.String("url", post.URL),
				zap.Error(err),
			)
			continue
		}
		res.Succeeded++
		d.metrics.ObservePost(metrics.ResultSucceeded)
		d.logger.Info("Saved post",
			zap.Int("n", i+1),
			zap.Int("total", len(batch)),
			zap.String("title", post.Title),
			zap.String("uri", uri),
		)
	}
	if res.Interrupted {
		d.logger.Warn("Download interrupted", zap.Int("processed", res.Processed()))
	}
	d.metrics.ObserveRunDuration(d.clock.Now().Sub(start))

	runID, err := d.writeSnapshot(context.WithoutCancel(ctx), posts)
	res.RunID = runID
	return res, err
}

// RunOne downloads a single post addressed by URL and returns where the
// document was stored.
func (d *Driver) RunOne(ctx context.Context, rawURL string) (string, error) {
	post := catalog.PlaceholderFromURL(rawURL)
	uri, err := d.process(ctx, &post)
	if err != nil {
		d.metrics.ObservePost(metrics.ResultFailed)
		return "", err
	}
	d.metrics.ObservePost(metrics.ResultSucceeded)
	return uri, nil
}

func (d *Driver) process(ctx context.Context, post *catalog.Post) (uri string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	content, err := d.extractor.Fetch(ctx, post)
	if err != nil {
		return "", fmt.Errorf("fetch content: %w", err)
	}
	if _, err := d.converter.Convert(content); err != nil {
		return "", fmt.Errorf("convert: %w", err)
	}
	if d.cfg.DownloadImages && d.images != nil {
		d.images.Resolve(ctx, content)
		media.RewriteLinks(content)
	}
	return d.persist(ctx, content)
}

func (d *Driver) persist(ctx context.Context, content *catalog.Content) (string, error) {
	docPath := path.Join(d.cfg.PostsDir(), catalog.Filename(*content.Post))
	uri, err := d.store.PutObject(ctx, docPath, markdownType, strings.NewReader(content.Markdown))
	if err != nil {
		return "", fmt.Errorf("save document: %w", err)
	}
	if d.cfg.SaveHTML {
		htmlPath := strings.TrimSuffix(docPath, ".md") + ".html"
		if _, err := d.store.PutObject(ctx, htmlPath, htmlType, strings.NewReader(content.HTML)); err != nil {
			return "", fmt.Errorf("save html: %w", err)
		}
	}
	return uri, nil
}

func (d *Driver) downloaded(ctx context.Context) map[string]struct{} {
	names, err := d.store.List(ctx, d.cfg.PostsDir())
	if err != nil {
		d.logger.Warn("Could not list downloaded posts", zap.Error(err))
		return nil
	}
	return ResumeSet(names)
}

func (d *Driver) writeSnapshot(ctx context.Context, posts []catalog.Post) (string, error) {
	runID, err := d.ids.NewID()
	if err != nil {
		return "", err
	}
	snap := catalog.NewSnapshot(runID, d.cfg.Publication, d.cfg.URL, d.clock.Now(), posts)
	data, err := snap.Encode()
	if err != nil {
		return runID, fmt.Errorf("encode metadata: %w", err)
	}
	uri, err := d.store.PutObject(ctx, d.cfg.MetadataPath(), jsonType, bytes.NewReader(data))
	if err != nil {
		return runID, fmt.Errorf("save metadata: %w", err)
	}
	d.logger.Info("Saved metadata", zap.String("uri", uri), zap.String("run_id", runID))
	return runID, nil
}

// ResumeSet derives the slugs already on disk from document file names. A
// stem with at least four hyphen-separated parts contributes everything after
// the third hyphen; shorter stems contribute themselves.
func ResumeSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		set[stemKey(strings.TrimSuffix(path.Base(name), ".md"))] = struct{}{}
	}
	return set
}

// ResumeKey is the key post would have in a ResumeSet once stored.
func ResumeKey(post catalog.Post) string {
	return stemKey(strings.TrimSuffix(catalog.Filename(post), ".md"))
}

func stemKey(stem string) string {
	parts := strings.SplitN(stem, "-", 4)
	if len(parts) >= 4 {
		return parts[3]
	}
	return stem
}
