package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/archive"
	"github.com/JakeFAU/substack-archiver/internal/config"
	"github.com/JakeFAU/substack-archiver/internal/convert"
	"github.com/JakeFAU/substack-archiver/internal/discovery"
	"github.com/JakeFAU/substack-archiver/internal/extract"
	"github.com/JakeFAU/substack-archiver/internal/fetch"
	"github.com/JakeFAU/substack-archiver/internal/fetch/browser"
	"github.com/JakeFAU/substack-archiver/internal/fetch/httpfetch"
	"github.com/JakeFAU/substack-archiver/internal/media"
	"github.com/JakeFAU/substack-archiver/internal/metrics"
	"github.com/JakeFAU/substack-archiver/internal/storage"
	"github.com/JakeFAU/substack-archiver/internal/storage/gcs"
	"github.com/JakeFAU/substack-archiver/internal/storage/local"
	"github.com/JakeFAU/substack-archiver/internal/storage/memory"
)

// pipeline holds the long-lived services of one invocation.
type pipeline struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Recorder
	fetcher fetch.Fetcher
	http    *httpfetch.Transport
	store   storage.Store
	closers []func()
}

// newPipeline starts the configured transport, signs in when the browser is
// used, and opens the output store.
func newPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger, stdin io.Reader) (*pipeline, error) {
	p := &pipeline{cfg: cfg, logger: logger, metrics: metrics.New()}
	p.http = httpfetch.New(httpfetch.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		Timeout:       cfg.Fetch.PageTimeout,
		SessionCookie: cfg.Auth.SessionCookie,
	})

	transport, err := p.transport(ctx, stdin)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.fetcher = fetch.NewRetrying(transport, fetch.Policy{
		RequestDelay: cfg.Fetch.RequestDelay,
		MaxRetries:   cfg.Fetch.MaxRetries,
		BackoffUnit:  cfg.Fetch.RateLimitBackoff,
	}, logger.Named("fetch"), fetch.WithMetrics(p.metrics))

	if p.store, err = p.openStore(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *pipeline) transport(ctx context.Context, stdin io.Reader) (fetch.Transport, error) {
	if p.cfg.Fetch.Transport == config.TransportHTTP {
		p.logger.Info("Using HTTP transport")
		return p.http, nil
	}

	p.logger.Info("Starting browser", zap.Bool("headless", p.cfg.Browser.Headless))
	bt, err := browser.New(browser.Config{
		Headless:    p.cfg.Browser.Headless,
		UserAgent:   p.cfg.Fetch.UserAgent,
		UserDataDir: p.cfg.Browser.UserDataDir,
		Profile:     p.cfg.Browser.Profile,
		PageTimeout: p.cfg.Fetch.PageTimeout,
	}, p.logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	p.closers = append(p.closers, bt.Close)

	err = bt.Login(ctx, browser.Login{
		BaseURL:     p.cfg.Source.URL,
		UseSession:  p.cfg.Auth.UseBrowserSession,
		ManualWait:  p.cfg.Auth.ManualLoginWait,
		Email:       p.cfg.Auth.Email,
		Password:    p.cfg.Auth.Password,
		OnChallenge: waitForEnter(stdin),
	})
	if err != nil {
		return nil, fmt.Errorf("login failed, check credentials or browser session: %w", err)
	}
	return bt, nil
}

// waitForEnter blocks until a line is read from r or ctx ends.
func waitForEnter(r io.Reader) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() {
			_, err := bufio.NewReader(r).ReadString('\n')
			done <- err
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (p *pipeline) openStore(ctx context.Context) (storage.Store, error) {
	if p.cfg.Output.DryRun {
		p.logger.Info("Dry run; output is kept in memory")
		return memory.New(), nil
	}
	primary, err := local.New(local.Config{BaseDir: p.cfg.Output.Dir})
	if err != nil {
		return nil, fmt.Errorf("open output dir: %w", err)
	}
	if p.cfg.Output.GCSBucket == "" {
		return storage.NewMirrored(primary, nil, p.logger), nil
	}

	client, err := gcsclient.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	p.closers = append(p.closers, func() {
		if err := client.Close(); err != nil {
			p.logger.Warn("Error closing storage client", zap.Error(err))
		}
	})
	mirror, err := gcs.New(client, gcs.Config{Bucket: p.cfg.Output.GCSBucket, Prefix: p.cfg.Output.GCSPrefix})
	if err != nil {
		return nil, fmt.Errorf("open gcs mirror: %w", err)
	}
	p.logger.Info("Mirroring output to GCS", zap.String("bucket", p.cfg.Output.GCSBucket))
	return storage.NewMirrored(primary, mirror, p.logger.Named("storage")), nil
}

func (p *pipeline) discovery() *discovery.Engine {
	return discovery.New(discovery.Config{
		BaseURL:      p.cfg.Source.URL,
		PageSize:     p.cfg.Discovery.PageSize,
		PagePause:    p.cfg.Discovery.PagePause,
		FeedFallback: p.cfg.Discovery.FeedFallback,
		Filter:       p.cfg.CatalogFilter(),
	}, p.fetcher, p.logger.Named("discovery"), discovery.WithMetrics(p.metrics))
}

func (p *pipeline) driver(downloadImages, saveHTML bool) *archive.Driver {
	var images archive.ImageResolver
	if downloadImages {
		images = media.New(media.Config{
			BaseURL:       p.cfg.Source.URL,
			Dir:           p.cfg.ImagesDir(),
			RatePerSecond: p.cfg.Images.RatePerSecond,
		}, p.http, p.store, p.metrics, p.logger.Named("media"))
	}
	return archive.New(archive.Config{
		Publication:    p.cfg.PublicationName(),
		URL:            p.cfg.Source.URL,
		Dir:            p.cfg.PublicationDir(),
		DownloadImages: downloadImages,
		SaveHTML:       saveHTML,
	},
		extract.New(p.fetcher, p.logger.Named("extract")),
		convert.New(p.cfg.Source.URL),
		images,
		p.store,
		p.logger.Named("archive"),
		archive.WithMetrics(p.metrics),
	)
}

// finish exports metrics when configured.
func (p *pipeline) finish() {
	if err := p.metrics.WriteTextfile(p.cfg.Metrics.Textfile); err != nil {
		p.logger.Warn("Could not write metrics", zap.Error(err))
	}
}

// Close releases the browser and storage clients.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}
