// Package discovery enumerates a publication's posts. Strategies are tried
// in order and the first one that yields any posts wins; its output is then
// deduplicated, ordered and filtered into the run's catalog.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
	"github.com/JakeFAU/substack-archiver/internal/fetch"
	"github.com/JakeFAU/substack-archiver/internal/metrics"
)

const (
	defaultPageSize = 12
	untitled        = "Untitled"
)

// Strategy is one way of listing posts.
type Strategy struct {
	Name string
	Run  func(ctx context.Context) ([]catalog.Post, error)
}

// Config controls the built-in strategies and the post-merge filter.
type Config struct {
	BaseURL      string
	PageSize     int
	PagePause    time.Duration
	FeedFallback bool
	Filter       catalog.Filter
}

// Engine runs strategies against a fetch port.
type Engine struct {
	cfg        Config
	fetcher    fetch.Fetcher
	pauser     fetch.Pauser
	metrics    *metrics.Recorder
	logger     *zap.Logger
	strategies []Strategy
}

// Option customizes an Engine.
type Option func(*Engine)

// WithPauser overrides the sleeper used between listing pages.
func WithPauser(p fetch.Pauser) Option {
	return func(e *Engine) {
		if p != nil {
			e.pauser = p
		}
	}
}

// WithMetrics records per-strategy counts.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStrategies replaces the built-in strategy list.
func WithStrategies(s ...Strategy) Option {
	return func(e *Engine) {
		e.strategies = s
	}
}

// New builds an Engine with the api, archive, sitemap and (optionally) feed
// strategies in that order.
func New(cfg Config, fetcher fetch.Fetcher, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	e := &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		pauser:  fetch.TimerPauser{},
		logger:  logger,
	}
	e.strategies = []Strategy{
		{Name: "api", Run: e.fromAPI},
		{Name: "archive", Run: e.fromArchive},
		{Name: "sitemap", Run: e.fromSitemap},
	}
	if cfg.FeedFallback {
		e.strategies = append(e.strategies, Strategy{Name: "feed", Run: e.fromFeed})
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discover returns the merged catalog. It only fails when ctx is cancelled;
// strategy errors count as empty results.
func (e *Engine) Discover(ctx context.Context) ([]catalog.Post, error) {
	var raw []catalog.Post
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("discovery interrupted: %w", err)
		}
		posts, err := s.Run(ctx)
		if err != nil {
			e.logger.Warn("Discovery strategy failed", zap.String("strategy", s.Name), zap.Error(err))
		}
		e.metrics.SetDiscovered(s.Name, len(posts))
		if len(posts) > 0 {
			e.logger.Info("Found posts", zap.String("strategy", s.Name), zap.Int("count", len(posts)))
			raw = posts
			break
		}
		e.logger.Info("Strategy found no posts", zap.String("strategy", s.Name))
	}

	merged := catalog.Merge(raw, e.cfg.Filter)
	e.logger.Info("Total unique posts after filtering", zap.Int("count", len(merged)))
	return merged, nil
}
