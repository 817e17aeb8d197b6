// Package httpfetch implements the fetch transport and the media downloader
// with plain HTTP requests through gocolly.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/substack-archiver/internal/fetch"
)

const (
	defaultTimeout = 30 * time.Second
	sessionCookie  = "substack.sid"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// SessionCookie is the substack.sid value sent with every request.
	SessionCookie string
}

// Transport implements fetch.Transport using a Colly collector.
type Transport struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type response struct {
	status      int
	body        []byte
	contentType string
}

// New builds a Transport.
func New(cfg Config) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		// Unlimited: colly truncates silently at its 10 MiB default.
		colly.MaxBodySize(0),
	)
	c.WithTransport(newHTTPTransport())
	return &Transport{cfg: cfg, baseCollector: c}
}

// Get fetches url and returns the body as text.
func (t *Transport) Get(ctx context.Context, url string) (string, error) {
	resp, err := t.do(ctx, url)
	if err != nil {
		return "", err
	}
	return string(resp.body), nil
}

// Download fetches a binary resource.
func (t *Transport) Download(ctx context.Context, url string) (fetch.Blob, error) {
	resp, err := t.do(ctx, url)
	if err != nil {
		return fetch.Blob{}, err
	}
	return fetch.Blob{Body: resp.body, ContentType: resp.contentType}, nil
}

func (t *Transport) do(ctx context.Context, url string) (response, error) {
	var (
		result   response
		fetchErr error
	)
	collector := t.buildCollector(&result, &fetchErr)
	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return response{}, err
	}
	return result, nil
}

func (t *Transport) buildCollector(result *response, fetchErr *error) *colly.Collector {
	collector := t.baseCollector.Clone()
	if t.cfg.UserAgent != "" {
		collector.UserAgent = t.cfg.UserAgent
	}
	collector.SetRequestTimeout(t.cfg.Timeout)
	t.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (t *Transport) configureCollectorHooks(hooks collectorHooks, result *response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		if t.cfg.SessionCookie != "" {
			r.Headers.Set("Cookie", sessionCookie+"="+t.cfg.SessionCookie)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = response{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
		if r.Headers != nil {
			result.contentType = r.Headers.Get("Content-Type")
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		*fetchErr = classifyError(r, err)
	})
}

func classifyError(r *colly.Response, err error) error {
	if r != nil && r.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", fetch.ErrRateLimited, r.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", fetch.ErrTimeout, err)
	}
	if r != nil && r.StatusCode != 0 {
		return fmt.Errorf("unexpected status %d: %w", r.StatusCode, err)
	}
	return err
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
