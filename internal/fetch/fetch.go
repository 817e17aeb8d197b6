// Package fetch defines the page fetch port and the retry policy that wraps
// raw transports with pacing, rate-limit backoff and timeout retries.
package fetch

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimited signals the remote side asked us to slow down.
	ErrRateLimited = errors.New("rate limited")
	// ErrTimeout signals a page load did not complete in time.
	ErrTimeout = errors.New("page load timeout")
	// ErrNoContent is reported by callers when the port yields nothing.
	ErrNoContent = errors.New("no content")
	// ErrScrollUnsupported is returned when the transport cannot scroll.
	ErrScrollUnsupported = errors.New("scrolling not supported by transport")
)

// Blob is a downloaded binary payload.
type Blob struct {
	Body        []byte
	ContentType string
}

// Transport performs one raw attempt at retrieving a page's source.
type Transport interface {
	Get(ctx context.Context, url string) (string, error)
}

// Scroller is implemented by transports that hold a rendered page and can
// trigger lazy loading by scrolling it.
type Scroller interface {
	ScrollToBottom(ctx context.Context) (string, error)
}

// Fetcher is the port used by discovery and extraction. It reports absence of
// content as ok=false rather than an error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, bool)
}

// Pauser sleeps for a duration or until the context is done.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration)
}

// TimerPauser is the production Pauser.
type TimerPauser struct{}

// Pause blocks for d or until ctx is cancelled.
func (TimerPauser) Pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
