package fetch

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/metrics"
)

const rateLimitMarker = "too many requests"

// Policy configures the retry behaviour of Retrying.
type Policy struct {
	RequestDelay time.Duration
	MaxRetries   int
	BackoffUnit  time.Duration
}

// Retrying implements Fetcher over a Transport.
type Retrying struct {
	transport Transport
	policy    Policy
	pauser    Pauser
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

// Option customizes Retrying.
type Option func(*Retrying)

// WithPauser overrides the sleeper used for delays and backoff.
func WithPauser(p Pauser) Option {
	return func(r *Retrying) {
		if p != nil {
			r.pauser = p
		}
	}
}

// WithMetrics records every attempt outcome.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Retrying) {
		r.metrics = m
	}
}

// NewRetrying wraps transport with policy.
func NewRetrying(transport Transport, policy Policy, logger *zap.Logger, opts ...Option) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	r := &Retrying{
		transport: transport,
		policy:    policy,
		pauser:    TimerPauser{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch runs up to MaxRetries+1 attempts. Rate limits wait attempt*BackoffUnit
// before the next attempt; timeouts retry immediately; other failures give up.
func (r *Retrying) Fetch(ctx context.Context, url string) (string, bool) {
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", false
		}
		body, err := r.transport.Get(ctx, url)
		r.pauser.Pause(ctx, r.policy.RequestDelay)
		if ctx.Err() != nil {
			return "", false
		}

		switch classify(body, err) {
		case metrics.OutcomeOK:
			r.metrics.ObserveFetchAttempt(metrics.OutcomeOK)
			return body, true
		case metrics.OutcomeRateLimited:
			r.metrics.ObserveFetchAttempt(metrics.OutcomeRateLimited)
			if attempt == r.policy.MaxRetries {
				r.logger.Error("Rate limit retries exhausted", zap.String("url", url), zap.Int("attempts", attempt+1))
				return "", false
			}
			wait := time.Duration(attempt+1) * r.policy.BackoffUnit
			r.logger.Warn("Rate limited, backing off",
				zap.String("url", url),
				zap.Duration("wait", wait),
				zap.Int("retry", attempt+1),
			)
			r.pauser.Pause(ctx, wait)
		case metrics.OutcomeTimeout:
			r.metrics.ObserveFetchAttempt(metrics.OutcomeTimeout)
			if attempt == r.policy.MaxRetries {
				r.logger.Error("Page load timed out", zap.String("url", url), zap.Int("attempts", attempt+1))
				return "", false
			}
			r.logger.Warn("Page load timed out, retrying", zap.String("url", url), zap.Int("retry", attempt+1))
		default:
			r.metrics.ObserveFetchAttempt(metrics.OutcomeError)
			r.logger.Error("Fetch failed", zap.String("url", url), zap.Error(err))
			return "", false
		}
	}
	return "", false
}

// ScrollToBottom delegates to the transport when it can scroll.
func (r *Retrying) ScrollToBottom(ctx context.Context) (string, error) {
	s, ok := r.transport.(Scroller)
	if !ok {
		return "", ErrScrollUnsupported
	}
	return s.ScrollToBottom(ctx)
}

func classify(body string, err error) string {
	if err == nil {
		if strings.Contains(strings.ToLower(body), rateLimitMarker) {
			return metrics.OutcomeRateLimited
		}
		return metrics.OutcomeOK
	}
	if errors.Is(err, ErrRateLimited) {
		return metrics.OutcomeRateLimited
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return metrics.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeError
}
