// Package metrics exposes Prometheus collectors for an archive run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values used across the archiver.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"

	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeTimeout     = "timeout"
	OutcomeError       = "error"

	ImageDownloaded = "downloaded"
	ImageCached     = "cached"
	ImageFailed     = "failed"
	ImageSkipped    = "skipped"
)

// Recorder holds the archiver collectors on a dedicated registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	posts         *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	images        *prometheus.CounterVec
	discovered    *prometheus.GaugeVec
	runDuration   prometheus.Gauge
}

// New builds a Recorder with all collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		posts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_posts_total",
				Help: "Posts processed by the batch driver, labeled by result.",
			},
			[]string{"result"},
		),
		fetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_fetch_attempts_total",
				Help: "Raw page fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		images: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_images_total",
				Help: "Image references resolved, labeled by result.",
			},
			[]string{"result"},
		),
		discovered: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "archiver_discovery_posts",
				Help: "Posts returned by each discovery strategy in the last run.",
			},
			[]string{"strategy"},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "archiver_run_duration_seconds",
				Help: "Wall time of the last batch run, from the first post to the metadata write. Excludes login and discovery.",
			},
		),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObservePost increments the per-post result counter.
func (r *Recorder) ObservePost(result string) {
	if r == nil {
		return
	}
	r.posts.WithLabelValues(result).Inc()
}

// ObserveFetchAttempt increments the fetch attempt counter.
func (r *Recorder) ObserveFetchAttempt(outcome string) {
	if r == nil {
		return
	}
	r.fetchAttempts.WithLabelValues(outcome).Inc()
}

// ObserveImage increments the image counter.
func (r *Recorder) ObserveImage(result string) {
	if r == nil {
		return
	}
	r.images.WithLabelValues(result).Inc()
}

// SetDiscovered records how many posts a strategy produced.
func (r *Recorder) SetDiscovered(strategy string, n int) {
	if r == nil {
		return
	}
	r.discovered.WithLabelValues(strategy).Set(float64(n))
}

// ObserveRunDuration records the batch driver's wall time.
func (r *Recorder) ObserveRunDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Set(d.Seconds())
}

// WriteTextfile writes the registry in the text exposition format, suitable
// for the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
