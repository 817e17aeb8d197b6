package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObservePost(ResultSucceeded)
	r.ObservePost(ResultSucceeded)
	r.ObservePost(ResultFailed)
	r.ObserveFetchAttempt(OutcomeRateLimited)
	r.ObserveImage(ImageCached)
	r.SetDiscovered("api", 12)
	r.ObserveRunDuration(1500 * time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(r.posts.WithLabelValues(ResultSucceeded)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.posts.WithLabelValues(ResultFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.fetchAttempts.WithLabelValues(OutcomeRateLimited)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.images.WithLabelValues(ImageCached)), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(r.discovered.WithLabelValues("api")), 0)
	assert.InDelta(t, 1.5, testutil.ToFloat64(r.runDuration), 0.0001)
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	r.ObservePost(ResultSkipped)
	r.ObserveFetchAttempt(OutcomeOK)
	r.ObserveImage(ImageFailed)
	r.SetDiscovered("sitemap", 1)
	r.ObserveRunDuration(time.Second)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile("/nonexistent/metrics.prom"))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObservePost(ResultSucceeded)
	path := filepath.Join(t.TempDir(), "archiver.prom")

	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `archiver_posts_total{result="succeeded"} 1`))
}
