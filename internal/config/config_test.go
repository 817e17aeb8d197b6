package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := NewViper()
	v.Set("source.url", "https://example.substack.com/")

	cfg, err := Load(v, "")

	require.NoError(t, err)
	assert.Equal(t, "https://example.substack.com", cfg.Source.URL)
	assert.True(t, cfg.Auth.UseBrowserSession)
	assert.Equal(t, 30*time.Second, cfg.Auth.ManualLoginWait)
	assert.Equal(t, TransportBrowser, cfg.Fetch.Transport)
	assert.Equal(t, 5*time.Second, cfg.Fetch.RequestDelay)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.Fetch.RateLimitBackoff)
	assert.Equal(t, 30*time.Second, cfg.Fetch.PageTimeout)
	assert.Equal(t, DefaultUserAgent, cfg.Fetch.UserAgent)
	assert.Equal(t, "./output", cfg.Output.Dir)
	assert.True(t, cfg.Output.DownloadImages)
	assert.False(t, cfg.Output.SaveHTML)
	assert.Equal(t, 12, cfg.Discovery.PageSize)
	assert.Equal(t, time.Second, cfg.Discovery.PagePause)
	assert.True(t, cfg.Discovery.FeedFallback)
	assert.InDelta(t, 4.0, cfg.Images.RatePerSecond, 0)
	assert.True(t, cfg.Logging.Development)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
source:
  url: https://notes.substack.com
auth:
  use_browser_session: false
  email: me@example.com
  password: hunter2
  manual_login_wait: 5s
fetch:
  transport: HTTP
  request_delay: 250ms
  max_retries: 0
output:
  dir: /tmp/archive
  gcs_bucket: mirror
  gcs_prefix: substack
filter:
  start_date: "2024-01-15"
  end_date: "2024-02-01"
  paid_only: true
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(NewViper(), path)

	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, cfg.Fetch.Transport)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.RequestDelay)
	assert.Zero(t, cfg.Fetch.MaxRetries)
	assert.Equal(t, MinManualLoginWait, cfg.Auth.ManualLoginWait)
	assert.Equal(t, "mirror", cfg.Output.GCSBucket)
	assert.False(t, cfg.Logging.Development)

	f := cfg.CatalogFilter()
	require.NotNil(t, f.Start)
	require.NotNil(t, f.End)
	assert.Equal(t, "2024-01-15", f.Start.Format("2006-01-02"))
	assert.Equal(t, "2024-02-01", f.End.Format("2006-01-02"))
	assert.True(t, f.PaidOnly)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SUBSTACK_URL", "https://legacy.substack.com")
	t.Setenv("SUBSTACK_FETCH_REQUEST_DELAY", "2s")
	t.Setenv("PAID_ONLY", "true")
	t.Setenv("SUBSTACK_METRICS_TEXTFILE", "/var/lib/node_exporter/archiver.prom")

	cfg, err := Load(NewViper(), "")

	require.NoError(t, err)
	assert.Equal(t, "https://legacy.substack.com", cfg.Source.URL)
	assert.Equal(t, 2*time.Second, cfg.Fetch.RequestDelay)
	assert.True(t, cfg.Filter.PaidOnly)
	assert.Equal(t, "/var/lib/node_exporter/archiver.prom", cfg.Metrics.Textfile)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SUBSTACK_SOURCE_URL=https://dotenv.substack.com\n"), 0o600))
	t.Setenv("SUBSTACK_SOURCE_URL", "")
	require.NoError(t, os.Unsetenv("SUBSTACK_SOURCE_URL"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "https://dotenv.substack.com", cfg.Source.URL)
}

func TestValidateReportsAllViolations(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Auth:   AuthConfig{UseBrowserSession: false, Email: "only@example.com"},
		Filter: FilterConfig{StartDate: "2024/01/01", EndDate: "tomorrow"},
		Fetch:  FetchConfig{Transport: "carrier-pigeon", MaxRetries: -1, RequestDelay: -time.Second},
	}

	err := cfg.Validate()

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	for _, want := range []string{
		"source.url is required",
		"auth.use_browser_session",
		"filter.start_date",
		"filter.end_date",
		"fetch.max_retries",
		"fetch.request_delay",
		"fetch.page_timeout",
		"fetch.transport",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidateRules(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Source: SourceConfig{URL: "https://example.substack.com"},
			Auth:   AuthConfig{UseBrowserSession: true},
			Fetch:  FetchConfig{Transport: TransportBrowser, PageTimeout: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "valid"},
		{name: "relative url", mutate: func(c *Config) { c.Source.URL = "example.substack.com" }, want: "absolute http(s) URL"},
		{name: "ftp url", mutate: func(c *Config) { c.Source.URL = "ftp://example.com" }, want: "absolute http(s) URL"},
		{name: "credentials instead of session", mutate: func(c *Config) {
			c.Auth = AuthConfig{Email: "a@b.c", Password: "pw"}
		}},
		{name: "end before start", mutate: func(c *Config) {
			c.Filter = FilterConfig{StartDate: "2024-02-01", EndDate: "2024-01-01"}
		}, want: "must not be before"},
		{name: "same day range", mutate: func(c *Config) {
			c.Filter = FilterConfig{StartDate: "2024-02-01", EndDate: "2024-02-01"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalid)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	t.Parallel()

	cfg := Config{Source: SourceConfig{URL: "https://example.substack.com"}}
	assert.Equal(t, "example", cfg.PublicationName())
	assert.Equal(t, "example", cfg.PublicationDir())
	assert.Equal(t, "example/posts", cfg.PostsDir())
	assert.Equal(t, "example/images", cfg.ImagesDir())

	assert.Equal(t, "www", Config{Source: SourceConfig{URL: "http://www.blog.example/path"}}.PublicationName())
	assert.Equal(t, "unknown", Config{}.PublicationName())
}
