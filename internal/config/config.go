// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
)

// EnvPrefix scopes environment overrides, e.g. SUBSTACK_FETCH_REQUEST_DELAY=2s.
const EnvPrefix = "SUBSTACK"

// Transport names accepted by fetch.transport.
const (
	TransportBrowser = "browser"
	TransportHTTP    = "http"
)

// DefaultUserAgent is sent by both transports unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// MinManualLoginWait bounds auth.manual_login_wait from below.
const MinManualLoginWait = 30 * time.Second

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config captures all archiver settings.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Output    OutputConfig    `mapstructure:"output"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Images    ImagesConfig    `mapstructure:"images"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// SourceConfig names the publication to archive.
type SourceConfig struct {
	URL string `mapstructure:"url"`
}

// AuthConfig selects how the session is established.
type AuthConfig struct {
	UseBrowserSession bool          `mapstructure:"use_browser_session"`
	Email             string        `mapstructure:"email"`
	Password          string        `mapstructure:"password"`
	SessionCookie     string        `mapstructure:"session_cookie"`
	ManualLoginWait   time.Duration `mapstructure:"manual_login_wait"`
}

// BrowserConfig controls the Chrome instance.
type BrowserConfig struct {
	Headless    bool   `mapstructure:"headless"`
	UserDataDir string `mapstructure:"user_data_dir"`
	Profile     string `mapstructure:"profile"`
}

// FetchConfig governs the fetch port.
type FetchConfig struct {
	Transport        string        `mapstructure:"transport"`
	RequestDelay     time.Duration `mapstructure:"request_delay"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
	PageTimeout      time.Duration `mapstructure:"page_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// OutputConfig sets where artifacts land.
type OutputConfig struct {
	Dir            string `mapstructure:"dir"`
	DownloadImages bool   `mapstructure:"download_images"`
	SaveHTML       bool   `mapstructure:"save_html"`
	DryRun         bool   `mapstructure:"dry_run"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	GCSPrefix      string `mapstructure:"gcs_prefix"`
}

// FilterConfig restricts the catalog. Dates are YYYY-MM-DD.
type FilterConfig struct {
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
	PaidOnly  bool   `mapstructure:"paid_only"`
}

// DiscoveryConfig tunes the listing strategies.
type DiscoveryConfig struct {
	PageSize     int           `mapstructure:"page_size"`
	PagePause    time.Duration `mapstructure:"page_pause"`
	FeedFallback bool          `mapstructure:"feed_fallback"`
}

// ImagesConfig paces image downloads.
type ImagesConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// legacyEnv maps keys to the unprefixed-style variables older .env files use.
var legacyEnv = map[string]string{
	"source.url":               "SUBSTACK_URL",
	"auth.email":               "SUBSTACK_EMAIL",
	"auth.password":            "SUBSTACK_PASSWORD",
	"auth.use_browser_session": "USE_BROWSER_SESSION",
	"output.dir":               "OUTPUT_DIR",
	"output.download_images":   "DOWNLOAD_IMAGES",
	"output.save_html":         "SAVE_HTML",
	"filter.start_date":        "START_DATE",
	"filter.end_date":          "END_DATE",
	"filter.paid_only":         "PAID_ONLY",
	"browser.headless":         "HEADLESS",
	"browser.user_data_dir":    "CHROME_USER_DATA_DIR",
	"logging.level":            "LOG_LEVEL",
	"fetch.max_retries":        "MAX_RETRIES",
}

// LoadDotEnv loads environment variables from the given files, skipping any
// that do not exist. Variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// NewViper returns a Viper instance with defaults and environment bindings.
// Callers may bind flags into it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy)
	}
	setDefaults(v)
	return v
}

// Load reads the optional config file at path into v, then unmarshals and
// validates the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	for _, key := range []string{
		"source.url",
		"auth.email",
		"auth.password",
		"auth.session_cookie",
		"browser.user_data_dir",
		"browser.profile",
		"output.gcs_bucket",
		"output.gcs_prefix",
		"filter.start_date",
		"filter.end_date",
		"metrics.textfile",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("auth.use_browser_session", true)
	v.SetDefault("auth.manual_login_wait", MinManualLoginWait)
	v.SetDefault("browser.headless", false)
	v.SetDefault("fetch.transport", TransportBrowser)
	v.SetDefault("fetch.request_delay", 5*time.Second)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_limit_backoff", 15*time.Second)
	v.SetDefault("fetch.page_timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.download_images", true)
	v.SetDefault("output.save_html", false)
	v.SetDefault("output.dry_run", false)
	v.SetDefault("filter.paid_only", false)
	v.SetDefault("discovery.page_size", 12)
	v.SetDefault("discovery.page_pause", time.Second)
	v.SetDefault("discovery.feed_fallback", true)
	v.SetDefault("images.rate_per_second", 4.0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

func (c *Config) normalize() {
	c.Source.URL = strings.TrimRight(strings.TrimSpace(c.Source.URL), "/")
	c.Fetch.Transport = strings.ToLower(strings.TrimSpace(c.Fetch.Transport))
	if c.Auth.ManualLoginWait < MinManualLoginWait {
		c.Auth.ManualLoginWait = MinManualLoginWait
	}
}

// Validate reports every violation at once, joined under ErrInvalid.
func (c Config) Validate() error {
	var errs []error

	switch {
	case c.Source.URL == "":
		errs = append(errs, errors.New("source.url is required"))
	default:
		u, err := url.Parse(c.Source.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("source.url must be an absolute http(s) URL, got %q", c.Source.URL))
		}
	}

	if !c.Auth.UseBrowserSession && (c.Auth.Email == "" || c.Auth.Password == "") {
		errs = append(errs, errors.New("either auth.use_browser_session must be true or auth.email and auth.password must be set"))
	}

	start, startErr := parseOptionalDay(c.Filter.StartDate)
	if startErr != nil {
		errs = append(errs, fmt.Errorf("filter.start_date: %w", startErr))
	}
	end, endErr := parseOptionalDay(c.Filter.EndDate)
	if endErr != nil {
		errs = append(errs, fmt.Errorf("filter.end_date: %w", endErr))
	}
	if start != nil && end != nil && end.Before(*start) {
		errs = append(errs, errors.New("filter.end_date must not be before filter.start_date"))
	}

	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, errors.New("fetch.max_retries must be >= 0"))
	}
	if c.Fetch.RequestDelay < 0 {
		errs = append(errs, errors.New("fetch.request_delay must be >= 0"))
	}
	if c.Fetch.PageTimeout <= 0 {
		errs = append(errs, errors.New("fetch.page_timeout must be > 0"))
	}
	if c.Fetch.Transport != TransportBrowser && c.Fetch.Transport != TransportHTTP {
		errs = append(errs, fmt.Errorf("fetch.transport must be %q or %q, got %q", TransportBrowser, TransportHTTP, c.Fetch.Transport))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func parseOptionalDay(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := catalog.ParseDay(raw)
	if err != nil {
		return nil, fmt.Errorf("use YYYY-MM-DD, got %q", raw)
	}
	return d, nil
}

// CatalogFilter converts the filter section. Call after Validate.
func (c Config) CatalogFilter() catalog.Filter {
	start, _ := parseOptionalDay(c.Filter.StartDate)
	end, _ := parseOptionalDay(c.Filter.EndDate)
	return catalog.Filter{Start: start, End: end, PaidOnly: c.Filter.PaidOnly}
}

// PublicationName is the first label of the source host ("unknown" if unset).
func (c Config) PublicationName() string {
	raw := strings.TrimPrefix(strings.TrimPrefix(c.Source.URL, "https://"), "http://")
	if raw == "" {
		return "unknown"
	}
	raw = strings.SplitN(raw, "/", 2)[0]
	return strings.SplitN(raw, ".", 2)[0]
}

// PublicationDir is the publication's directory relative to Output.Dir.
func (c Config) PublicationDir() string {
	return c.PublicationName()
}

// PostsDir holds the Markdown documents, relative to Output.Dir.
func (c Config) PostsDir() string {
	return path.Join(c.PublicationDir(), "posts")
}

// ImagesDir holds downloaded images, relative to Output.Dir.
func (c Config) ImagesDir() string {
	return path.Join(c.PublicationDir(), "images")
}
