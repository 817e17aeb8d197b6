package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/archive"
	"github.com/JakeFAU/substack-archiver/internal/catalog"
	"github.com/JakeFAU/substack-archiver/internal/config"
	"github.com/JakeFAU/substack-archiver/internal/convert"
	"github.com/JakeFAU/substack-archiver/internal/storage"
	"github.com/JakeFAU/substack-archiver/internal/storage/memory"
)

func TestRootFlagsOverrideDefaults(t *testing.T) {
	s := &settings{v: config.NewViper()}
	root := buildRootCmd(s)

	require.NoError(t, root.PersistentFlags().Parse([]string{
		"--url", "https://flags.substack.com/",
		"-o", t.TempDir(),
		"--headless",
		"--delay", "2s",
		"--transport", "http",
	}))
	cfg, logger, err := s.load()

	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, "https://flags.substack.com", cfg.Source.URL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2*time.Second, cfg.Fetch.RequestDelay)
	assert.Equal(t, config.TransportHTTP, cfg.Fetch.Transport)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
}

func TestInvalidConfigFailsBeforeFetching(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"list", "--url", "not a url", "--transport", "pigeon"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.ExecuteContext(context.Background())

	require.ErrorIs(t, err, config.ErrInvalid)
	assert.ErrorContains(t, err, "source.url")
	assert.ErrorContains(t, err, "fetch.transport")
}

func writeDoc(t *testing.T, dir, name string, post catalog.Post) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	doc := convert.FrontMatter(post) + "Body\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o600))
}

func TestListLocal(t *testing.T) {
	out := t.TempDir()
	posts := filepath.Join(out, "example", "posts")
	writeDoc(t, posts, "2024-03-01-alpha.md", catalog.Post{
		URL: "https://example.substack.com/p/alpha", Title: "Alpha", Date: catalog.ParseDate("2024-03-01"), IsPaid: true,
	})
	writeDoc(t, posts, "undated-beta.md", catalog.Post{URL: "https://example.substack.com/p/beta", Title: "Beta"})
	require.NoError(t, os.WriteFile(filepath.Join(posts, "broken.md"), []byte("no header"), 0o600))

	var buf bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"list", "--local", "--url", "https://example.substack.com", "-o", out})
	root.SetOut(&buf)

	require.NoError(t, root.ExecuteContext(context.Background()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "#  Date"))
	assert.Contains(t, lines[1], "2024-03-01")
	assert.Contains(t, lines[1], "Alpha")
	assert.Contains(t, lines[1], paidMark)
	assert.Contains(t, lines[1], "alpha")
	assert.Contains(t, lines[2], "Unknown")
	assert.Contains(t, lines[2], "beta")
	assert.Equal(t, "Total posts: 2", lines[4])
}

func TestListLocalEmpty(t *testing.T) {
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"list", "--local", "--url", "https://example.substack.com", "-o", t.TempDir()})
	root.SetOut(&buf)

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "No posts found\n", buf.String())
}

func TestRenderTableTruncatesByDisplayWidth(t *testing.T) {
	t.Parallel()

	wide := strings.Repeat("漢", 40)
	var buf bytes.Buffer
	renderTable(&buf, []row{
		{date: "2024-01-01", title: wide, slug: "wide"},
		{date: noDate, title: "short", paid: true, slug: "short"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], strings.Repeat("漢", 25))
	assert.NotContains(t, lines[1], strings.Repeat("漢", 26))
	assert.Equal(t, runewidth.StringWidth(lines[1])-len("wide"), runewidth.StringWidth(lines[2])-len("short"))
}

func TestPostRows(t *testing.T) {
	t.Parallel()

	rows := postRows([]catalog.Post{
		{Title: "A", Slug: "a", Date: catalog.ParseDate("2024-02-01"), IsPaid: true},
		{Title: "B", Slug: "b"},
	})

	assert.Equal(t, []row{
		{date: "2024-02-01", title: "A", paid: true, slug: "a"},
		{date: noDate, title: "B", slug: "b"},
	}, rows)
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printSummary(&buf, archive.Result{Succeeded: 3, Failed: 1, Skipped: 2, Interrupted: true}, 10)

	out := buf.String()
	assert.Contains(t, out, "Download Interrupted")
	assert.Contains(t, out, "Downloaded: 3\nSkipped: 2\nFailed: 1\nTotal: 10\n")
}

func TestWaitForEnter(t *testing.T) {
	t.Parallel()

	require.NoError(t, waitForEnter(strings.NewReader("\n"))(context.Background()))
	require.NoError(t, waitForEnter(strings.NewReader(""))(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked, w := io.Pipe()
	defer w.Close()
	assert.ErrorIs(t, waitForEnter(blocked)(ctx), context.Canceled)
}

func TestPipelineStoreSelection(t *testing.T) {
	cfg := config.Config{
		Source: config.SourceConfig{URL: "https://example.substack.com"},
		Fetch:  config.FetchConfig{Transport: config.TransportHTTP, PageTimeout: time.Second},
		Output: config.OutputConfig{Dir: t.TempDir(), DryRun: true},
	}

	p, err := newPipeline(context.Background(), cfg, zap.NewNop(), strings.NewReader(""))
	require.NoError(t, err)
	defer p.Close()
	assert.IsType(t, &memory.BlobStore{}, p.store)
	assert.NotNil(t, p.discovery())
	assert.NotNil(t, p.driver(true, false))

	cfg.Output.DryRun = false
	p, err = newPipeline(context.Background(), cfg, zap.NewNop(), strings.NewReader(""))
	require.NoError(t, err)
	defer p.Close()
	assert.IsType(t, &storage.Mirrored{}, p.store)
}

func newPublication(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/archive", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") != "0" {
			_, _ = w.Write([]byte("[]"))
			return
		}
		_, _ = w.Write([]byte(`[
			{"slug":"first","title":"First","post_date":"2024-03-01T10:00:00.000Z","audience":"everyone"},
			{"slug":"second","title":"Second","post_date":"2024-01-01T10:00:00.000Z","audience":"only_paid"}
		]`))
	})
	for _, slug := range []string{"first", "second"} {
		mux.HandleFunc("/p/"+slug, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><article><div class="body markup">` +
				`<h2>` + slug + ` heading</h2><p>Body of ` + slug + `</p>` +
				`<figure><img src="/img/chart.png" alt="chart"><figcaption>A chart</figcaption></figure>` +
				`</div></article></body></html>`))
		})
	}
	mux.HandleFunc("/img/chart.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestArchiveOverHTTP(t *testing.T) {
	t.Setenv("SUBSTACK_FETCH_REQUEST_DELAY", "0s")
	t.Setenv("SUBSTACK_DISCOVERY_PAGE_PAUSE", "0s")
	t.Setenv("SUBSTACK_IMAGES_RATE_PER_SECOND", "0")
	srv := newPublication(t)
	out := t.TempDir()
	textfile := filepath.Join(t.TempDir(), "archiver.prom")
	t.Setenv("SUBSTACK_METRICS_TEXTFILE", textfile)

	var buf bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"archive", "--url", srv.URL, "--transport", "http", "-o", out})
	root.SetOut(&buf)

	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Contains(t, buf.String(), "Downloaded: 2\nSkipped: 0\nFailed: 0\nTotal: 2\n")
	pub := filepath.Join(out, "127")
	doc, err := os.ReadFile(filepath.Join(pub, "posts", "2024-03-01-first.md"))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "## first heading")
	assert.Contains(t, string(doc), "](../images/img_")
	assert.Contains(t, string(doc), "A chart")
	assert.FileExists(t, filepath.Join(pub, "posts", "2024-01-01-second.md"))

	images, err := os.ReadDir(filepath.Join(pub, "images"))
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Regexp(t, `^img_[0-9a-f]{12}\.png$`, images[0].Name())

	meta, err := os.ReadFile(filepath.Join(pub, archive.MetadataFile))
	require.NoError(t, err)
	assert.Contains(t, string(meta), `"total_posts": 2`)
	assert.FileExists(t, textfile)

	buf.Reset()
	root = newRootCmd()
	root.SetArgs([]string{"archive", "--url", srv.URL, "--transport", "http", "-o", out, "--resume"})
	root.SetOut(&buf)
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, buf.String(), "Downloaded: 0\nSkipped: 2\n")
}
