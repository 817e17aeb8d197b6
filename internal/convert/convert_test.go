package convert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
)

const base = "https://example.substack.com"

func convertBody(t *testing.T, html string) string {
	t.Helper()
	post := &catalog.Post{URL: base + "/p/test", Title: "Test", Slug: "test"}
	out, err := New(base).Convert(&catalog.Content{Post: post, HTML: html})
	require.NoError(t, err)
	_, body, err := ParseFrontMatter([]byte(out))
	require.NoError(t, err)
	return string(body)
}

func TestConvertBasicMarkup(t *testing.T) {
	t.Parallel()

	body := convertBody(t, `<div class="body markup"><h2>Intro</h2><p>Hello <strong>world</strong></p><ul><li>one</li><li>two</li></ul></div>`)

	assert.Contains(t, body, "## Intro")
	assert.Contains(t, body, "Hello **world**")
	assert.Contains(t, body, "- one")
	assert.Contains(t, body, "- two")
	assert.True(t, strings.HasSuffix(body, "\n"))
	assert.False(t, strings.HasSuffix(body, "\n\n"))
}

func TestConvertCodeFenceLanguage(t *testing.T) {
	t.Parallel()

	body := convertBody(t, `<pre><code class="hljs language-go">fmt.Println("hi")
</code></pre>`)

	assert.Contains(t, body, "```go\nfmt.Println(\"hi\")\n```")
}

func TestConvertPreprocessing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		html    string
		want    []string
		notWant []string
	}{
		{
			name: "button link",
			html: `<p>Go</p><button><a href="https://example.com/subscribe">Join now</a></button>`,
			want: []string{"[Join now](https://example.com/subscribe)"},
		},
		{
			name: "embed placeholder",
			html: `<div class="youtube-embed-wrap" src="https://youtube.com/watch?v=1"></div><iframe src="https://player.example/v"></iframe>`,
			want: []string{
				"[Embedded content: https://youtube.com/watch?v=1]",
				"[Embedded content: https://player.example/v]",
			},
		},
		{
			name:    "subscribe buttons removed",
			html:    `<p>Body</p><div class="subscription-widget button-wrapper"><a href="/s">Sign up</a></div>`,
			want:    []string{"Body"},
			notWant: []string{"Sign up"},
		},
		{
			name:    "figure caption",
			html:    `<figure><img src="//cdn.example.com/a.png" alt="Chart"><figcaption> Figure one </figcaption></figure>`,
			want:    []string{"![Chart](https://cdn.example.com/a.png)", "Figure one"},
			notWant: []string{"figcaption"},
		},
		{
			name:    "nested blockquote",
			html:    `<blockquote><blockquote><p>quoted</p></blockquote></blockquote>`,
			want:    []string{"> quoted"},
			notWant: []string{"> >"},
		},
		{
			name: "root relative image",
			html: `<p><img data-src="/img/b.jpg" alt=""></p>`,
			want: []string{"(https://example.substack.com/img/b.jpg)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			body := convertBody(t, tt.html)
			for _, w := range tt.want {
				assert.Contains(t, body, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, body, nw)
			}
		})
	}
}

func TestConvertIsDeterministic(t *testing.T) {
	t.Parallel()

	html := `<h1>Title</h1><p>Para one</p><p></p><p>Para <em>two</em></p><ol><li>a</li></ol>`
	post := &catalog.Post{URL: base + "/p/x", Title: "X"}
	c := New(base)

	first, err := c.Convert(&catalog.Content{Post: post, HTML: html})
	require.NoError(t, err)
	second, err := c.Convert(&catalog.Content{Post: post, HTML: html})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotContains(t, first, "\n\n\n")
}

func TestConvertStoresMarkdown(t *testing.T) {
	t.Parallel()

	content := &catalog.Content{Post: &catalog.Post{URL: "u", Title: "T"}, HTML: "<p>x</p>"}
	out, err := New(base).Convert(content)

	require.NoError(t, err)
	assert.Equal(t, out, content.Markdown)

	_, err = New(base).Convert(&catalog.Content{HTML: "<p>x</p>"})
	assert.ErrorIs(t, err, ErrNoPost)
}

func TestPostprocess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "collapse blank lines", in: "a\n\n\n\n\nb", want: "a\n\nb\n"},
		{name: "heading gap", in: "text\n## Heading\nmore", want: "text\n\n## Heading\nmore\n"},
		{name: "list gap", in: "intro\n- one\n- two", want: "intro\n\n- one\n\n- two\n"},
		{name: "every list item spaced", in: "Intro\n- a\n- b\n* c\n  - nested", want: "Intro\n\n- a\n\n- b\n\n* c\n\n  - nested\n"},
		{name: "list in code fence untouched", in: "```\n- a\n- b\n```", want: "```\n- a\n- b\n```\n"},
		{name: "unescape", in: `\[link\]\(x\)`, want: "[link](x)\n"},
		{name: "bold spacing", in: "a **  b   ** c", want: "a ** b ** c\n"},
		{name: "trailing whitespace", in: "\n\nline   \nnext\t\n\n", want: "line\nnext\n"},
		{name: "code fence untouched", in: "```\n# not a heading\n```", want: "```\n# not a heading\n```\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Postprocess(tt.in))
		})
	}
}

func TestFrontMatterIsValidYAML(t *testing.T) {
	t.Parallel()

	date, err := catalog.ParseDay("2024-03-01")
	require.NoError(t, err)
	post := catalog.Post{
		URL:       base + "/p/quotes",
		Title:     `She said "hi"` + "\nand left",
		Subtitle:  `C:\path`,
		Author:    "Ann",
		Date:      date,
		IsPaid:    true,
		WordCount: 420,
	}

	header := FrontMatter(post)
	assert.True(t, strings.HasPrefix(header, "---\ntitle: \"She said \\\"hi\\\" and left\"\n"))
	assert.Contains(t, header, "date: 2024-03-01\n")
	assert.Contains(t, header, "paid: true\n")
	assert.Contains(t, header, "word_count: 420\n")

	var decoded map[string]any
	inner := strings.TrimSuffix(strings.TrimPrefix(header, "---\n"), "---\n")
	require.NoError(t, yaml.Unmarshal([]byte(inner), &decoded))
	assert.Equal(t, `She said "hi" and left`, decoded["title"])
	assert.Equal(t, `C:\path`, decoded["subtitle"])
}

func TestFrontMatterOmitsEmptyFields(t *testing.T) {
	t.Parallel()

	header := FrontMatter(catalog.Post{URL: "https://x/p/a", Title: "A"})

	assert.Equal(t, "---\ntitle: \"A\"\nurl: \"https://x/p/a\"\n---\n", header)
}

func TestParseFrontMatterRoundTrip(t *testing.T) {
	t.Parallel()

	date, err := catalog.ParseDay("2024-02-01")
	require.NoError(t, err)
	doc := FrontMatter(catalog.Post{URL: "https://x/p/a", Title: "A", Date: date, IsPaid: true}) + "# Body\n"

	h, body, err := ParseFrontMatter([]byte(doc))

	require.NoError(t, err)
	assert.Equal(t, "A", h.Title)
	assert.Equal(t, "2024-02-01", h.Date)
	assert.True(t, h.Paid)
	assert.Equal(t, "# Body\n", string(body))

	_, _, err = ParseFrontMatter([]byte("# no header"))
	assert.ErrorIs(t, err, ErrNoFrontMatter)
}
