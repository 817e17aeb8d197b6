package convert

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
)

const fence = "---"

// ErrNoFrontMatter is returned when a document does not start with a header.
var ErrNoFrontMatter = errors.New("document has no front matter")

var yamlEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r\n", " ", "\n", " ", "\r", " ")

// Header is the decoded front matter of an archived document.
type Header struct {
	Title     string `yaml:"title"`
	Subtitle  string `yaml:"subtitle,omitempty"`
	Author    string `yaml:"author,omitempty"`
	Date      string `yaml:"date,omitempty"`
	URL       string `yaml:"url"`
	Paid      bool   `yaml:"paid,omitempty"`
	WordCount int    `yaml:"word_count,omitempty"`
}

// FrontMatter renders the YAML header for post, including the trailing
// separator line.
func FrontMatter(post catalog.Post) string {
	var b strings.Builder
	b.WriteString(fence + "\n")
	b.WriteString(`title: "` + escapeYAML(post.Title) + "\"\n")
	if post.Subtitle != "" {
		b.WriteString(`subtitle: "` + escapeYAML(post.Subtitle) + "\"\n")
	}
	if post.Author != "" {
		b.WriteString(`author: "` + escapeYAML(post.Author) + "\"\n")
	}
	if post.HasDate() {
		b.WriteString("date: " + post.Date.Format(catalog.DateLayout) + "\n")
	}
	b.WriteString(`url: "` + escapeYAML(post.URL) + "\"\n")
	if post.IsPaid {
		b.WriteString("paid: true\n")
	}
	if post.WordCount > 0 {
		b.WriteString("word_count: " + strconv.Itoa(post.WordCount) + "\n")
	}
	b.WriteString(fence + "\n")
	return b.String()
}

func escapeYAML(s string) string {
	return yamlEscaper.Replace(s)
}

// ParseFrontMatter splits doc into its decoded header and Markdown body.
func ParseFrontMatter(doc []byte) (Header, []byte, error) {
	doc = bytes.TrimPrefix(doc, []byte("\ufeff"))
	if !bytes.HasPrefix(doc, []byte(fence+"\n")) {
		return Header{}, nil, ErrNoFrontMatter
	}
	rest := doc[len(fence)+1:]
	end := bytes.Index(rest, []byte("\n"+fence+"\n"))
	if end < 0 {
		return Header{}, nil, ErrNoFrontMatter
	}
	var h Header
	if err := yaml.Unmarshal(rest[:end], &h); err != nil {
		return Header{}, nil, fmt.Errorf("decode front matter: %w", err)
	}
	body := bytes.TrimLeft(rest[end+len(fence)+2:], "\n")
	return h, body, nil
}
