// Package convert renders extracted post HTML as Markdown with a YAML front
// matter header.
package convert

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/substack-archiver/internal/catalog"
)

// ErrNoPost is returned when Content carries no post.
var ErrNoPost = errors.New("content has no post")

var (
	blankRuns     = regexp.MustCompile(`\n{3,}`)
	headingLine   = regexp.MustCompile(`^#+\s`)
	listItemLine  = regexp.MustCompile(`^\s*[-*]\s`)
	boldOpenSpace = regexp.MustCompile(`\*\*[ \t]+`)
	boldEndSpace  = regexp.MustCompile(`[ \t]+\*\*`)
	escapes       = strings.NewReplacer(`\[`, `[`, `\]`, `]`, `\(`, `(`, `\)`, `)`)
)

// Converter turns Content into a Markdown document.
type Converter struct {
	base string
	conv *md.Converter
}

// New builds a Converter. base is the publication URL used to resolve
// relative image sources.
func New(base string) *Converter {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		Fence:            "```",
		EscapeMode:       "disabled",
	})
	conv.Remove("script", "style")
	conv.AddRules(md.Rule{
		Filter:      []string{"pre"},
		Replacement: fencedCode,
	})
	return &Converter{base: base, conv: conv}
}

func fencedCode(_ string, selec *goquery.Selection, opt *md.Options) *string {
	lang := selec.AttrOr("data-language", "")
	code := selec.Find("code").First()
	text := selec.Text()
	if code.Length() > 0 {
		text = code.Text()
	}
	fence := opt.Fence
	if fence == "" {
		fence = "```"
	}
	block := "\n\n" + fence + lang + "\n" + strings.TrimRight(text, "\n") + "\n" + fence + "\n\n"
	return md.String(block)
}

// Convert renders c.HTML, prepends front matter for c.Post, stores the
// result in c.Markdown and returns it.
func (c *Converter) Convert(content *catalog.Content) (string, error) {
	if content == nil || content.Post == nil {
		return "", ErrNoPost
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content.HTML))
	if err != nil {
		return "", fmt.Errorf("parse content: %w", err)
	}
	preprocess(doc, c.base)

	html, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render preprocessed content: %w", err)
	}
	body, err := c.conv.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}

	out := FrontMatter(*content.Post) + Postprocess(body)
	content.Markdown = out
	return out, nil
}

// Postprocess normalizes converter output: collapsed blank lines, blank
// lines before headings and lists, unescaped brackets, tidy bold markers,
// no trailing whitespace and exactly one final newline.
func Postprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = spaceBlocks(text)
	text = escapes.Replace(text)
	text = boldOpenSpace.ReplaceAllString(text, "** ")
	text = boldEndSpace.ReplaceAllString(text, " **")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text) + "\n"
}

func spaceBlocks(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence && len(out) > 0 {
			prev := out[len(out)-1]
			needsGap := headingLine.MatchString(line) || listItemLine.MatchString(line)
			if needsGap && strings.TrimSpace(prev) != "" {
				out = append(out, "")
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
