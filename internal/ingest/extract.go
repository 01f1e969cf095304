package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// extract returns the indexable text of a file and the title found in it,
// if any. Markdown is rendered and HTML is stripped to its visible text;
// everything else is taken verbatim.
func extract(name string, data []byte) (text, title string, err error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		var buf bytes.Buffer
		if err := markdown.Convert(data, &buf); err != nil {
			return "", "", fmt.Errorf("rendering markdown: %w", err)
		}
		return fromHTML(buf.Bytes())
	case ".html", ".htm":
		return fromHTML(data)
	default:
		return string(data), "", nil
	}
}

// blockTags end a line of extracted text.
const blockTags = "p, li, h1, h2, h3, h4, h5, h6, pre, blockquote, tr, br, div, section, article"

func fromHTML(data []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("parsing html: %w", err)
	}
	title := collapse(doc.Find("title").First().Text())
	if title == "" {
		title = collapse(doc.Find("h1").First().Text())
	}

	doc.Find("script, style, noscript, head").Remove()
	doc.Find(blockTags).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = collapse(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), title, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
