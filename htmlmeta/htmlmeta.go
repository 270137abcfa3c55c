// Package htmlmeta derives lightweight metadata from a raw extracted HTML
// blob: the document title, the visible text, and a markdown preview.
//
// The raw HTML stored in the catalog is never modified; this package only
// produces derived fields. Derivation is best-effort — unparseable HTML
// yields zero values, never an ingestion failure.
package htmlmeta

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PreviewLimit caps the stored markdown preview in bytes.
const PreviewLimit = 4096

// Meta holds fields derived from one HTML blob.
type Meta struct {
	Title    string
	Text     string // visible text, whitespace-normalized
	Markdown string // sanitized markdown preview, at most PreviewLimit bytes
}

// Deriver converts raw HTML into Meta. Safe for concurrent use.
type Deriver struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// NewDeriver builds a Deriver with the UGC sanitation policy and a
// commonmark+table converter.
func NewDeriver() *Deriver {
	return &Deriver{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Derive parses rawHTML and returns whatever could be extracted.
// originURL scopes relative links during markdown conversion.
func (d *Deriver) Derive(rawHTML, originURL string) Meta {
	var m Meta

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err == nil {
		m.Title = findTitle(doc)
		m.Text = collectText(doc)
	}

	sanitized := d.policy.Sanitize(rawHTML)
	md, err := d.md.ConvertString(sanitized, converter.WithDomain(originURL))
	if err == nil {
		md = strings.TrimSpace(md)
		if len(md) > PreviewLimit {
			md = md[:PreviewLimit]
		}
		m.Markdown = md
	}
	return m
}

// findTitle extracts the <title> text.
func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		if n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// collectText extracts all visible text from a node subtree, skipping
// script/style/noscript.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
