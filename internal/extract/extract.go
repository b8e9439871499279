// Package extract turns fetched page content into the plain text that gets
// indexed. HTML is reduced to its visible text with block elements on their
// own lines, or converted to Markdown.
package extract

import (
	"fmt"
	"io"
	"mime"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// Output formats for HTML content
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// MaxContentSize bounds how much content FromReader consumes
const MaxContentSize = 10 << 20

// hidden lists elements whose content is never visible page text
const hidden = "script, style, noscript, template, svg, iframe, nav, head"

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "header": true, "hr": true, "li": true, "main": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

// Page is extracted page content
type Page struct {
	Title string
	Text  string
}

// Text returns the visible text of an HTML document
func Text(doc string) (string, error) {
	page, err := parse(doc)
	if err != nil {
		return "", err
	}
	return page.Text, nil
}

// Parse returns the title and visible text of an HTML document
func Parse(doc string) (*Page, error) {
	return parse(doc)
}

func parse(doc string) (*Page, error) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %w", types.ErrInvalidInput, err)
	}

	title := strings.TrimSpace(d.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(d.Find("h1").First().Text())
	}

	d.Find(hidden).Remove()

	root := d.Find("body")
	if root.Length() == 0 {
		root = d.Selection
	}

	var b strings.Builder
	for _, n := range root.Nodes {
		writeText(&b, n)
	}

	return &Page{Title: title, Text: b.String()}, nil
}

// writeText appends visible text under n, putting block elements on their
// own lines
func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode, html.DocumentNode:
	default:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

// Markdown converts an HTML document to Markdown. Relative links resolve
// against baseURL.
func Markdown(doc, baseURL string) (string, error) {
	converter := md.NewConverter(baseURL, true, nil)
	converter.Remove("script", "style", "noscript", "template", "svg", "iframe", "nav")

	out, err := converter.ConvertString(doc)
	if err != nil {
		return "", fmt.Errorf("%w: failed to convert HTML: %w", types.ErrInvalidInput, err)
	}
	return out, nil
}

// FromReader reads content of the given MIME type. HTML is extracted in
// format; any other type is returned as text.
func FromReader(r io.Reader, contentType, baseURL, format string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxContentSize))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read content: %w", types.ErrInvalidInput, err)
	}

	if !IsHTML(contentType) {
		return string(data), nil
	}

	switch format {
	case FormatMarkdown:
		return Markdown(string(data), baseURL)
	case FormatText, "":
		return Text(string(data))
	default:
		return "", fmt.Errorf("%w: unknown format %q", types.ErrInvalidInput, format)
	}
}

// IsHTML reports whether contentType names an HTML document
func IsHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
