package processor

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseSelectors are removed before text extraction.
const noiseSelectors = "script, style, nav, footer, header, aside, noscript, template"

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "pre": true, "blockquote": true,
	"table": true, "tr": true, "dd": true, "dt": true, "figcaption": true,
}

// HTMLToText strips page chrome and returns the visible text. Block-level
// elements become blank-line separated paragraphs so the chunker can split
// them; text inside a block is joined line by line.
func HTMLToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find(noiseSelectors).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	w := &paragraphWriter{}
	for _, n := range root.Nodes {
		w.walk(n)
	}
	w.flush()

	return strings.Join(w.paragraphs, "\n\n"), nil
}

type paragraphWriter struct {
	paragraphs []string
	lines      []string
}

func (w *paragraphWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
			w.lines = append(w.lines, t)
		}
		return
	case html.ElementNode:
		if n.Data == "br" {
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		w.flush()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if block {
		w.flush()
	}
}

func (w *paragraphWriter) flush() {
	if len(w.lines) == 0 {
		return
	}
	w.paragraphs = append(w.paragraphs, strings.Join(w.lines, "\n"))
	w.lines = nil
}
