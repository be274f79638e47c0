// Package htmlutil extracts human-readable text from HTML pages.
package htmlutil

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/happyhackingspace/dil/internal/textutil"
)

// skipTags never contribute visible text.
var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"svg":      true,
	"iframe":   true,
}

// blockTags separate their text from neighbouring text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "td": true, "th": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true, "blockquote": true,
	"pre": true, "option": true,
}

// LoadHTML parses HTML bytes into a goquery Document.
func LoadHTML(r io.Reader) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(r)
}

// LoadHTMLString parses HTML string into a goquery Document.
func LoadHTMLString(htmlStr string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
}

// LooksLikeHTML reports whether content appears to be an HTML document or fragment.
func LooksLikeHTML(content string) bool {
	s := strings.ToLower(strings.TrimSpace(content))
	if strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html") {
		return true
	}
	if !strings.HasPrefix(s, "<") {
		return false
	}
	for _, tag := range []string{"<body", "<div", "<p>", "<p ", "<span", "<head", "<article"} {
		if strings.Contains(s, tag) {
			return true
		}
	}
	return false
}

// VisibleText returns the text a reader would see in the document body,
// with whitespace collapsed. Scripts, styles and other non-rendered elements are skipped.
func VisibleText(doc *goquery.Document) string {
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	var b strings.Builder
	for _, n := range root.Nodes {
		walkText(n, &b)
	}
	return strings.TrimSpace(textutil.NormalizeWhitespaces(b.String()))
}

func walkText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipTags[n.Data] {
			return
		}
		if _, ok := attr(n, "hidden"); ok {
			return
		}
		if v, _ := attr(n, "aria-hidden"); v == "true" {
			return
		}
	case html.CommentNode:
		return
	}
	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, b)
	}
	if block {
		b.WriteByte(' ')
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// DeclaredLanguage returns the primary subtag of the document's lang attribute
// (for example "fr" for <html lang="fr-CA">), or "".
func DeclaredLanguage(doc *goquery.Document) string {
	lang, ok := doc.Find("html").First().Attr("lang")
	if !ok {
		return ""
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if idx := strings.IndexAny(lang, "-_"); idx >= 0 {
		lang = lang[:idx]
	}
	return lang
}

// Title returns the document title with whitespace collapsed.
func Title(doc *goquery.Document) string {
	return strings.TrimSpace(textutil.NormalizeWhitespaces(doc.Find("title").First().Text()))
}
