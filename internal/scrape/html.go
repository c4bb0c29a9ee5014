package scrape

import (
	"bytes"
	"mime"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Template: true,
}

// block elements end a line of text.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Table: true, atom.Dd: true, atom.Dt: true,
}

// mainSelectors locate the article body, tried in order.
var mainSelectors = []struct {
	tag   atom.Atom
	class string
	id    string
}{
	{tag: atom.Article},
	{class: "content"},
	{class: "article"},
	{id: "content"},
	{class: "detail"},
}

var (
	inlineSpace = regexp.MustCompile(`[ \t\p{Zs}]+`)
	blankLines  = regexp.MustCompile(`\n\s*\n+`)
)

// DecodeBody converts body to UTF-8. The Content-Type charset wins; without
// one the encoding is sniffed from BOM and meta tags.
func DecodeBody(body []byte, contentType string) ([]byte, error) {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if name := params["charset"]; name != "" {
			if enc, err := htmlindex.Get(name); err == nil {
				out, err := enc.NewDecoder().Bytes(body)
				return out, eris.Wrapf(err, "scrape: decode %s", name)
			}
		}
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return body, nil
	}
	out, err := enc.NewDecoder().Bytes(body)
	return out, eris.Wrapf(err, "scrape: decode %s", name)
}

// ParseHTML parses a UTF-8 document.
func ParseHTML(body []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse html")
	}
	return doc, nil
}

// PageTitle returns the first <h1>, falling back to <title>.
func PageTitle(doc *html.Node) string {
	if h := Find(doc, func(n *html.Node) bool { return n.DataAtom == atom.H1 }); h != nil {
		if t := NodeText(h); t != "" {
			return t
		}
	}
	if t := Find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		return NodeText(t)
	}
	return ""
}

// MainText returns the text of the article container, or of the whole
// body when no known container is present.
func MainText(doc *html.Node) string {
	for _, sel := range mainSelectors {
		n := Find(doc, func(n *html.Node) bool {
			if n.Type != html.ElementNode {
				return false
			}
			switch {
			case sel.tag != 0:
				return n.DataAtom == sel.tag
			case sel.class != "":
				return HasClass(n, sel.class)
			default:
				return Attr(n, "id") == sel.id
			}
		})
		if n != nil {
			if t := NodeText(n); t != "" {
				return t
			}
		}
	}
	if body := Find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body }); body != nil {
		return NodeText(body)
	}
	return NodeText(doc)
}

// NodeText renders the visible text under n, one line per block element.
func NodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && block[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(n)
	return cleanText(b.String())
}

func cleanText(s string) string {
	lines := strings.Split(inlineSpace.ReplaceAllString(s, " "), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n"))
}

// Find returns the first node in document order matching pred.
func Find(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := Find(c, pred); f != nil {
			return f
		}
	}
	return nil
}

// FindAll returns every node matching pred, in document order.
func FindAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if pred(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// Attr returns the value of attribute key, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasClass reports whether n carries class cls.
func HasClass(n *html.Node, cls string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == cls {
			return true
		}
	}
	return false
}
