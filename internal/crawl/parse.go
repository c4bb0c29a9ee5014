package crawl

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/project-registry/internal/scrape"
)

// Keywords mark a headline as an underground plant report.
var Keywords = []string{
	"地下式", "全地下", "地埋式", "下沉式", "地下污水",
	"地下厂", "箱体", "地下空间", "覆土", "地下一层", "地下二层",
}

var publishDate = regexp.MustCompile(`\d{4}[-/.年]\d{1,2}[-/.月]\d{1,2}日?`)

// HasKeyword reports whether text mentions an underground plant.
func HasKeyword(text string) bool {
	for _, kw := range Keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ParseList pulls keyword-matching headlines out of a search result page.
// Links are made absolute against base and deduplicated.
func ParseList(doc *html.Node, source string, base *url.URL) []Item {
	anchors := scrape.FindAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.A && scrape.Attr(n, "href") != ""
	})

	seen := make(map[string]bool)
	var items []Item
	for _, a := range anchors {
		title := scrape.NodeText(a)
		if title == "" || !HasKeyword(title) {
			continue
		}
		link := absolute(scrape.Attr(a, "href"), base)
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true

		box := container(a)
		items = append(items, Item{
			Source:      source,
			Title:       strings.Join(strings.Fields(title), " "),
			URL:         link,
			Summary:     summary(box, a, title),
			PublishTime: publishDate.FindString(scrape.NodeText(box)),
		})
	}
	return items
}

func absolute(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// container climbs from a headline link to its list entry.
func container(a *html.Node) *html.Node {
	n := a.Parent
	for depth := 0; n != nil && depth < 5; depth++ {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Li, atom.Dl, atom.Article:
				return n
			case atom.Body:
				return a.Parent
			case atom.Div:
				cls := scrape.Attr(n, "class")
				if strings.Contains(cls, "item") || strings.Contains(cls, "list") {
					return n
				}
			}
		}
		n = n.Parent
	}
	return a.Parent
}

var summaryClasses = []string{"summary", "intro", "desc", "content", "abstract"}

func summary(box, a *html.Node, title string) string {
	if box == nil {
		return ""
	}
	n := scrape.Find(box, func(n *html.Node) bool {
		if n.Type != html.ElementNode || contains(n, a) {
			return false
		}
		if n.DataAtom == atom.P || n.DataAtom == atom.Dd {
			return true
		}
		for _, c := range summaryClasses {
			if scrape.HasClass(n, c) {
				return true
			}
		}
		return false
	})
	if n == nil {
		return ""
	}
	text := scrape.NodeText(n)
	if text == strings.TrimSpace(title) {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// contains reports whether child sits inside n.
func contains(n, child *html.Node) bool {
	for c := child; c != nil; c = c.Parent {
		if c == n {
			return true
		}
	}
	return false
}
