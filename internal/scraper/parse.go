package scraper

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// parseBoardIndex extracts article entries from a board index page.
// Deleted posts render a .r-ent block without a title link and are
// skipped. Entries come back in page order, newest first.
func parseBoardIndex(r io.Reader, baseURL, board string) ([]Article, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var entries []Article
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "r-ent") {
			if entry, ok := parseEntry(n, baseURL, board); ok {
				entries = append(entries, entry)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return entries, nil
}

func parseEntry(n *html.Node, baseURL, board string) (Article, bool) {
	titleDiv := findByClass(n, "title")
	if titleDiv == nil {
		return Article{}, false
	}

	link := findElement(titleDiv, "a")
	if link == nil {
		return Article{}, false
	}

	entry := Article{
		Title: strings.TrimSpace(textContent(link)),
		Link:  baseURL + attrValue(link, "href"),
		Board: board,
	}

	if authorDiv := findByClass(n, "author"); authorDiv != nil {
		entry.Author = strings.TrimSpace(textContent(authorDiv))
	}
	if dateDiv := findByClass(n, "date"); dateDiv != nil {
		entry.Date = strings.TrimSpace(textContent(dateDiv))
	}

	return entry, true
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func findByClass(n *html.Node, class string) *html.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && hasClass(child, class) {
			return child
		}
		if found := findByClass(child, class); found != nil {
			return found
		}
	}
	return nil
}

func findElement(n *html.Node, tag string) *html.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == tag {
			return child
		}
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
