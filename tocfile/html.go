package tocfile

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/wudi/pdfoutline/outline"
)

// parseHTML reads nested <ol>/<ul> lists of <li><a href="#page=N">. When the
// document has a <nav> element only the first one is read, which is where
// EPUB-style navigation documents keep their table of contents.
func parseHTML(data []byte) ([]outline.Entry, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", ErrInvalidTOC, err)
	}
	scope := doc
	if nav := findElement(doc, "nav"); nav != nil {
		scope = nav
	}

	var entries []outline.Entry
	var walkErr error
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if walkErr != nil {
			return
		}
		if isList(n) {
			items, err := htmlList(n)
			if err != nil {
				walkErr = err
				return
			}
			entries = append(entries, items...)
			return
		}
		switch n.Data {
		case "script", "style", "head":
			if n.Type == html.ElementNode {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(scope)
	if walkErr != nil {
		return nil, walkErr
	}
	return entries, nil
}

func htmlList(list *html.Node) ([]outline.Entry, error) {
	var entries []outline.Entry
	for c := list.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		entry, err := htmlItem(c)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func htmlItem(li *html.Node) (outline.Entry, error) {
	var anchor *html.Node
	var children []outline.Entry
	var walkErr error
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if walkErr != nil {
			return
		}
		if isList(n) {
			kids, err := htmlList(n)
			if err != nil {
				walkErr = err
				return
			}
			children = append(children, kids...)
			return
		}
		if anchor == nil && n.Type == html.ElementNode && n.Data == "a" && hasAttr(n, "href") {
			anchor = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	if walkErr != nil {
		return outline.Entry{}, walkErr
	}
	if anchor == nil {
		return outline.Entry{}, fmt.Errorf("%w: list item %q has no page link", ErrInvalidTOC, normalizeTitle(textContent(li)))
	}
	page, err := pageFromFragment(attr(anchor, "href"))
	if err != nil {
		return outline.Entry{}, err
	}
	return outline.Entry{
		Title:    normalizeTitle(textContent(anchor)),
		Page:     page,
		Children: children,
	}, nil
}

func isList(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.Data == "ol" || n.Data == "ul")
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textContent returns the text below n, leaving out nested lists.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		if isList(n) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
