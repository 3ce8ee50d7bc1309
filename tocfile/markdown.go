package tocfile

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/wudi/pdfoutline/outline"
)

// parseMarkdown reads every top-level list in the document. Each item must
// carry a link to "#page=N"; nested lists become children.
func parseMarkdown(src []byte) ([]outline.Entry, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var entries []outline.Entry
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		list, ok := n.(*ast.List)
		if !ok {
			continue
		}
		items, err := markdownList(list, src)
		if err != nil {
			return nil, err
		}
		entries = append(entries, items...)
	}
	return entries, nil
}

func markdownList(list *ast.List, src []byte) ([]outline.Entry, error) {
	var entries []outline.Entry
	for n := list.FirstChild(); n != nil; n = n.NextSibling() {
		item, ok := n.(*ast.ListItem)
		if !ok {
			continue
		}
		entry, err := markdownItem(item, src)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func markdownItem(item *ast.ListItem, src []byte) (outline.Entry, error) {
	var link *ast.Link
	var children []outline.Entry
	for n := item.FirstChild(); n != nil; n = n.NextSibling() {
		if sub, ok := n.(*ast.List); ok {
			kids, err := markdownList(sub, src)
			if err != nil {
				return outline.Entry{}, err
			}
			children = append(children, kids...)
			continue
		}
		if link == nil {
			link = firstLink(n)
		}
	}
	if link == nil {
		return outline.Entry{}, fmt.Errorf("%w: list item %q has no page link", ErrInvalidTOC, nodeText(item, src))
	}
	page, err := pageFromFragment(string(link.Destination))
	if err != nil {
		return outline.Entry{}, err
	}
	return outline.Entry{
		Title:    normalizeTitle(nodeText(link, src)),
		Page:     page,
		Children: children,
	}, nil
}

func firstLink(n ast.Node) *ast.Link {
	var found *ast.Link
	_ = ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if l, ok := n.(*ast.Link); ok {
			found = l
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

// nodeText concatenates the inline text below n, skipping nested lists.
func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.List:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
