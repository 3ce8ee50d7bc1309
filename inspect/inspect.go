// Package inspect reads the outline back from a finished file with an
// independent PDF reader, so what was written can be checked the way a
// viewer would see it.
package inspect

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// maxItems bounds the walk over /Next chains that loop.
const maxItems = 1 << 16

var errTooManyItems = errors.New("outline has too many items or a cycle")

// Item is one outline entry as read from a file. Page is the 0-based index
// of the destination page, or -1 when it cannot be resolved.
type Item struct {
	Title    string
	Page     int
	View     string
	Children []Item
}

// Outline opens path and returns its outline tree. A file without an
// outline yields no items and no error.
func Outline(path string) ([]Item, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	pages := pageIndex(reader)
	root := reader.Trailer().Key("Root").Key("Outlines")
	if root.IsNull() {
		return nil, nil
	}
	budget := maxItems
	return readItems(root.Key("First"), pages, &budget)
}

func readItems(v pdflib.Value, pages map[string]int, budget *int) ([]Item, error) {
	var items []Item
	for ; !v.IsNull(); v = v.Key("Next") {
		*budget--
		if *budget < 0 {
			return nil, errTooManyItems
		}
		item := Item{Title: v.Key("Title").Text(), Page: -1}
		dest := v.Key("Dest")
		if dest.IsNull() {
			dest = v.Key("A").Key("D")
		}
		if dest.Kind() == pdflib.Array && dest.Len() > 0 {
			if ref, ok := destPage(dest); ok {
				if idx, ok := pages[ref]; ok {
					item.Page = idx
				}
			}
			item.View = dest.Index(1).Name()
		}
		kids, err := readItems(v.Key("First"), pages, budget)
		if err != nil {
			return nil, err
		}
		item.Children = kids
		items = append(items, item)
	}
	return items, nil
}

// maxTreeDepth bounds the walk over page trees whose /Kids loop.
const maxTreeDepth = 64

var (
	refArray  = regexp.MustCompile(`^\[(\d+ \d+ R( \d+ \d+ R)*)?\]$`)
	refToken  = regexp.MustCompile(`\d+ \d+ R`)
	leadedRef = regexp.MustCompile(`^\[(\d+ \d+ R)[\] ]`)
)

// pageIndex maps the reference of every page object, as the reader prints
// it ("12 0 R"), to its 0-based position in the /Kids tree. The reader
// resolves references on access, so the printed /Kids array is the only
// place their numbers show. Pages that are not referenced indirectly have
// no key, and destinations pointing at them stay unresolved.
func pageIndex(r *pdflib.Reader) map[string]int {
	out := make(map[string]int)
	next := 0
	var walk func(node pdflib.Value, depth int)
	walk = func(node pdflib.Value, depth int) {
		if depth > maxTreeDepth {
			return
		}
		kids := node.Key("Kids")
		var refs []string
		if printed := kids.String(); refArray.MatchString(printed) {
			refs = refToken.FindAllString(printed, -1)
		}
		for i := 0; i < kids.Len(); i++ {
			kid := kids.Index(i)
			if kid.Key("Type").Name() == "Pages" {
				walk(kid, depth+1)
				continue
			}
			if i < len(refs) {
				if _, dup := out[refs[i]]; !dup {
					out[refs[i]] = next
				}
			}
			next++
		}
	}
	walk(r.Trailer().Key("Root").Key("Pages"), 0)
	return out
}

// destPage returns the printed reference of the page an explicit
// destination array targets.
func destPage(dest pdflib.Value) (string, bool) {
	m := leadedRef.FindStringSubmatch(dest.String())
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Fprint writes items as an indented list, one per line, with 1-based page
// numbers.
func Fprint(w io.Writer, items []Item) error {
	var walk func([]Item, int) error
	walk = func(list []Item, depth int) error {
		for _, it := range list {
			page := "?"
			if it.Page >= 0 {
				page = fmt.Sprint(it.Page + 1)
			}
			if _, err := fmt.Fprintf(w, "%s%s\tpage %s\n", strings.Repeat("  ", depth), it.Title, page); err != nil {
				return err
			}
			if err := walk(it.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(items, 0)
}
