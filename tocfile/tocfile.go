// Package tocfile reads table-of-contents files that describe the outline
// to add to a document.
//
// JSON files hold a flat object of title to 0-based page index. Markdown and
// HTML files hold nested lists of links whose fragment is a 1-based
// "#page=N" open parameter, the form viewers accept in URLs.
package tocfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wudi/pdfoutline/outline"
)

// ErrInvalidTOC is returned for files whose content cannot describe an outline.
var ErrInvalidTOC = errors.New("invalid table of contents")

type Format string

const (
	FormatAuto     Format = ""
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts a format name or a common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "auto":
		return FormatAuto, nil
	case "json", "jsonc":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm", "xhtml":
		return FormatHTML, nil
	}
	return FormatAuto, fmt.Errorf("unknown toc format %q (want json, markdown or html)", s)
}

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return FormatAuto, fmt.Errorf("cannot detect toc format of %q: no extension", path)
	}
	f, err := ParseFormat(ext)
	if err != nil || f == FormatAuto {
		return FormatAuto, fmt.Errorf("cannot detect toc format of %q", path)
	}
	return f, nil
}

// TOC is a loaded table of contents. JSON input fills Flat; the list formats
// fill Tree.
type TOC struct {
	Flat map[string]int
	Tree []outline.Entry
}

// IsFlat reports whether the outline came from a title to page mapping.
func (t TOC) IsFlat() bool { return t.Flat != nil }

// Len counts every entry, nested ones included.
func (t TOC) Len() int {
	if t.Flat != nil {
		return len(t.Flat)
	}
	var count func([]outline.Entry) int
	count = func(list []outline.Entry) int {
		n := len(list)
		for _, e := range list {
			n += count(e.Children)
		}
		return n
	}
	return count(t.Tree)
}

// Load reads path. FormatAuto selects the parser by extension.
func Load(path string, format Format) (TOC, error) {
	if format == FormatAuto {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return TOC{}, err
		}
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is user supplied
	if err != nil {
		return TOC{}, fmt.Errorf("read toc: %w", err)
	}
	toc, err := Parse(data, format)
	if err != nil {
		return TOC{}, fmt.Errorf("%s: %w", path, err)
	}
	return toc, nil
}

func Parse(data []byte, format Format) (TOC, error) {
	switch format {
	case FormatJSON:
		flat, err := parseJSON(data)
		if err != nil {
			return TOC{}, err
		}
		return TOC{Flat: flat}, nil
	case FormatMarkdown:
		tree, err := parseMarkdown(data)
		if err != nil {
			return TOC{}, err
		}
		return TOC{Tree: tree}, nil
	case FormatHTML:
		tree, err := parseHTML(data)
		if err != nil {
			return TOC{}, err
		}
		return TOC{Tree: tree}, nil
	}
	return TOC{}, fmt.Errorf("unsupported toc format %q", format)
}

// pageFromFragment extracts the 0-based page index from a link target such
// as "#page=12" or "#page=12&zoom=100".
func pageFromFragment(href string) (int, error) {
	idx := strings.IndexByte(href, '#')
	if idx < 0 {
		return 0, fmt.Errorf("%w: link %q has no #page fragment", ErrInvalidTOC, href)
	}
	for _, param := range strings.Split(href[idx+1:], "&") {
		key, value, ok := strings.Cut(param, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "page") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 {
			return 0, fmt.Errorf("%w: link %q: page must be a positive integer", ErrInvalidTOC, href)
		}
		return n - 1, nil
	}
	return 0, fmt.Errorf("%w: link %q has no page parameter", ErrInvalidTOC, href)
}

// normalizeTitle collapses runs of whitespace left over from markup.
func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
