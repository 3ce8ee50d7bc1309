// Package outline builds document outline (bookmark) trees inside an object
// store and links them from the catalog.
package outline

import (
	"sort"

	"github.com/wudi/pdfoutline/ir/raw"
	"github.com/wudi/pdfoutline/observability"
	"github.com/wudi/pdfoutline/store"
)

// Store is the object store an outline is written into. *store.Store
// implements it.
type Store interface {
	PageResolver
	Len() int
	AppendAll(expected []raw.ObjectRef, objs []raw.Object) error
	Catalog() *raw.DictObj
	CatalogEntry(key string) (raw.Object, bool)
	SetCatalogEntry(key string, value raw.Object) error
}

var _ Store = (*store.Store)(nil)

// Entry is one outline item. Page is 0-based.
type Entry struct {
	Title    string
	Page     int
	Children []Entry
}

// PageModeUnchanged leaves the catalog's /PageMode as it is.
const PageModeUnchanged = "none"

type Options struct {
	View View
	// PageMode is written to the catalog's /PageMode. Empty and
	// PageModeUnchanged leave the catalog's value alone, so only /Outlines
	// changes.
	PageMode string
	Logger   observability.Logger
}

type Builder struct {
	view     View
	pageMode string
	log      observability.Logger
}

func NewBuilder(opts Options) *Builder {
	b := &Builder{view: opts.View, pageMode: opts.PageMode, log: opts.Logger}
	if b.pageMode == "" {
		b.pageMode = PageModeUnchanged
	}
	if b.log == nil {
		b.log = observability.NopLogger{}
	}
	return b
}

// Result describes an outline written to a store.
type Result struct {
	Root  raw.ObjectRef
	Items []raw.ObjectRef // append order
	Count int
}

// AddFlat writes a one-level outline from a title to page-index mapping.
// Items are ordered by page, then by title.
func (b *Builder) AddFlat(st Store, mapping map[string]int) (Result, error) {
	entries := make([]Entry, 0, len(mapping))
	for title, page := range mapping {
		entries = append(entries, Entry{Title: title, Page: page})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Page != entries[j].Page {
			return entries[i].Page < entries[j].Page
		}
		return entries[i].Title < entries[j].Title
	})
	return b.AddTree(st, entries)
}

// node is an Entry at its preorder position i; its object is ids[i].
type node struct {
	entry    Entry
	parent   int // 0 is the outline root
	children []int
	desc     int
}

// AddTree writes a nested outline. Siblings keep their input order. Every
// destination is validated before the store is touched, so on error the
// store is unchanged.
func (b *Builder) AddTree(st Store, entries []Entry) (Result, error) {
	nodes := flatten(entries)
	n := len(nodes) - 1
	if n == 0 {
		return Result{}, ErrEmptyOutline
	}
	if st.Catalog() == nil {
		return Result{}, store.ErrNoCatalog
	}
	ids, err := Allocate(st.Len(), n)
	if err != nil {
		return Result{}, err
	}

	objs := make([]raw.Object, n+1)
	for i := 1; i <= n; i++ {
		dest, err := DestinationWithView(st, nodes[i].entry.Page, b.view)
		if err != nil {
			b.log.Debug("rejecting outline entry", observability.String("title", nodes[i].entry.Title), observability.Error("error", err))
			return Result{}, err
		}
		item := raw.Dict()
		item.Set(raw.NameObj{Val: "Title"}, raw.TextString(nodes[i].entry.Title))
		item.Set(raw.NameObj{Val: "Parent"}, raw.RefTo(ids[nodes[i].parent]))
		item.Set(raw.NameObj{Val: "Dest"}, dest)
		objs[i] = item
	}

	for i := range nodes {
		kids := nodes[i].children
		if len(kids) == 0 {
			continue
		}
		for k, c := range kids {
			item := objs[c].(*raw.DictObj)
			if k > 0 {
				item.Set(raw.NameObj{Val: "Prev"}, raw.RefTo(ids[kids[k-1]]))
			}
			if k < len(kids)-1 {
				item.Set(raw.NameObj{Val: "Next"}, raw.RefTo(ids[kids[k+1]]))
			}
		}
		if i == 0 {
			continue
		}
		parent := objs[i].(*raw.DictObj)
		parent.Set(raw.NameObj{Val: "First"}, raw.RefTo(ids[kids[0]]))
		parent.Set(raw.NameObj{Val: "Last"}, raw.RefTo(ids[kids[len(kids)-1]]))
		parent.Set(raw.NameObj{Val: "Count"}, raw.NumberInt(int64(nodes[i].desc)))
	}

	root := raw.Dict()
	root.Set(raw.NameObj{Val: "Type"}, raw.NameLiteral("Outlines"))
	top := nodes[0].children
	root.Set(raw.NameObj{Val: "First"}, raw.RefTo(ids[top[0]]))
	root.Set(raw.NameObj{Val: "Last"}, raw.RefTo(ids[top[len(top)-1]]))
	root.Set(raw.NameObj{Val: "Count"}, raw.NumberInt(int64(n)))
	objs[0] = root

	if err := st.AppendAll(ids, objs); err != nil {
		return Result{}, err
	}

	if old, ok := st.CatalogEntry("Outlines"); ok {
		b.log.Warn("replacing existing document outline", observability.String("previous", describe(old)))
	}
	if err := st.SetCatalogEntry("Outlines", raw.RefTo(ids[0])); err != nil {
		return Result{}, err
	}
	if b.pageMode != PageModeUnchanged {
		if err := st.SetCatalogEntry("PageMode", raw.NameLiteral(b.pageMode)); err != nil {
			return Result{}, err
		}
	}

	b.log.Debug("outline written", observability.Ref("root", ids[0]), observability.Int("items", n))
	return Result{Root: ids[0], Items: ids[1:], Count: n}, nil
}

// flatten lays entries out in preorder behind a synthetic root at index 0.
func flatten(entries []Entry) []node {
	nodes := []node{{}}
	var walk func(parent int, list []Entry) int
	walk = func(parent int, list []Entry) int {
		total := 0
		for _, e := range list {
			idx := len(nodes)
			nodes = append(nodes, node{entry: e, parent: parent})
			nodes[parent].children = append(nodes[parent].children, idx)
			d := walk(idx, e.Children)
			nodes[idx].desc = d
			total += 1 + d
		}
		return total
	}
	nodes[0].desc = walk(0, entries)
	return nodes
}

func describe(obj raw.Object) string {
	if r, ok := obj.(raw.RefObj); ok {
		return r.R.String()
	}
	return obj.Type()
}
