// Package store holds a document's objects as an append-only sequence
// numbered 1..Len() with generation 0.
//
// A Store is not safe for concurrent use. Callers keep exclusive access for
// the whole allocate, build, append and patch sequence.
package store

import (
	"fmt"

	"github.com/wudi/pdfoutline/ir/raw"
)

type Store struct {
	objects []raw.Object
	root    raw.ObjectRef
	info    raw.ObjectRef
	pages   []raw.ObjectRef
	id      []raw.StringObj
	version string
}

// New returns an empty store for documents assembled in memory.
func New() *Store {
	return &Store{version: "1.7"}
}

func (s *Store) Len() int { return len(s.objects) }

// Append stores obj under the next free number and returns its reference.
func (s *Store) Append(obj raw.Object) raw.ObjectRef {
	s.objects = append(s.objects, obj)
	return raw.ObjectRef{Num: len(s.objects)}
}

// AppendAll appends objs only if expected names exactly the numbers they
// will receive, Len()+1 onwards. Nothing is appended on mismatch.
func (s *Store) AppendAll(expected []raw.ObjectRef, objs []raw.Object) error {
	if len(expected) != len(objs) {
		return fmt.Errorf("%w: %d references for %d objects", ErrAllocatorDesync, len(expected), len(objs))
	}
	next := len(s.objects) + 1
	for i, ref := range expected {
		if ref.Num != next+i || ref.Gen != 0 {
			return fmt.Errorf("%w: object %d would be stored as %d 0 R, allocated %v", ErrAllocatorDesync, i, next+i, ref)
		}
	}
	s.objects = append(s.objects, objs...)
	return nil
}

func (s *Store) Get(ref raw.ObjectRef) (raw.Object, bool) {
	if ref.Gen != 0 || ref.Num < 1 || ref.Num > len(s.objects) {
		return nil, false
	}
	return s.objects[ref.Num-1], true
}

// Resolve follows obj if it is a reference. Unknown targets resolve to null.
func (s *Store) Resolve(obj raw.Object) raw.Object {
	ref, ok := obj.(raw.RefObj)
	if !ok {
		return obj
	}
	target, ok := s.Get(ref.R)
	if !ok {
		return raw.NullObj{}
	}
	return target
}

func (s *Store) PageCount() int { return len(s.pages) }

// PageRef returns the reference of the page at the 0-based index.
func (s *Store) PageRef(index int) (raw.ObjectRef, error) {
	if index < 0 || index >= len(s.pages) {
		return raw.ObjectRef{}, fmt.Errorf("%w: index %d, document has %d pages", ErrPageOutOfRange, index, len(s.pages))
	}
	return s.pages[index], nil
}

// SetRoot makes ref the document catalog and indexes its page tree.
func (s *Store) SetRoot(ref raw.ObjectRef) error {
	obj, ok := s.Get(ref)
	if !ok {
		return fmt.Errorf("%w: %v", ErrNoCatalog, ref)
	}
	catalog, ok := obj.(*raw.DictObj)
	if !ok {
		return fmt.Errorf("%w: %v is a %s", ErrNoCatalog, ref, obj.Type())
	}
	s.root = ref
	s.pages = s.collectPages(catalog)
	return nil
}

func (s *Store) CatalogRef() raw.ObjectRef { return s.root }

// Catalog returns the catalog dictionary, or nil before SetRoot.
func (s *Store) Catalog() *raw.DictObj {
	obj, ok := s.Get(s.root)
	if !ok {
		return nil
	}
	d, _ := obj.(*raw.DictObj)
	return d
}

func (s *Store) CatalogEntry(key string) (raw.Object, bool) {
	return s.Catalog().Lookup(key)
}

// SetCatalogEntry sets key in the catalog; a nil value removes it.
func (s *Store) SetCatalogEntry(key string, value raw.Object) error {
	catalog := s.Catalog()
	if catalog == nil {
		return ErrNoCatalog
	}
	if value == nil {
		catalog.Delete(key)
		return nil
	}
	catalog.Set(raw.NameObj{Val: key}, value)
	return nil
}

// Info returns the document information dictionary reference, if any.
func (s *Store) Info() (raw.ObjectRef, bool) { return s.info, !s.info.IsZero() }

func (s *Store) SetInfo(ref raw.ObjectRef) error {
	if _, ok := s.Get(ref); !ok {
		return fmt.Errorf("%w: info %v", ErrUnknownObject, ref)
	}
	s.info = ref
	return nil
}

// ID returns the file identifier pair carried over from the source.
func (s *Store) ID() []raw.StringObj { return s.id }

func (s *Store) Version() string { return s.version }

func (s *Store) SetVersion(v string) {
	if v != "" {
		s.version = v
	}
}

// collectPages lists page leaves in document order. Nodes already visited
// are skipped, so malformed trees with cycles terminate.
func (s *Store) collectPages(catalog *raw.DictObj) []raw.ObjectRef {
	pagesRef, ok := catalog.RefValue("Pages")
	if !ok {
		return nil
	}
	var pages []raw.ObjectRef
	seen := make(map[raw.ObjectRef]bool)
	var walk func(ref raw.ObjectRef)
	walk = func(ref raw.ObjectRef) {
		if seen[ref] {
			return
		}
		seen[ref] = true
		obj, ok := s.Get(ref)
		if !ok {
			return
		}
		node, ok := obj.(*raw.DictObj)
		if !ok {
			return
		}
		typ, _ := node.NameValue("Type")
		kidsObj, hasKids := node.Lookup("Kids")
		if typ == "Page" || (typ != "Pages" && !hasKids) {
			pages = append(pages, ref)
			return
		}
		kids, ok := s.Resolve(kidsObj).(*raw.ArrayObj)
		if !ok {
			return
		}
		for _, kid := range kids.Items {
			if r, ok := kid.(raw.RefObj); ok {
				walk(r.R)
			}
		}
	}
	walk(pagesRef)
	return pages
}
