package store

import (
	"fmt"

	"github.com/wudi/pdfoutline/ir/raw"
)

// FromDocument copies the objects reachable from the trailer's /Root and
// /Info into a new store. Objects are renumbered breadth-first from 1 with
// generation 0; references to objects the document lacks become null.
func FromDocument(doc *raw.Document) (*Store, error) {
	if doc == nil || doc.Trailer == nil {
		return nil, fmt.Errorf("%w: no trailer", ErrNoCatalog)
	}
	rootObj, ok := doc.Trailer.Lookup("Root")
	if !ok {
		return nil, fmt.Errorf("%w: trailer has no /Root", ErrNoCatalog)
	}
	rootRef, ok := rootObj.(raw.RefObj)
	if !ok {
		return nil, fmt.Errorf("%w: /Root is not a reference", ErrNoCatalog)
	}
	if _, ok := doc.Lookup(rootRef.R); !ok {
		return nil, fmt.Errorf("%w: /Root %v is missing", ErrNoCatalog, rootRef.R)
	}

	renumber := make(map[raw.ObjectRef]int)
	var order []raw.ObjectRef
	enqueue := func(ref raw.ObjectRef) {
		if _, seen := renumber[ref]; seen {
			return
		}
		if _, exists := doc.Lookup(ref); !exists {
			return
		}
		order = append(order, ref)
		renumber[ref] = len(order)
	}

	enqueue(rootRef.R)
	infoObj, hasInfo := doc.Trailer.Lookup("Info")
	if r, ok := infoObj.(raw.RefObj); ok {
		enqueue(r.R)
	}
	for i := 0; i < len(order); i++ {
		obj, _ := doc.Lookup(order[i])
		raw.VisitRefs(obj, enqueue)
	}

	rewrite := func(ref raw.ObjectRef) raw.Object {
		if n, ok := renumber[ref]; ok {
			return raw.Ref(n, 0)
		}
		return raw.NullObj{}
	}
	st := New()
	for _, ref := range order {
		obj, _ := doc.Lookup(ref)
		st.Append(raw.MapRefs(obj, rewrite))
	}

	if err := st.SetRoot(raw.ObjectRef{Num: renumber[rootRef.R]}); err != nil {
		return nil, err
	}
	if hasInfo {
		switch v := infoObj.(type) {
		case raw.RefObj:
			if n, ok := renumber[v.R]; ok {
				st.info = raw.ObjectRef{Num: n}
			}
		case *raw.DictObj:
			// a direct /Info is not allowed; store it as an object of its own
			st.info = st.Append(raw.MapRefs(v, rewrite))
		}
	}
	st.id = fileID(doc.Trailer)
	st.SetVersion(doc.Version)
	return st, nil
}

func fileID(trailer *raw.DictObj) []raw.StringObj {
	obj, ok := trailer.Lookup("ID")
	if !ok {
		return nil
	}
	arr, ok := obj.(*raw.ArrayObj)
	if !ok || arr.Len() != 2 {
		return nil
	}
	var out []raw.StringObj
	for _, item := range arr.Items {
		s, ok := item.(raw.StringObj)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}
