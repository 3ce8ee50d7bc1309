package outline

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfoutline/ir/raw"
	"github.com/wudi/pdfoutline/store"
)

// newStore returns a store holding a catalog, a page tree and the given
// number of pages, plus one unrelated object so numbering does not start
// right after the pages.
func newStore(t *testing.T, pages int) *store.Store {
	t.Helper()
	st := store.New()
	catalog := raw.Dict()
	catalog.Set(raw.NameObj{Val: "Type"}, raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameObj{Val: "Pages"}, raw.Ref(2, 0))
	catalogRef := st.Append(catalog)

	tree := raw.Dict()
	tree.Set(raw.NameObj{Val: "Type"}, raw.NameLiteral("Pages"))
	treeRef := st.Append(tree)
	kids := raw.NewArray()
	for i := 0; i < pages; i++ {
		page := raw.Dict()
		page.Set(raw.NameObj{Val: "Type"}, raw.NameLiteral("Page"))
		page.Set(raw.NameObj{Val: "Parent"}, raw.RefTo(treeRef))
		kids.Append(raw.RefTo(st.Append(page)))
	}
	tree.Set(raw.NameObj{Val: "Kids"}, kids)
	tree.Set(raw.NameObj{Val: "Count"}, raw.NumberInt(int64(pages)))
	st.Append(raw.NewStream(raw.Dict(), []byte("unrelated")))

	require.NoError(t, st.SetRoot(catalogRef))
	require.Equal(t, pages, st.PageCount())
	return st
}

func getDict(t *testing.T, st *store.Store, ref raw.ObjectRef) *raw.DictObj {
	t.Helper()
	obj, ok := st.Get(ref)
	require.True(t, ok, "object %v missing", ref)
	d, ok := obj.(*raw.DictObj)
	require.True(t, ok, "object %v is %T", ref, obj)
	return d
}

func refOf(t *testing.T, d *raw.DictObj, key string) (raw.ObjectRef, bool) {
	t.Helper()
	return d.RefValue(key)
}

func pageIndex(t *testing.T, st *store.Store, ref raw.ObjectRef) int {
	t.Helper()
	for i := 0; i < st.PageCount(); i++ {
		if r, _ := st.PageRef(i); r == ref {
			return i
		}
	}
	t.Fatalf("%v is not a page", ref)
	return -1
}

type visited struct {
	title string
	page  int
}

// checkFlat walks the outline from the catalog and verifies the sibling
// chain in both directions, parent links and destinations. It returns the
// items in First..Next order.
func checkFlat(t *testing.T, st *store.Store, res Result) []visited {
	t.Helper()
	rootRef, ok := st.Catalog().RefValue("Outlines")
	require.True(t, ok, "catalog has no /Outlines")
	require.Equal(t, res.Root, rootRef)

	root := getDict(t, st, rootRef)
	typ, _ := root.NameValue("Type")
	require.Equal(t, "Outlines", typ)
	count, _ := root.IntValue("Count")
	require.Equal(t, int64(res.Count), count)
	first, _ := refOf(t, root, "First")
	last, _ := refOf(t, root, "Last")

	var out []visited
	var forward []raw.ObjectRef
	cur, prev := first, raw.ObjectRef{}
	for i := 0; ; i++ {
		require.Less(t, i, res.Count, "Next chain longer than Count")
		item := getDict(t, st, cur)
		parent, _ := refOf(t, item, "Parent")
		require.Equal(t, rootRef, parent)
		if p, ok := refOf(t, item, "Prev"); ok {
			require.Equal(t, prev, p)
		} else {
			require.True(t, prev.IsZero(), "only the first item may lack /Prev")
		}

		destObj, _ := item.Lookup("Dest")
		dest := destObj.(*raw.ArrayObj)
		require.Equal(t, 5, dest.Len())
		pageRef := dest.Items[0].(raw.RefObj).R
		require.Equal(t, raw.NameLiteral("XYZ"), dest.Items[1])
		titleObj, _ := item.Lookup("Title")
		out = append(out, visited{
			title: raw.DecodeTextString(titleObj.(raw.StringObj).Bytes),
			page:  pageIndex(t, st, pageRef),
		})
		forward = append(forward, cur)

		next, ok := refOf(t, item, "Next")
		if !ok {
			require.Equal(t, last, cur, "chain must end at /Last")
			break
		}
		prev, cur = cur, next
	}
	require.Len(t, out, res.Count)

	// Prev from Last is the reverse of Next from First
	cur = last
	for i := len(forward) - 1; i >= 0; i-- {
		require.Equal(t, forward[i], cur)
		p, ok := refOf(t, getDict(t, st, cur), "Prev")
		if i == 0 {
			require.False(t, ok)
			break
		}
		cur = p
	}
	return out
}

func TestAllocate(t *testing.T) {
	refs, err := Allocate(7, 3)
	require.NoError(t, err)
	want := []raw.ObjectRef{{Num: 8}, {Num: 9}, {Num: 10}, {Num: 11}}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}

	_, err = Allocate(7, 0)
	require.ErrorIs(t, err, ErrEmptyOutline)
	_, err = Allocate(-1, 2)
	require.Error(t, err)
}

func TestDestination(t *testing.T) {
	st := newStore(t, 3)
	dest, err := Destination(st, 2)
	require.NoError(t, err)
	page, _ := st.PageRef(2)
	want := raw.NewArray(raw.RefTo(page), raw.NameLiteral("XYZ"), raw.NullObj{}, raw.NullObj{}, raw.NullObj{})
	if diff := cmp.Diff(want, dest); diff != "" {
		t.Fatalf("dest mismatch (-want +got):\n%s", diff)
	}

	for _, idx := range []int{-1, 3, 30} {
		_, err := Destination(st, idx)
		require.ErrorIs(t, err, ErrOutOfRangePage, "index %d", idx)
		require.ErrorIs(t, err, store.ErrPageOutOfRange, "index %d", idx)
	}
}

func TestDestinationViews(t *testing.T) {
	st := newStore(t, 1)
	tests := []struct {
		view View
		len  int
	}{
		{ViewXYZ, 5}, {ViewFit, 2}, {ViewFitH, 3}, {ViewFitV, 3}, {ViewFitB, 2},
	}
	for _, tc := range tests {
		t.Run(tc.view.String(), func(t *testing.T) {
			dest, err := DestinationWithView(st, 0, tc.view)
			require.NoError(t, err)
			require.Equal(t, tc.len, dest.Len())
			require.Equal(t, raw.NameLiteral(tc.view.String()), dest.Items[1])

			parsed, err := ParseView(tc.view.String())
			require.NoError(t, err)
			require.Equal(t, tc.view, parsed)
		})
	}
	_, err := ParseView("zoom")
	require.Error(t, err)
	_, err = DestinationWithView(st, 0, View(42))
	require.Error(t, err)
}

func TestAddFlat_TwoChapters(t *testing.T) {
	st := newStore(t, 30)
	before := st.Len()

	res, err := NewBuilder(Options{}).AddFlat(st, map[string]int{"Chapter 1": 0, "Chapter 2": 20})
	require.NoError(t, err)

	require.Equal(t, before+3, st.Len())
	require.Equal(t, raw.ObjectRef{Num: before + 1}, res.Root)
	require.Equal(t, []raw.ObjectRef{{Num: before + 2}, {Num: before + 3}}, res.Items)

	got := checkFlat(t, st, res)
	require.Equal(t, []visited{{"Chapter 1", 0}, {"Chapter 2", 20}}, got)

	root := getDict(t, st, res.Root)
	first, _ := root.RefValue("First")
	last, _ := root.RefValue("Last")
	require.Equal(t, res.Items[0], first)
	require.Equal(t, res.Items[1], last)

	_, ok := st.CatalogEntry("PageMode")
	require.False(t, ok, "page mode is only written on request")
}

func TestAddFlat_TouchesOnlyOutlines(t *testing.T) {
	st := newStore(t, 30)
	before := st.Catalog().SortedKeys()
	pages, _ := st.CatalogEntry("Pages")

	_, err := NewBuilder(Options{}).AddFlat(st, map[string]int{"Chapter 1": 0, "Chapter 2": 20})
	require.NoError(t, err)

	after := st.Catalog().SortedKeys()
	want := append([]string{"Outlines"}, before...)
	sort.Strings(want)
	require.Equal(t, want, after)
	got, _ := st.CatalogEntry("Pages")
	require.Equal(t, pages, got)
}

func TestAddFlat_PageModeOnRequest(t *testing.T) {
	st := newStore(t, 3)
	_, err := NewBuilder(Options{PageMode: "UseOutlines"}).AddFlat(st, map[string]int{"Intro": 1})
	require.NoError(t, err)
	mode, _ := st.Catalog().NameValue("PageMode")
	require.Equal(t, "UseOutlines", mode)
}

func TestAddFlat_SingleEntry(t *testing.T) {
	st := newStore(t, 10)
	before := st.Len()

	res, err := NewBuilder(Options{}).AddFlat(st, map[string]int{"Intro": 5})
	require.NoError(t, err)
	require.Equal(t, before+2, st.Len())

	root := getDict(t, st, res.Root)
	first, _ := root.RefValue("First")
	last, _ := root.RefValue("Last")
	require.Equal(t, first, last)
	count, _ := root.IntValue("Count")
	require.Equal(t, int64(1), count)

	item := getDict(t, st, first)
	_, hasNext := item.Lookup("Next")
	_, hasPrev := item.Lookup("Prev")
	require.False(t, hasNext)
	require.False(t, hasPrev)

	require.Equal(t, []visited{{"Intro", 5}}, checkFlat(t, st, res))
}

func TestAddFlat_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		mapping map[string]int
		want    error
	}{
		{"empty", map[string]int{}, ErrEmptyOutline},
		{"nil", nil, ErrEmptyOutline},
		{"past end", map[string]int{"ok": 1, "bad": 10}, ErrOutOfRangePage},
		{"negative", map[string]int{"bad": -1}, ErrOutOfRangePage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := newStore(t, 10)
			before := st.Len()
			_, err := NewBuilder(Options{}).AddFlat(st, tc.mapping)
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, before, st.Len(), "store must be unchanged")
			_, ok := st.CatalogEntry("Outlines")
			require.False(t, ok)
			_, ok = st.CatalogEntry("PageMode")
			require.False(t, ok)
		})
	}
}

// staleStore reports a length one short, as if another writer appended
// after the outline's references were allocated.
type staleStore struct{ *store.Store }

func (s staleStore) Len() int { return s.Store.Len() - 1 }

func TestAddFlat_AllocatorDesync(t *testing.T) {
	st := newStore(t, 3)
	before := st.Len()
	_, err := NewBuilder(Options{}).AddFlat(staleStore{st}, map[string]int{"A": 0})
	if !errors.Is(err, ErrAllocatorDesync) {
		t.Fatalf("expected ErrAllocatorDesync, got %v", err)
	}
	require.Equal(t, before, st.Len())
}

func TestAddFlat_TieBreakByTitle(t *testing.T) {
	st := newStore(t, 5)
	res, err := NewBuilder(Options{}).AddFlat(st, map[string]int{"b": 2, "a": 2, "c": 0, "Z": 2})
	require.NoError(t, err)
	got := checkFlat(t, st, res)
	require.Equal(t, []visited{{"c", 0}, {"Z", 2}, {"a", 2}, {"b", 2}}, got)
}

func TestAddFlat_RandomMappings(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 25; round++ {
		pages := 1 + rng.Intn(40)
		n := 1 + rng.Intn(20)
		mapping := make(map[string]int, n)
		for i := 0; i < n; i++ {
			mapping[fmt.Sprintf("entry %02d", i)] = rng.Intn(pages)
		}

		st := newStore(t, pages)
		before := st.Len()
		res, err := NewBuilder(Options{}).AddFlat(st, mapping)
		require.NoError(t, err)
		require.Equal(t, before+n+1, st.Len())
		require.Equal(t, n, res.Count)

		got := checkFlat(t, st, res)
		for i, v := range got {
			require.Equal(t, mapping[v.title], v.page)
			if i > 0 {
				prev := got[i-1]
				require.True(t, prev.page < v.page || (prev.page == v.page && prev.title < v.title),
					"round %d: %v before %v", round, prev, v)
			}
		}
	}
}

func TestAddFlat_UnicodeTitle(t *testing.T) {
	st := newStore(t, 2)
	res, err := NewBuilder(Options{}).AddFlat(st, map[string]int{"Kapitel für Größen": 1})
	require.NoError(t, err)

	item := getDict(t, st, res.Items[0])
	title, _ := item.Lookup("Title")
	s := title.(raw.StringObj)
	require.Equal(t, []byte{0xFE, 0xFF}, s.Bytes[:2])
	require.Equal(t, "Kapitel für Größen", raw.DecodeTextString(s.Bytes))
}

func TestAddFlat_ReplacesOutlineAndPageMode(t *testing.T) {
	st := newStore(t, 2)
	first, err := NewBuilder(Options{PageMode: "UseOutlines"}).AddFlat(st, map[string]int{"old": 0})
	require.NoError(t, err)
	require.NoError(t, st.SetCatalogEntry("PageMode", raw.NameLiteral("UseThumbs")))

	second, err := NewBuilder(Options{PageMode: PageModeUnchanged, View: ViewFit}).AddFlat(st, map[string]int{"new": 1})
	require.NoError(t, err)
	require.NotEqual(t, first.Root, second.Root)

	ref, _ := st.Catalog().RefValue("Outlines")
	require.Equal(t, second.Root, ref)
	mode, _ := st.Catalog().NameValue("PageMode")
	require.Equal(t, "UseThumbs", mode)

	dest, _ := getDict(t, st, second.Items[0]).Lookup("Dest")
	require.Equal(t, raw.NameLiteral("Fit"), dest.(*raw.ArrayObj).Items[1])
}

func TestAddTree_Nested(t *testing.T) {
	st := newStore(t, 12)
	before := st.Len()
	entries := []Entry{
		{Title: "Part I", Page: 0, Children: []Entry{
			{Title: "1.1", Page: 1},
			{Title: "1.2", Page: 3, Children: []Entry{{Title: "1.2.1", Page: 4}}},
		}},
		{Title: "Part II", Page: 6},
		{Title: "Part III", Page: 8, Children: []Entry{{Title: "3.1", Page: 9}}},
	}

	res, err := NewBuilder(Options{}).AddTree(st, entries)
	require.NoError(t, err)
	require.Equal(t, 7, res.Count)
	require.Equal(t, before+8, st.Len())

	// preorder: Part I, 1.1, 1.2, 1.2.1, Part II, Part III, 3.1
	ref := func(i int) raw.ObjectRef { return res.Items[i] }
	title := func(r raw.ObjectRef) string {
		obj, _ := getDict(t, st, r).Lookup("Title")
		return raw.DecodeTextString(obj.(raw.StringObj).Bytes)
	}
	require.Equal(t, []string{"Part I", "1.1", "1.2", "1.2.1", "Part II", "Part III", "3.1"},
		[]string{title(ref(0)), title(ref(1)), title(ref(2)), title(ref(3)), title(ref(4)), title(ref(5)), title(ref(6))})

	root := getDict(t, st, res.Root)
	count, _ := root.IntValue("Count")
	require.Equal(t, int64(7), count)
	first, _ := root.RefValue("First")
	last, _ := root.RefValue("Last")
	require.Equal(t, ref(0), first)
	require.Equal(t, ref(5), last)

	part1 := getDict(t, st, ref(0))
	c, _ := part1.IntValue("Count")
	require.Equal(t, int64(3), c)
	f, _ := part1.RefValue("First")
	l, _ := part1.RefValue("Last")
	require.Equal(t, ref(1), f)
	require.Equal(t, ref(2), l)
	next, _ := part1.RefValue("Next")
	require.Equal(t, ref(4), next)

	leaf := getDict(t, st, ref(3))
	parent, _ := leaf.RefValue("Parent")
	require.Equal(t, ref(2), parent)
	_, hasNext := leaf.Lookup("Next")
	require.False(t, hasNext)

	sub := getDict(t, st, ref(1))
	n, _ := sub.RefValue("Next")
	require.Equal(t, ref(2), n)
	p, _ := getDict(t, st, ref(2)).RefValue("Prev")
	require.Equal(t, ref(1), p)
	_, hasCount := getDict(t, st, ref(4)).Lookup("Count")
	require.False(t, hasCount)
}

func TestAddTree_NestedOutOfRange(t *testing.T) {
	st := newStore(t, 2)
	before := st.Len()
	_, err := NewBuilder(Options{}).AddTree(st, []Entry{{Title: "ok", Page: 0, Children: []Entry{{Title: "bad", Page: 2}}}})
	require.ErrorIs(t, err, ErrOutOfRangePage)
	require.Equal(t, before, st.Len())
}

func TestAddTree_NoCatalog(t *testing.T) {
	_, err := NewBuilder(Options{}).AddTree(store.New(), []Entry{{Title: "x"}})
	require.ErrorIs(t, err, store.ErrNoCatalog)
}
