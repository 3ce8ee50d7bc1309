package store

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfoutline/ir/raw"
)

func name(v string) raw.NameObj { return raw.NameLiteral(v) }

func dict(kv ...interface{}) *raw.DictObj {
	d := raw.Dict()
	for i := 0; i < len(kv); i += 2 {
		d.KV[kv[i].(string)] = kv[i+1].(raw.Object)
	}
	return d
}

// sampleDocument mimics a parsed file: sparse object numbers, a nested page
// tree, an unreachable leftover object and a dangling reference.
func sampleDocument() *raw.Document {
	ref := func(n int) raw.ObjectRef { return raw.ObjectRef{Num: n} }
	return &raw.Document{
		Version: "1.6",
		Trailer: dict(
			"Root", raw.Ref(10, 0),
			"Info", raw.Ref(40, 0),
			"ID", raw.NewArray(raw.HexStr([]byte{1, 2}), raw.HexStr([]byte{3, 4})),
		),
		Objects: map[raw.ObjectRef]raw.Object{
			ref(10): dict("Type", name("Catalog"), "Pages", raw.Ref(20, 0)),
			ref(20): dict("Type", name("Pages"), "Kids", raw.NewArray(raw.Ref(21, 0), raw.Ref(30, 0)), "Count", raw.NumberInt(3)),
			ref(21): dict("Type", name("Page"), "Parent", raw.Ref(20, 0), "Annots", raw.Ref(99, 0)),
			ref(30): dict("Type", name("Pages"), "Parent", raw.Ref(20, 0), "Kids", raw.NewArray(raw.Ref(31, 0), raw.Ref(32, 0))),
			ref(31): dict("Type", name("Page"), "Parent", raw.Ref(30, 0)),
			ref(32): dict("Type", name("Page"), "Parent", raw.Ref(30, 0), "Contents", raw.Ref(33, 0)),
			ref(33): raw.NewStream(dict("Length", raw.NumberInt(3)), []byte("q Q")),
			ref(40): dict("Producer", raw.Str([]byte("test"))),
			ref(50): dict("Orphan", raw.Bool(true)),
		},
	}
}

func TestFromDocument_Renumbers(t *testing.T) {
	st, err := FromDocument(sampleDocument())
	require.NoError(t, err)

	// 10, 40 (roots) then breadth-first: 20, 21, 30, 31, 32, 33; orphan 50 is dropped
	require.Equal(t, 8, st.Len())
	require.Equal(t, raw.ObjectRef{Num: 1}, st.CatalogRef())
	info, ok := st.Info()
	require.True(t, ok)
	require.Equal(t, raw.ObjectRef{Num: 2}, info)
	require.Equal(t, "1.6", st.Version())
	require.Len(t, st.ID(), 2)

	require.Equal(t, 3, st.PageCount())
	want := []raw.ObjectRef{{Num: 4}, {Num: 6}, {Num: 7}}
	for i, w := range want {
		got, err := st.PageRef(i)
		require.NoError(t, err)
		require.Equal(t, w, got, "page %d", i)
	}

	page0, _ := st.Get(raw.ObjectRef{Num: 4})
	if diff := cmp.Diff(dict("Type", name("Page"), "Parent", raw.Ref(3, 0), "Annots", raw.NullObj{}), page0); diff != "" {
		t.Fatalf("page 0 mismatch (-want +got):\n%s", diff)
	}
	contents, _ := st.Get(raw.ObjectRef{Num: 8})
	require.IsType(t, &raw.StreamObj{}, contents)
}

func TestFromDocument_NoCatalog(t *testing.T) {
	doc := sampleDocument()
	delete(doc.Objects, raw.ObjectRef{Num: 10})
	_, err := FromDocument(doc)
	require.ErrorIs(t, err, ErrNoCatalog)

	_, err = FromDocument(&raw.Document{Trailer: dict("Size", raw.NumberInt(1))})
	require.ErrorIs(t, err, ErrNoCatalog)
}

func TestFromDocument_DirectInfo(t *testing.T) {
	doc := sampleDocument()
	doc.Trailer.KV["Info"] = dict("Title", raw.Str([]byte("direct")))
	st, err := FromDocument(doc)
	require.NoError(t, err)
	info, ok := st.Info()
	require.True(t, ok)
	require.Equal(t, st.Len(), info.Num)
}

func TestAppendAll_Desync(t *testing.T) {
	st := New()
	st.Append(raw.NullObj{})

	expected := []raw.ObjectRef{{Num: 2}, {Num: 3}}
	st.Append(raw.NullObj{}) // interleaved writer
	err := st.AppendAll(expected, []raw.Object{raw.NullObj{}, raw.NullObj{}})
	if !errors.Is(err, ErrAllocatorDesync) {
		t.Fatalf("expected ErrAllocatorDesync, got %v", err)
	}
	if st.Len() != 2 {
		t.Fatalf("store must be untouched, len %d", st.Len())
	}

	if err := st.AppendAll([]raw.ObjectRef{{Num: 3}, {Num: 4}}, []raw.Object{raw.NullObj{}, raw.Bool(true)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got, _ := st.Get(raw.ObjectRef{Num: 4}); got != raw.Bool(true) {
		t.Fatalf("unexpected object %v", got)
	}
	if err := st.AppendAll([]raw.ObjectRef{{Num: 5}}, nil); !errors.Is(err, ErrAllocatorDesync) {
		t.Fatalf("length mismatch must be rejected, got %v", err)
	}
}

func TestPageRef_OutOfRange(t *testing.T) {
	st, err := FromDocument(sampleDocument())
	require.NoError(t, err)
	for _, idx := range []int{-1, 3, 100} {
		_, err := st.PageRef(idx)
		require.ErrorIs(t, err, ErrPageOutOfRange)
	}
}

func TestCollectPages_Cycle(t *testing.T) {
	st := New()
	catalog := st.Append(dict("Type", name("Catalog"), "Pages", raw.Ref(2, 0)))
	st.Append(dict("Type", name("Pages"), "Kids", raw.NewArray(raw.Ref(3, 0), raw.Ref(2, 0))))
	st.Append(dict("Type", name("Page")))
	require.NoError(t, st.SetRoot(catalog))
	require.Equal(t, 1, st.PageCount())
}

func TestCatalogEntries(t *testing.T) {
	st := New()
	require.ErrorIs(t, st.SetCatalogEntry("Outlines", raw.Ref(1, 0)), ErrNoCatalog)
	require.Error(t, st.SetRoot(raw.ObjectRef{Num: 1}))

	ref := st.Append(dict("Type", name("Catalog")))
	require.NoError(t, st.SetRoot(ref))
	require.NoError(t, st.SetCatalogEntry("PageMode", name("UseOutlines")))
	v, ok := st.CatalogEntry("PageMode")
	require.True(t, ok)
	require.Equal(t, name("UseOutlines"), v)

	require.NoError(t, st.SetCatalogEntry("PageMode", nil))
	_, ok = st.CatalogEntry("PageMode")
	require.False(t, ok)
	require.Equal(t, 0, st.PageCount())
}
