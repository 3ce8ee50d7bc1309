package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/pdfoutline/filters"
	"github.com/wudi/pdfoutline/ir/raw"
	"github.com/wudi/pdfoutline/observability"
	"github.com/wudi/pdfoutline/scanner"
)

var (
	ErrNoStartXRef = errors.New("startxref not found")
	ErrBadXRef     = errors.New("malformed cross-reference data")
)

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. In-use entries carry a byte offset; compressed
// entries name the object stream and the index inside it.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table maps object numbers to their location in the file.
type Table interface {
	Lookup(objNum int) (Entry, bool)
	Objects() []int
	Trailer() *raw.DictObj
	Type() string
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
}

type ResolverConfig struct {
	MaxXRefDepth int
	// ForceRepair skips startxref and rebuilds the table by scanning.
	ForceRepair bool
	Filters     *filters.Pipeline
	Logger      observability.Logger
}

// NewResolver returns a resolver handling classic tables, cross-reference
// streams, hybrid files and incremental updates, with a repair scan as
// fallback.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 64
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.DefaultPipeline(filters.Limits{})
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &tableResolver{cfg: cfg}
}

type tableResolver struct {
	cfg ResolverConfig
}

func (t *tableResolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	if t.cfg.ForceRepair {
		return repair(ctx, data, t.cfg.Filters)
	}
	tbl, err := t.resolveChain(ctx, data)
	if err == nil {
		return tbl, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	t.cfg.Logger.Warn("cross-reference data unusable, rebuilding by scan", observability.Error("cause", err))
	repaired, rerr := repair(ctx, data, t.cfg.Filters)
	if rerr != nil {
		return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	return repaired, nil
}

func (t *tableResolver) resolveChain(ctx context.Context, data []byte) (*table, error) {
	offset, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	tbl := &table{entries: make(map[int]Entry), kind: "table"}
	visited := make(map[int64]bool)
	s := scanner.New(data, scanner.Config{})

	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= t.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("%w: more than %d sections", ErrBadXRef, t.cfg.MaxXRefDepth)
		}
		if visited[offset] {
			return nil, fmt.Errorf("%w: /Prev loop at %d", ErrBadXRef, offset)
		}
		visited[offset] = true

		trailer, err := t.readSection(ctx, data, s, offset, tbl)
		if err != nil {
			return nil, err
		}
		if tbl.trailer == nil {
			tbl.trailer = trailer
		}
		// hybrid file: the stream supplements the classic section it hangs off
		if stm, ok := trailer.IntValue("XRefStm"); ok && !visited[stm] {
			visited[stm] = true
			if _, err := t.readSection(ctx, data, s, stm, tbl); err != nil {
				return nil, err
			}
		}
		prev, ok := trailer.IntValue("Prev")
		if !ok || prev <= 0 {
			break
		}
		offset = prev
	}
	if _, ok := tbl.trailer.Lookup("Root"); !ok {
		return nil, fmt.Errorf("%w: trailer has no /Root", ErrBadXRef)
	}
	return tbl, nil
}

// readSection merges one section into tbl without overriding entries from
// newer sections, and returns that section's trailer dictionary.
func (t *tableResolver) readSection(ctx context.Context, data []byte, s scanner.Scanner, offset int64, tbl *table) (*raw.DictObj, error) {
	if err := s.SeekTo(offset); err != nil {
		return nil, fmt.Errorf("%w: section offset %d", ErrBadXRef, offset)
	}
	tok, err := s.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return readClassic(s, tbl)
	}
	return t.readStream(ctx, data, s, offset, tbl)
}

func readClassic(s scanner.Scanner, tbl *table) (*raw.DictObj, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := scanner.ParseObject(s)
			if err != nil {
				return nil, fmt.Errorf("%w: trailer: %v", ErrBadXRef, err)
			}
			dict, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, fmt.Errorf("%w: trailer is not a dictionary", ErrBadXRef)
			}
			return dict, nil
		}
		countTok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
		}
		if !isUint(tok) || !isUint(countTok) {
			return nil, fmt.Errorf("%w: bad subsection header at %d", ErrBadXRef, tok.Pos)
		}
		start, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			off, err1 := s.Next()
			gen, err2 := s.Next()
			kind, err3 := s.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("%w: truncated subsection: %v", ErrBadXRef, err)
			}
			if !isUint(off) || !isUint(gen) || kind.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("%w: bad entry at %d", ErrBadXRef, off.Pos)
			}
			e := Entry{Kind: EntryFree, Offset: off.Int, Gen: int(gen.Int)}
			switch kind.Str {
			case "n":
				e.Kind = EntryInUse
			case "f":
			default:
				return nil, fmt.Errorf("%w: entry type %q", ErrBadXRef, kind.Str)
			}
			tbl.add(start+i, e)
		}
	}
}

func (t *tableResolver) readStream(ctx context.Context, data []byte, s scanner.Scanner, offset int64, tbl *table) (*raw.DictObj, error) {
	_, obj, err := scanner.ReadIndirect(s, offset, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("%w: offset %d is neither xref nor stream", ErrBadXRef, offset)
	}
	if typ, _ := stream.Dict.NameValue("Type"); typ != "XRef" {
		return nil, fmt.Errorf("%w: stream at %d has /Type %q", ErrBadXRef, offset, typ)
	}
	entries, err := decodeXRefStream(ctx, t.cfg.Filters, stream, sectionResolver(data, s, tbl))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		tbl.add(e.num, e.Entry)
	}
	if tbl.kind == "table" {
		tbl.kind = "stream"
	}
	return stream.Dict, nil
}

type numberedEntry struct {
	num int
	Entry
}

func decodeXRefStream(ctx context.Context, p *filters.Pipeline, stream *raw.StreamObj, resolve filters.Resolver) ([]numberedEntry, error) {
	data, err := p.DecodeStream(ctx, stream, resolve)
	if err != nil {
		return nil, fmt.Errorf("%w: xref stream: %v", ErrBadXRef, err)
	}
	wObj, _ := stream.Dict.Lookup("W")
	wArr, ok := wObj.(*raw.ArrayObj)
	if !ok || wArr.Len() != 3 {
		return nil, fmt.Errorf("%w: xref stream /W", ErrBadXRef)
	}
	var w [3]int
	for i, item := range wArr.Items {
		n, ok := item.(raw.NumberObj)
		if !ok || n.Int() < 0 || n.Int() > 8 {
			return nil, fmt.Errorf("%w: xref stream /W", ErrBadXRef)
		}
		w[i] = int(n.Int())
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, fmt.Errorf("%w: xref stream /W is empty", ErrBadXRef)
	}

	size, _ := stream.Dict.IntValue("Size")
	index := []int64{0, size}
	if idxObj, ok := stream.Dict.Lookup("Index"); ok {
		arr, ok := idxObj.(*raw.ArrayObj)
		if !ok || arr.Len()%2 != 0 {
			return nil, fmt.Errorf("%w: xref stream /Index", ErrBadXRef)
		}
		index = index[:0]
		for _, item := range arr.Items {
			n, ok := item.(raw.NumberObj)
			if !ok {
				return nil, fmt.Errorf("%w: xref stream /Index", ErrBadXRef)
			}
			index = append(index, n.Int())
		}
	}

	var out []numberedEntry
	row := 0
	for i := 0; i < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := int64(0); j < count; j++ {
			off := row * rowLen
			if off+rowLen > len(data) {
				// short streams are common; keep what was readable
				return out, nil
			}
			fields := data[off : off+rowLen]
			typ := int64(1)
			if w[0] > 0 {
				typ = be(fields[:w[0]])
			}
			f2 := be(fields[w[0] : w[0]+w[1]])
			f3 := be(fields[w[0]+w[1]:])
			e := numberedEntry{num: int(start + j)}
			switch typ {
			case 0:
				e.Kind = EntryFree
			case 1:
				e.Kind, e.Offset, e.Gen = EntryInUse, f2, int(f3)
			case 2:
				e.Kind, e.Stream, e.Index = EntryCompressed, int(f2), int(f3)
			default:
				// unknown types are null references
				e.Kind = EntryFree
			}
			out = append(out, e)
			row++
		}
	}
	return out, nil
}

func be(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func isUint(tok scanner.Token) bool {
	return tok.Type == scanner.TokenNumber && tok.IsInt && tok.Int >= 0
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	s := scanner.New(data, scanner.Config{})
	if err := s.SeekTo(int64(idx + len("startxref"))); err != nil {
		return 0, err
	}
	tok, err := s.Next()
	if err != nil || !isUint(tok) {
		return 0, fmt.Errorf("%w: startxref has no offset", ErrBadXRef)
	}
	if tok.Int >= int64(len(data)) {
		return 0, fmt.Errorf("%w: xref offset out of range: %d", ErrBadXRef, tok.Int)
	}
	return tok.Int, nil
}

type table struct {
	entries map[int]Entry
	trailer *raw.DictObj
	kind    string
}

// add keeps the first entry seen for num; sections are read newest first.
func (t *table) add(num int, e Entry) {
	if _, ok := t.entries[num]; ok {
		return
	}
	t.entries[num] = e
}

func (t *table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind == EntryFree {
		return Entry{}, false
	}
	return e, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Trailer() *raw.DictObj { return t.trailer }
func (t *table) Type() string          { return t.kind }
