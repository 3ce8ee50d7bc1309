package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfoutline/filters"
	"github.com/wudi/pdfoutline/ir/raw"
	"github.com/wudi/pdfoutline/scanner"
	"github.com/wudi/pdfoutline/xref"
)

var ErrObjectNotFound = errors.New("object not found in xref")

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	data      []byte
	xrefTable xref.Table
	filters   *filters.Pipeline
	limits    Limits
}

func (b *ObjectLoaderBuilder) WithXRef(table xref.Table) *ObjectLoaderBuilder {
	b.xrefTable = table
	return b
}
func (b *ObjectLoaderBuilder) WithData(data []byte) *ObjectLoaderBuilder {
	b.data = data
	return b
}
func (b *ObjectLoaderBuilder) WithFilters(p *filters.Pipeline) *ObjectLoaderBuilder {
	b.filters = p
	return b
}
func (b *ObjectLoaderBuilder) WithLimits(l Limits) *ObjectLoaderBuilder {
	b.limits = l
	return b
}

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.data == nil || b.xrefTable == nil {
		return nil, errors.New("data and xrefTable required")
	}
	p := b.filters
	if p == nil {
		p = filters.DefaultPipeline(filters.Limits{MaxDecompressedSize: b.limits.MaxDecompressedSize})
	}
	cfg := scanner.Config{
		MaxStringLength: b.limits.MaxStringLength,
		MaxStreamLength: b.limits.MaxStreamLength,
		MaxDepth:        b.limits.MaxNestingDepth,
	}
	return &objectLoader{
		scanner:   scanner.New(b.data, cfg),
		xrefTable: b.xrefTable,
		filters:   p,
		objstm:    make(map[int]*xref.ObjectStream),
	}, nil
}

// objectLoader is not safe for concurrent use; it shares one scanner cursor.
type objectLoader struct {
	scanner   scanner.Scanner
	xrefTable xref.Table
	filters   *filters.Pipeline
	objstm    map[int]*xref.ObjectStream
	resolving map[int]bool
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := o.xrefTable.Lookup(ref.Num)
	if !ok {
		return nil, fmt.Errorf("%v: %w", ref, ErrObjectNotFound)
	}
	if e.Kind == xref.EntryCompressed {
		return o.loadFromObjectStream(ctx, e)
	}
	return o.loadAtOffset(ref, e.Offset)
}

func (o *objectLoader) loadAtOffset(ref raw.ObjectRef, offset int64) (raw.Object, error) {
	got, obj, err := scanner.ReadIndirect(o.scanner, offset, o.streamLength)
	if err != nil {
		return nil, fmt.Errorf("%v at %d: %w", ref, offset, err)
	}
	if got.Num != ref.Num {
		return nil, fmt.Errorf("%v at %d: found object %v instead", ref, offset, got)
	}
	return obj, nil
}

// streamLength resolves an indirect /Length. The scanner falls back to
// searching for endstream when this fails.
func (o *objectLoader) streamLength(length raw.Object) (int64, bool) {
	ref, ok := length.(raw.RefObj)
	if !ok {
		return 0, false
	}
	e, ok := o.xrefTable.Lookup(ref.R.Num)
	if !ok || e.Kind != xref.EntryInUse {
		return 0, false
	}
	if o.resolving == nil {
		o.resolving = make(map[int]bool)
	}
	if o.resolving[ref.R.Num] {
		return 0, false
	}
	o.resolving[ref.R.Num] = true
	defer delete(o.resolving, ref.R.Num)

	// reading the length object moves the shared cursor; restore it
	pos := o.scanner.Position()
	_, obj, err := scanner.ReadIndirect(o.scanner, e.Offset, nil)
	if serr := o.scanner.SeekTo(pos); serr != nil {
		return 0, false
	}
	if err != nil {
		return 0, false
	}
	n, ok := obj.(raw.NumberObj)
	if !ok || n.Int() < 0 {
		return 0, false
	}
	return n.Int(), true
}

// resolveDirect reads an uncompressed object without moving the shared
// cursor. Object streams use it for indirect /DecodeParms.
func (o *objectLoader) resolveDirect(ref raw.ObjectRef) (raw.Object, bool) {
	e, ok := o.xrefTable.Lookup(ref.Num)
	if !ok || e.Kind != xref.EntryInUse {
		return nil, false
	}
	pos := o.scanner.Position()
	obj, err := o.loadAtOffset(ref, e.Offset)
	if serr := o.scanner.SeekTo(pos); serr != nil || err != nil {
		return nil, false
	}
	return obj, true
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, e xref.Entry) (raw.Object, error) {
	os, ok := o.objstm[e.Stream]
	if !ok {
		se, found := o.xrefTable.Lookup(e.Stream)
		if !found || se.Kind != xref.EntryInUse {
			return nil, fmt.Errorf("object stream %d: %w", e.Stream, ErrObjectNotFound)
		}
		obj, err := o.loadAtOffset(raw.ObjectRef{Num: e.Stream, Gen: se.Gen}, se.Offset)
		if err != nil {
			return nil, err
		}
		stream, ok := obj.(*raw.StreamObj)
		if !ok {
			return nil, fmt.Errorf("object stream %d is a %s", e.Stream, obj.Type())
		}
		os, err = xref.DecodeObjectStream(ctx, o.filters, stream, o.resolveDirect)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", e.Stream, err)
		}
		o.objstm[e.Stream] = os
	}
	return os.Object(e.Index)
}
