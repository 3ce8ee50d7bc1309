package xref

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wudi/pdfoutline/filters"
	"github.com/wudi/pdfoutline/ir/raw"
	"github.com/wudi/pdfoutline/scanner"
)

type ObjStmEntry struct {
	Num    int
	Offset int64 // relative to First
}

// ObjectStream is a decoded /Type /ObjStm stream.
type ObjectStream struct {
	Data    []byte
	First   int64
	Entries []ObjStmEntry
}

// DecodeObjectStream decodes stream and reads its header. resolve follows
// indirect filter parameters and may be nil.
func DecodeObjectStream(ctx context.Context, p *filters.Pipeline, stream *raw.StreamObj, resolve filters.Resolver) (*ObjectStream, error) {
	if typ, _ := stream.Dict.NameValue("Type"); typ != "ObjStm" {
		return nil, fmt.Errorf("%w: not an object stream", ErrBadXRef)
	}
	n, ok1 := stream.Dict.IntValue("N")
	first, ok2 := stream.Dict.IntValue("First")
	if !ok1 || !ok2 || n < 0 || first < 0 {
		return nil, fmt.Errorf("%w: object stream without /N or /First", ErrBadXRef)
	}
	data, err := p.DecodeStream(ctx, stream, resolve)
	if err != nil {
		return nil, fmt.Errorf("object stream: %w", err)
	}
	if first > int64(len(data)) {
		return nil, fmt.Errorf("%w: object stream /First past end", ErrBadXRef)
	}

	s := scanner.New(data[:first], scanner.Config{})
	os := &ObjectStream{Data: data, First: first, Entries: make([]ObjStmEntry, 0, n)}
	for i := int64(0); i < n; i++ {
		num, err1 := s.Next()
		off, err2 := s.Next()
		if err1 != nil || err2 != nil || !isUint(num) || !isUint(off) {
			return nil, fmt.Errorf("%w: object stream header entry %d", ErrBadXRef, i)
		}
		os.Entries = append(os.Entries, ObjStmEntry{Num: int(num.Int), Offset: off.Int})
	}
	return os, nil
}

// sectionResolver reads objects that stream dictionaries reference
// indirectly while the table is still being built: from entries already
// known, otherwise from the last "N G obj" header for the object in data.
// The scanner position is restored afterwards.
func sectionResolver(data []byte, s scanner.Scanner, tbl *table) filters.Resolver {
	return func(ref raw.ObjectRef) (raw.Object, bool) {
		offset := int64(-1)
		if e, ok := tbl.Lookup(ref.Num); ok && e.Kind == EntryInUse {
			offset = e.Offset
		} else {
			offset = findObjectHeader(data, ref)
		}
		if offset < 0 {
			return nil, false
		}
		pos := s.Position()
		got, obj, err := scanner.ReadIndirect(s, offset, nil)
		if serr := s.SeekTo(pos); serr != nil || err != nil || got.Num != ref.Num {
			return nil, false
		}
		return obj, true
	}
}

func findObjectHeader(data []byte, ref raw.ObjectRef) int64 {
	offset := int64(-1)
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if m[0] > 0 && isDigitByte(data[m[0]-1]) {
			continue
		}
		num, _ := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, _ := strconv.Atoi(string(data[m[4]:m[5]]))
		if num == ref.Num && gen == ref.Gen {
			offset = int64(m[0])
		}
	}
	return offset
}

// Object parses the object at index idx.
func (o *ObjectStream) Object(idx int) (raw.Object, error) {
	if idx < 0 || idx >= len(o.Entries) {
		return nil, fmt.Errorf("%w: object stream index %d out of range", ErrBadXRef, idx)
	}
	s := scanner.New(o.Data, scanner.Config{})
	if err := s.SeekTo(o.First + o.Entries[idx].Offset); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
	}
	return scanner.ParseObject(s)
}
