package xref

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/wudi/pdfoutline/filters"
	"github.com/wudi/pdfoutline/ir/raw"
	"github.com/wudi/pdfoutline/scanner"
)

var objHeader = regexp.MustCompile(`(\d+)[\x00\t\n\f\r ]+(\d+)[\x00\t\n\f\r ]+obj\b`)

// repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" headers, object streams, and "trailer"
// dictionaries. Later definitions win, as they do in incremental updates.
func repair(ctx context.Context, data []byte, p *filters.Pipeline) (Table, error) {
	s := scanner.New(data, scanner.Config{})
	tbl := &table{entries: make(map[int]Entry), kind: "repaired"}
	var (
		objStreams  []int
		xrefTrailer *raw.DictObj
		catalog     raw.ObjectRef
		skipUntil   int64
	)

	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := int64(m[0])
		if start < skipUntil || (start > 0 && isDigitByte(data[start-1])) {
			continue
		}
		ref, obj, err := scanner.ReadIndirect(s, start, nil)
		if err != nil {
			continue
		}
		num, _ := strconv.Atoi(string(data[m[2]:m[3]]))
		if num != ref.Num {
			continue
		}
		tbl.entries[ref.Num] = Entry{Kind: EntryInUse, Offset: start, Gen: ref.Gen}

		switch o := obj.(type) {
		case *raw.StreamObj:
			skipUntil = s.Position()
			switch typ, _ := o.Dict.NameValue("Type"); typ {
			case "ObjStm":
				objStreams = append(objStreams, ref.Num)
			case "XRef":
				xrefTrailer = o.Dict
			}
		case *raw.DictObj:
			if typ, _ := o.NameValue("Type"); typ == "Catalog" {
				catalog = ref
			}
		}
	}

	// objects only reachable through object streams
	for _, streamNum := range objStreams {
		e := tbl.entries[streamNum]
		_, obj, err := scanner.ReadIndirect(s, e.Offset, nil)
		if err != nil {
			continue
		}
		stream, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		nums, err := objectStreamNumbers(ctx, p, stream, sectionResolver(data, s, tbl))
		if err != nil {
			continue
		}
		for idx, num := range nums {
			if _, ok := tbl.entries[num]; !ok {
				tbl.entries[num] = Entry{Kind: EntryCompressed, Stream: streamNum, Index: idx}
			}
		}
	}

	if len(tbl.entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	tbl.trailer = lastTrailer(data, s)
	if tbl.trailer == nil && xrefTrailer != nil {
		tbl.trailer = xrefTrailer
	}
	if tbl.trailer == nil {
		tbl.trailer = raw.Dict()
	} else {
		tbl.trailer = copyTrailer(tbl.trailer)
	}
	if _, ok := tbl.trailer.Lookup("Root"); !ok {
		if catalog.IsZero() {
			return nil, errors.New("repair failed: no document catalog found")
		}
		tbl.trailer.Set(raw.NameObj{Val: "Root"}, raw.RefTo(catalog))
	}
	tbl.trailer.Set(raw.NameObj{Val: "Size"}, raw.NumberInt(int64(maxObject(tbl)+1)))
	return tbl, nil
}

// lastTrailer returns the last parseable trailer dictionary carrying /Root.
func lastTrailer(data []byte, s scanner.Scanner) *raw.DictObj {
	kw := []byte("trailer")
	for end := len(data); end > 0; {
		idx := bytes.LastIndex(data[:end], kw)
		if idx < 0 {
			return nil
		}
		end = idx
		if err := s.SeekTo(int64(idx + len(kw))); err != nil {
			continue
		}
		obj, err := scanner.ParseObject(s)
		if err != nil {
			continue
		}
		if dict, ok := obj.(*raw.DictObj); ok {
			if _, ok := dict.Lookup("Root"); ok {
				return dict
			}
		}
	}
	return nil
}

func copyTrailer(d *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	for _, k := range []string{"Root", "Info", "ID"} {
		if v, ok := d.Lookup(k); ok {
			out.KV[k] = v
		}
	}
	return out
}

func maxObject(t *table) int {
	m := 0
	for n := range t.entries {
		if n > m {
			m = n
		}
	}
	return m
}

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }

func objectStreamNumbers(ctx context.Context, p *filters.Pipeline, stream *raw.StreamObj, resolve filters.Resolver) ([]int, error) {
	os, err := DecodeObjectStream(ctx, p, stream, resolve)
	if err != nil {
		return nil, err
	}
	nums := make([]int, len(os.Entries))
	for i, e := range os.Entries {
		nums[i] = e.Num
	}
	return nums, nil
}
