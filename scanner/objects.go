package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfoutline/ir/raw"
)

var ErrMalformedObject = errors.New("malformed object")

// LengthFunc resolves a stream dictionary's /Length, which may be an
// indirect reference the scanner cannot follow on its own.
type LengthFunc func(length raw.Object) (int64, bool)

// ParseObject assembles the next complete object from s.
func ParseObject(s Scanner) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return objectFrom(s, tok)
}

func objectFrom(s Scanner, tok Token) (raw.Object, error) {
	switch tok.Type {
	case TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		return raw.Ref(int(tok.Int), tok.Gen), nil
	case TokenArray:
		return parseArray(s)
	case TokenDict:
		return parseDict(s)
	}
	return nil, fmt.Errorf("offset %d: unexpected %v %q: %w", tok.Pos, tok.Type, tok.Str, ErrMalformedObject)
}

func parseArray(s Scanner) (*raw.ArrayObj, error) {
	arr := raw.NewArray()
	for {
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("unterminated array: %w", ErrMalformedObject)
			}
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		item, err := objectFrom(s, tok)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func parseDict(s Scanner) (*raw.DictObj, error) {
	dict := raw.Dict()
	for {
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("unterminated dictionary: %w", ErrMalformedObject)
			}
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Str == ">>" {
			return dict, nil
		}
		if tok.Type != TokenName {
			return nil, fmt.Errorf("offset %d: dictionary key is %v: %w", tok.Pos, tok.Type, ErrMalformedObject)
		}
		key := tok.Str
		valTok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if valTok.Type == TokenKeyword && valTok.Str == ">>" {
			// a key without a value is dropped
			return dict, nil
		}
		val, err := objectFrom(s, valTok)
		if err != nil {
			return nil, err
		}
		// null values are the same as absent entries
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		dict.KV[key] = val
	}
}

// ReadIndirect parses "num gen obj ... endobj" starting at offset. A missing
// endobj is tolerated.
func ReadIndirect(s Scanner, offset int64, length LengthFunc) (raw.ObjectRef, raw.Object, error) {
	if err := s.SeekTo(offset); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	num, err := s.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	gen, err := s.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	kw, err := s.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	if num.Type != TokenNumber || !num.IsInt || gen.Type != TokenNumber || !gen.IsInt || kw.Type != TokenKeyword || kw.Str != "obj" {
		return raw.ObjectRef{}, nil, fmt.Errorf("offset %d: no object header: %w", offset, ErrMalformedObject)
	}
	ref := raw.ObjectRef{Num: int(num.Int), Gen: int(gen.Int)}

	obj, err := ParseObject(s)
	if err != nil {
		return ref, nil, fmt.Errorf("object %v: %w", ref, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return ref, obj, nil
	}

	s.SetNextStreamLength(-1)
	if l, ok := dict.Lookup("Length"); ok {
		if n, ok := l.(raw.NumberObj); ok {
			s.SetNextStreamLength(n.Int())
		} else if length != nil {
			if n, ok := length(l); ok {
				s.SetNextStreamLength(n)
			}
		}
	}
	next, err := s.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ref, dict, nil
		}
		return ref, nil, fmt.Errorf("object %v: %w", ref, err)
	}
	s.SetNextStreamLength(-1)
	if next.Type != TokenStream {
		return ref, dict, nil
	}
	return ref, raw.NewStream(dict, next.Bytes), nil
}
