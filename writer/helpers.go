package writer

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/wudi/pdfoutline/ir/raw"
)

func serializePrimitive(o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NameObj:
		return []byte("/" + pdfNameLiteral(v.Value()))
	case raw.NumberObj:
		if v.IsInteger() {
			return strconv.AppendInt(nil, v.Int(), 10)
		}
		return strconv.AppendFloat(nil, v.Float(), 'f', -1, 64)
	case raw.BoolObj:
		if v.Value() {
			return []byte("true")
		}
		return []byte("false")
	case raw.NullObj:
		return []byte("null")
	case raw.StringObj:
		if v.IsHex() {
			return []byte(fmt.Sprintf("<%X>", v.Value()))
		}
		return escapeLiteralString(v.Value())
	case *raw.ArrayObj:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.Write(serializePrimitive(it))
		}
		b.WriteByte(']')
		return b.Bytes()
	case *raw.DictObj:
		return serializeDict(v, nil)
	case *raw.StreamObj:
		var b bytes.Buffer
		length := raw.NumberInt(int64(len(v.Data)))
		b.Write(serializeDict(v.Dict, map[string]raw.Object{"Length": length}))
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
		return b.Bytes()
	case raw.RefObj:
		return []byte(fmt.Sprintf("%d %d R", v.Ref().Num, v.Ref().Gen))
	default:
		return []byte("null")
	}
}

// serializeDict writes keys in sorted order. Null values are omitted, as a
// null entry is the same as a missing one.
func serializeDict(d *raw.DictObj, override map[string]raw.Object) []byte {
	merged := raw.Dict()
	if d != nil {
		for k, v := range d.KV {
			merged.KV[k] = v
		}
	}
	for k, v := range override {
		merged.KV[k] = v
	}
	var b bytes.Buffer
	b.WriteString("<<")
	for _, k := range merged.SortedKeys() {
		val := merged.KV[k]
		if _, isNull := val.(raw.NullObj); isNull || val == nil {
			continue
		}
		b.WriteString("/" + pdfNameLiteral(k) + " ")
		b.Write(serializePrimitive(val))
		b.WriteByte(' ')
	}
	b.WriteString(">>")
	return b.Bytes()
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

// pdfNameLiteral escapes bytes that cannot appear literally in a name.
func pdfNameLiteral(value string) string {
	var b bytes.Buffer
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7F && !isNameDelimiter(ch) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

func isNameDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%', '#':
		return true
	}
	return false
}

// fileID keeps the first identifier of the source and derives the second
// from the written content.
func fileID(source []raw.StringObj, digest []byte) [2][]byte {
	first := digest
	if len(source) == 2 && len(source[0].Bytes) > 0 {
		first = source[0].Bytes
	}
	return [2][]byte{first, digest}
}

func buildTrailer(size int, catalogRef raw.ObjectRef, infoRef *raw.ObjectRef, ids [2][]byte) *raw.DictObj {
	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	trailer.Set(raw.NameLiteral("Root"), raw.Ref(catalogRef.Num, catalogRef.Gen))
	if infoRef != nil {
		trailer.Set(raw.NameLiteral("Info"), raw.Ref(infoRef.Num, infoRef.Gen))
	}
	trailer.Set(raw.NameLiteral("ID"), raw.NewArray(raw.HexStr(ids[0]), raw.HexStr(ids[1])))
	return trailer
}
