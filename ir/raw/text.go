package raw

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextString encodes s as a PDF text string (7.9.2.2). Printable ASCII is
// stored as-is; anything else is stored as UTF-16BE with a byte order mark,
// written in hex form.
func TextString(s string) StringObj {
	if isPlainASCII(s) {
		return Str([]byte(s))
	}
	s = strings.ToValidUTF8(s, "\uFFFD")
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return Str([]byte(s))
	}
	return HexStr(out)
}

// DecodeTextString converts the bytes of a PDF text string to UTF-8.
func DecodeTextString(b []byte) string {
	switch {
	case len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF:
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(b); err == nil {
			return string(out)
		}
	case bytes.HasPrefix(b, utf8BOM):
		return string(b[len(utf8BOM):])
	}
	// PDFDocEncoding agrees with Latin-1 outside a handful of control codes.
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func isPlainASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 || (c < 0x20 && c != '\t' && c != '\n' && c != '\r') {
			return false
		}
	}
	return true
}
