package tabular

// text.go prepares raw bytes for the text-based adapters (CSV, TSV, JSON, XML).
//
// Files exported from Windows tools frequently start with a UTF-8 byte order
// mark and occasionally contain bytes from a legacy code page. Both break
// header matching in subtle ways, so every text adapter runs its input
// through normalizeText first:
//
//   - the UTF-8 BOM (0xEF 0xBB 0xBF) is removed
//   - invalid UTF-8 sequences are replaced with U+FFFD

import (
	"bytes"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func normalizeText(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if isASCII(data) || utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
		} else {
			buf.Write(data[:size])
		}
		data = data[size:]
	}
	return buf.Bytes()
}

// isASCII is the fast path: most uploads are plain ASCII.
func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
