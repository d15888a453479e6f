package tabular

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

const detailExpectedArray = "expected array of objects"

// JSONParser accepts either a top-level array of flat objects or a top-level
// object whose first array-valued property holds the records:
//
//	[{"Name": "A"}, {"Name": "B"}]
//	{"customers": [{"Name": "A"}, {"Name": "B"}]}
//
// Headers are the keys of the first record, in document order.
type JSONParser struct{}

// NewJSONParser returns the JSON adapter.
func NewJSONParser() *JSONParser { return &JSONParser{} }

// Format reports which format this adapter handles.
func (p *JSONParser) Format() Format { return FormatJSON }

// Parse implements Parser.
func (p *JSONParser) Parse(data []byte) (*Dataset, error) {
	data = bytes.TrimSpace(normalizeText(data))
	if len(data) == 0 {
		return nil, parseErr(FormatJSON, "empty document", nil)
	}
	if !json.Valid(data) {
		return nil, parseErr(FormatJSON, "invalid JSON", nil)
	}

	switch data[0] {
	case '[':
		return parseRecordArray(data)
	case '{':
		arr, err := firstArrayProperty(data)
		if err != nil {
			return nil, err
		}
		return parseRecordArray(arr)
	default:
		return nil, parseErr(FormatJSON, detailExpectedArray, nil)
	}
}

// firstArrayProperty returns the raw value of the first property whose value
// is an array.
func firstArrayProperty(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, parseErr(FormatJSON, "invalid JSON", err)
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, parseErr(FormatJSON, "invalid JSON", err)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, parseErr(FormatJSON, "invalid JSON", err)
		}
		if len(raw) > 0 && raw[0] == '[' {
			return raw, nil
		}
	}
	return nil, parseErr(FormatJSON, detailExpectedArray, nil)
}

func parseRecordArray(data []byte) (*Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, parseErr(FormatJSON, "invalid JSON", err)
	}

	var b builder
	first := true
	for dec.More() {
		keys, cells, err := readFlatObject(dec)
		if err != nil {
			return nil, err
		}
		if first {
			b.setHeaders(keys)
			first = false
		}
		b.addKeyed(cells)
	}

	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, parseErr(FormatJSON, "invalid JSON", err)
	}
	return b.dataset(), nil
}

// readFlatObject consumes one object from dec and returns its keys in
// document order together with stringified values.
func readFlatObject(dec *json.Decoder) ([]string, map[string]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, parseErr(FormatJSON, "invalid JSON", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, parseErr(FormatJSON, detailExpectedArray, nil)
	}

	var keys []string
	cells := make(map[string]string)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, parseErr(FormatJSON, "invalid JSON", err)
		}
		key, _ := keyTok.(string)
		key = keyName(key)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, parseErr(FormatJSON, "invalid JSON", err)
		}
		if _, dup := cells[key]; !dup {
			keys = append(keys, key)
		}
		cells[key] = jsonCell(raw)
	}

	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, nil, parseErr(FormatJSON, "invalid JSON", err)
	}
	return keys, cells, nil
}

// jsonCell renders a JSON value as a cell string. Strings are unquoted,
// numbers and booleans keep their literal text, null is empty, and nested
// objects or arrays are kept as compact JSON.
func jsonCell(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case 'n':
		return ""
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return string(raw)
		}
		return s
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return string(raw)
		}
		return buf.String()
	default:
		return string(raw)
	}
}

// keyName applies header cleaning to keys of keyed sources so they line up
// with the names produced by setHeaders.
func keyName(k string) string {
	k = cleanHeader(k)
	if k == "" {
		return "__EMPTY"
	}
	return k
}
