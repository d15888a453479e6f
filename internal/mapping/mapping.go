// Package mapping resolves uploaded column headers to the fields of an
// internal schema.
//
// Resolution runs in two stages. An exact pass matches headers against field
// labels case-insensitively; any schema keys it leaves unresolved are handed
// to a [Resolver] (an LLM, a synonym table, or a chain of both). The merged
// result is cached by (headers, schema) so repeated uploads with the same
// layout never reach the resolver twice.
package mapping

import "strings"

// SchemaField is one target field of an import schema.
type SchemaField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// ColumnMapping maps a schema field key to the uploaded header that feeds it.
// Keys without a header are simply absent.
type ColumnMapping map[string]string

// Invert returns the header -> key view used on the wire.
func (m ColumnMapping) Invert() map[string]string {
	out := make(map[string]string, len(m))
	for key, header := range m {
		out[header] = key
	}
	return out
}

// Clone returns a copy that shares no storage with m.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FromHeaderMapping converts a header -> key mapping into a ColumnMapping.
// When several headers name the same key the first in headers order wins;
// headers not listed in order are applied afterwards in map order.
func FromHeaderMapping(byHeader map[string]string, order []string) ColumnMapping {
	out := make(ColumnMapping, len(byHeader))
	for _, h := range order {
		if key, ok := byHeader[h]; ok && key != "" {
			if _, taken := out[key]; !taken {
				out[key] = h
			}
		}
	}
	for h, key := range byHeader {
		if key == "" {
			continue
		}
		if _, taken := out[key]; !taken {
			out[key] = h
		}
	}
	return out
}

// Keys returns the schema's field keys in order.
func Keys(schema []SchemaField) []string {
	keys := make([]string, len(schema))
	for i, f := range schema {
		keys[i] = f.Key
	}
	return keys
}

// ExactMatch maps every schema key whose label equals a header, ignoring case
// and surrounding whitespace. The first matching header wins per key.
func ExactMatch(headers []string, schema []SchemaField) ColumnMapping {
	byLabel := make(map[string]string, len(schema))
	for _, f := range schema {
		label := normalizeLabel(f.Label)
		if _, exists := byLabel[label]; !exists {
			byLabel[label] = f.Key
		}
	}

	out := make(ColumnMapping)
	for _, h := range headers {
		key, ok := byLabel[normalizeLabel(h)]
		if !ok {
			continue
		}
		if _, taken := out[key]; !taken {
			out[key] = h
		}
	}
	return out
}

// Unresolved returns the schema keys m has no header for, in schema order.
func Unresolved(schema []SchemaField, m ColumnMapping) []string {
	var missing []string
	for _, f := range schema {
		if _, ok := m[f.Key]; !ok {
			missing = append(missing, f.Key)
		}
	}
	return missing
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
