// Package tabular turns uploaded files into a format-independent dataset.
//
// Every supported format (CSV, TSV, JSON, spreadsheet, XML) is parsed by an
// adapter that satisfies [Parser] and produces the same [Dataset] shape:
// ordered, unique header names plus rows keyed by header. Downstream code
// (auto-mapping, import) never needs to know which format a file came from.
//
// Use [Parse] with the original filename to detect the format and dispatch
// to the right adapter:
//
//	ds, err := tabular.Parse("customers.xlsx", data)
//	if errors.Is(err, tabular.ErrUnsupportedFormat) { ... }
package tabular

import (
	"strconv"
	"strings"
)

// Row maps a header name to its cell value. Missing cells are "".
type Row map[string]string

// Dataset is the canonical header/row representation of an uploaded file.
type Dataset struct {
	Headers []string
	Rows    []Row
}

// Sample returns up to n rows from the start of the dataset.
func (d *Dataset) Sample(n int) []Row {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	if n <= 0 {
		return []Row{}
	}
	return d.Rows[:n]
}

// builder accumulates headers and rows while enforcing the dataset invariants:
// headers are unique and in first-seen order, and every row carries exactly
// the header keys (missing cells default to "").
type builder struct {
	headers []string
	rows    []Row
}

// setHeaders installs the header row, renaming blank and repeated names the
// same way the spreadsheet and CSV libraries of most clients do
// ("__EMPTY", "Name_1", ...).
func (b *builder) setHeaders(raw []string) {
	seen := make(map[string]int, len(raw))
	b.headers = make([]string, 0, len(raw))
	for _, h := range raw {
		name := cleanHeader(h)
		if name == "" {
			name = "__EMPTY"
		}
		base := name
		for {
			if _, dup := seen[name]; !dup {
				break
			}
			seen[base]++
			name = base + "_" + strconv.Itoa(seen[base])
		}
		seen[name] = 0
		b.headers = append(b.headers, name)
	}
}

// addPositional appends a row given cells in header order.
// Cells beyond the header width are dropped.
func (b *builder) addPositional(cells []string) {
	row := make(Row, len(b.headers))
	for i, h := range b.headers {
		if i < len(cells) {
			row[h] = cells[i]
		} else {
			row[h] = ""
		}
	}
	b.rows = append(b.rows, row)
}

// addKeyed appends a row given cells keyed by name.
// Keys that are not headers are dropped.
func (b *builder) addKeyed(cells map[string]string) {
	row := make(Row, len(b.headers))
	for _, h := range b.headers {
		row[h] = cells[h]
	}
	b.rows = append(b.rows, row)
}

func (b *builder) dataset() *Dataset {
	headers := b.headers
	if headers == nil {
		headers = []string{}
	}
	rows := b.rows
	if rows == nil {
		rows = []Row{}
	}
	return &Dataset{Headers: headers, Rows: rows}
}

// cleanHeader trims whitespace and stray quote characters that some
// exporters leave around header names.
func cleanHeader(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "\""))
}

// isBlank reports whether every cell is empty after trimming.
func isBlank(cells []string) bool {
	for _, v := range cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
