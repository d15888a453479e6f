package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
)

// DelimitedParser reads comma- or tab-separated text. The first non-blank
// record is the header row.
type DelimitedParser struct {
	format Format
	comma  rune
}

// NewCSVParser returns the comma-separated adapter.
func NewCSVParser() *DelimitedParser {
	return &DelimitedParser{format: FormatCSV, comma: ','}
}

// NewTSVParser returns the tab-separated adapter.
func NewTSVParser() *DelimitedParser {
	return &DelimitedParser{format: FormatTSV, comma: '\t'}
}

// Format reports which format this adapter handles.
func (p *DelimitedParser) Format() Format { return p.format }

// Parse implements Parser.
func (p *DelimitedParser) Parse(data []byte) (*Dataset, error) {
	r := csv.NewReader(bytes.NewReader(normalizeText(data)))
	r.Comma = p.comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var b builder
	haveHeader := false
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseErr(p.format, "malformed record", err)
		}

		// encoding/csv already drops empty lines; this also skips ",,,".
		if isBlank(record) {
			continue
		}

		if !haveHeader {
			b.setHeaders(record)
			haveHeader = true
			continue
		}
		b.addPositional(record)
	}

	return b.dataset(), nil
}
