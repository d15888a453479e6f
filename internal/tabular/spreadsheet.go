package tabular

import (
	"bytes"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetParser reads the first sheet of a workbook. The first non-blank
// row is the header row; cells render with the workbook's number formats.
type SpreadsheetParser struct{}

// NewSpreadsheetParser returns the spreadsheet adapter.
func NewSpreadsheetParser() *SpreadsheetParser { return &SpreadsheetParser{} }

// Format reports which format this adapter handles.
func (p *SpreadsheetParser) Format() Format { return FormatSpreadsheet }

// Parse implements Parser.
func (p *SpreadsheetParser) Parse(data []byte) (*Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, parseErr(FormatSpreadsheet, "open workbook", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, parseErr(FormatSpreadsheet, "no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, parseErr(FormatSpreadsheet, "read sheet "+sheets[0], err)
	}

	var b builder
	haveHeader := false
	for _, cells := range rows {
		if isBlank(cells) {
			continue
		}
		if !haveHeader {
			b.setHeaders(cells)
			haveHeader = true
			continue
		}
		b.addPositional(cells)
	}
	return b.dataset(), nil
}
