package tabular

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies which parser adapter handles a file.
type Format string

const (
	FormatCSV         Format = "csv"
	FormatTSV         Format = "tsv"
	FormatJSON        Format = "json"
	FormatSpreadsheet Format = "spreadsheet"
	FormatXML         Format = "xml"
)

// ErrUnsupportedFormat is returned for any extension without a parser,
// including ones the transport layer lets through (e.g. .pdf).
var ErrUnsupportedFormat = errors.New("unsupported file type")

// ErrParse is matched by every *ParseError via errors.Is.
var ErrParse = errors.New("parse error")

// ParseError reports malformed or structurally unexpected input.
type ParseError struct {
	Format Format
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Format, e.Detail, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Format, e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrParse) match any ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

func parseErr(f Format, detail string, cause error) error {
	return &ParseError{Format: f, Detail: detail, Err: cause}
}

// DetectFormat classifies a file by its lowercased extension.
func DetectFormat(filename string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case "csv":
		return FormatCSV, nil
	case "tsv":
		return FormatTSV, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "xls":
		return FormatSpreadsheet, nil
	case "xml":
		return FormatXML, nil
	default:
		return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
	}
}
