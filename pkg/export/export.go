package export

import (
	"fmt"
	"strings"
)

// Supported export formats.
const (
	FormatPDF = "pdf"
	FormatCSV = "csv"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Field is a labelled value printed above the table.
type Field struct {
	Label string
	Value string
}

// Report is the document handed to a renderer.
type Report struct {
	Title   string
	Summary []Field
	Table   Dataset
	Notes   []string
}

// Renderer turns a report into file bytes.
type Renderer interface {
	Render(Report) ([]byte, error)
	ContentType() string
	Extension() string
}

// ForFormat returns the renderer registered for format.
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case FormatPDF:
		return NewPDFExporter(), nil
	case FormatCSV:
		return NewCSVExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
