package export

import "fmt"

// Renderer turns a dataset into a downloadable document.
type Renderer interface {
	Render(Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// Format names a supported sheet format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// Registry resolves formats to renderers.
type Registry map[Format]Renderer

// NewRegistry wires the CSV and PDF exporters.
func NewRegistry(pdfFontPath string) Registry {
	return Registry{
		FormatCSV: NewCSVExporter(','),
		FormatPDF: NewPDFExporter(pdfFontPath),
	}
}

// Get returns the renderer for the format.
func (r Registry) Get(format Format) (Renderer, error) {
	renderer, ok := r[format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return renderer, nil
}
