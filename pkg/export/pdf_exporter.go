package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const utf8FontFamily = "roster"

// PDFExporter renders datasets into a tabular A4 PDF.
type PDFExporter struct {
	fontPath string
}

// NewPDFExporter constructs a PDF exporter. fontPath points at a TTF with Cyrillic glyphs;
// without it the core Arial font is used and non-Latin names will not render.
func NewPDFExporter(fontPath string) *PDFExporter {
	return &PDFExporter{fontPath: fontPath}
}

// ContentType implements Renderer.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension implements Renderer.
func (e *PDFExporter) Extension() string { return ".pdf" }

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)

	family := "Arial"
	if e.fontPath != "" {
		pdf.AddUTF8Font(utf8FontFamily, "", e.fontPath)
		pdf.AddUTF8Font(utf8FontFamily, "B", e.fontPath)
		family = utf8FontFamily
	}
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont(family, "B", 14)
		pdf.MultiCell(0, 8, data.Title, "", "C", false)
		pdf.Ln(4)
	}

	widths := columnWidths(data.Headers)

	pdf.SetFont(family, "B", 10)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(family, "", 9)
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths gives the first column (a row number) a narrow slot and splits the rest evenly.
func columnWidths(headers []string) []float64 {
	const page = 190.0
	widths := make([]float64, len(headers))
	if len(headers) == 1 {
		widths[0] = page
		return widths
	}
	first := 12.0
	rest := (page - first) / float64(len(headers)-1)
	widths[0] = first
	for i := 1; i < len(headers); i++ {
		widths[i] = rest
	}
	return widths
}
