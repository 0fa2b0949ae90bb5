package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// ApprovalSummary describes the data rendered into the approval
// summary document produced after an application is approved.
type ApprovalSummary struct {
	ApplicationID string
	StudentName   string
	SessionName   string
	CompanyName   string
	Period        string
	Status        string
	Documents     []DocumentRow
}

// DocumentRow is one packet entry in the summary table.
type DocumentRow struct {
	Type     string
	Status   string
	FileName string
}

// PDFExporter renders approval summaries into PDF bytes.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the approval summary PDF.
func (e *PDFExporter) Render(summary ApprovalSummary) ([]byte, error) {
	if summary.ApplicationID == "" {
		return nil, fmt.Errorf("pdf requires an application id")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper("Internship Approval Summary"), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 10)
	for _, line := range []struct{ label, value string }{
		{"Application", summary.ApplicationID},
		{"Student", summary.StudentName},
		{"Session", summary.SessionName},
		{"Company", summary.CompanyName},
		{"Period", summary.Period},
		{"Status", summary.Status},
	} {
		pdf.CellFormat(40, 7, line.label, "", 0, "", false, 0, "")
		pdf.CellFormat(0, 7, line.value, "", 1, "", false, 0, "")
	}
	pdf.Ln(5)

	headers := []string{"Form", "Status", "File"}
	widths := []float64{40, 50, 100}
	pdf.SetFont("Arial", "B", 10)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range summary.Documents {
		pdf.CellFormat(widths[0], 7, row.Type, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 7, row.Status, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[2], 7, row.FileName, "1", 0, "", false, 0, "")
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
