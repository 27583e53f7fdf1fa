package report

import (
	"fmt"

	"github.com/go-pdf/fpdf"
)

const (
	pdfMargin     = 10.0
	pdfLineHeight = 7.0
	pdfFontFamily = "report"
)

// writePDF renders the table on A4 pages, switching to landscape for wide
// tables. The header row repeats on every page.
func writePDF(path string, t Table, fontPath string) error {
	orientation := "P"
	if len(t.Columns) > 5 {
		orientation = "L"
	}

	pdf := fpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)

	family := "Helvetica"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if fontPath != "" {
		pdf.AddUTF8Font(pdfFontFamily, "", fontPath)
		pdf.AddUTF8Font(pdfFontFamily, "B", fontPath)
		family = pdfFontFamily
		tr = func(s string) string { return s }
	}

	pageW, _ := pdf.GetPageSize()
	colW := (pageW - 2*pdfMargin) / float64(len(t.Columns))

	header := func() {
		pdf.SetFont(family, "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, col := range t.Columns {
			pdf.CellFormat(colW, pdfLineHeight, tr(col), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(family, "", 9)
	}
	pdf.SetHeaderFuncMode(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	}, true)

	pdf.AddPage()
	if t.Title != "" {
		pdf.SetFont(family, "B", 14)
		pdf.CellFormat(0, 10, tr(t.Title), "", 1, "C", false, 0, "")
		pdf.Ln(2)
	}
	header()

	for _, row := range t.Rows {
		for _, col := range t.Columns {
			pdf.CellFormat(colW, pdfLineHeight, tr(truncate(cellText(row[col]), colW)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(2)
	pdf.SetFont(family, "", 9)
	pdf.CellFormat(0, pdfLineHeight, tr(fmt.Sprintf("Tong so ban ghi: %d", len(t.Rows))), "", 1, "L", false, 0, "")

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.OutputFileAndClose(path)
}

// truncate keeps cell text roughly inside its column at the body font size.
func truncate(s string, width float64) string {
	limit := int(width / 1.9)
	r := []rune(s)
	if limit < 4 || len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
