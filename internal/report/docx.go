package report

import (
	"fmt"

	"github.com/gomutex/godocx"
)

const docxTableStyle = "LightList-Accent1"

// writeDOCX writes a Word document: a title heading, one table with a header
// row and a closing row count.
func writeDOCX(path string, t Table) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("new document: %w", err)
	}

	if t.Title != "" {
		if _, err := doc.AddHeading(t.Title, 1); err != nil {
			return fmt.Errorf("add heading: %w", err)
		}
	}

	table := doc.AddTable()
	table.Style(docxTableStyle)

	header := table.AddRow()
	for _, col := range t.Columns {
		header.AddCell().AddParagraph(col)
	}
	for _, row := range t.Rows {
		r := table.AddRow()
		for _, col := range t.Columns {
			r.AddCell().AddParagraph(cellText(row[col]))
		}
	}

	doc.AddParagraph(fmt.Sprintf("Tổng số bản ghi: %d", len(t.Rows)))

	return doc.SaveTo(path)
}
