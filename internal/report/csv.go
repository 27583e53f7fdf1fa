package report

import (
	"encoding/csv"
	"os"
)

// writeCSV writes a header row followed by one line per record. A UTF-8 BOM
// is prepended so spreadsheet tools open Vietnamese text correctly.
func writeCSV(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := f.Write([]byte("\xEF\xBB\xBF")); err != nil {
		f.Close()
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		f.Close()
		return err
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			record[i] = cellText(row[col])
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
