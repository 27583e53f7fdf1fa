package report

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	return Table{
		Title:   "Danh sách nhân viên đi muộn",
		Columns: []string{"ho_ten", "check_in", "so_lan"},
		Rows: []map[string]any{
			{"ho_ten": "Nguyễn Văn An", "check_in": "08:15:00", "so_lan": int64(3)},
			{"ho_ten": "Trần <Bình> & Co", "check_in": nil, "so_lan": 0.0},
		},
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(filepath.Join(t.TempDir(), "reports"), nil,
		WithClock(func() time.Time { return time.Date(2025, 12, 1, 9, 30, 5, 0, time.UTC) }))
	require.NoError(t, err)
	return r
}

var tableRow = regexp.MustCompile(`<w:tr[ >]`)

var artifactName = regexp.MustCompile(`^report_20251201-093005_[0-9a-f]{8}\.(docx|pdf|csv)$`)

func TestRenderDOCX(t *testing.T) {
	r := newTestRenderer(t)

	art, err := r.Render(sampleTable(), FormatDOCX)
	require.NoError(t, err)
	assert.Regexp(t, artifactName, art.FileName)
	assert.Equal(t, 2, art.RowCount)
	assert.Equal(t, FormatDOCX, art.Format)

	zr, err := zip.OpenReader(art.FilePath)
	require.NoError(t, err)
	defer zr.Close()

	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}
	require.Contains(t, names, "[Content_Types].xml")
	require.Contains(t, names, "_rels/.rels")
	require.Contains(t, names, "word/document.xml")

	rc, err := names["word/document.xml"].Open()
	require.NoError(t, err)
	doc, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)

	assert.Contains(t, string(doc), "Nguyễn Văn An")
	assert.Contains(t, string(doc), "Trần &lt;Bình&gt; &amp; Co")
	assert.Contains(t, string(doc), "<w:tbl")
	assert.Contains(t, string(doc), "Tổng số bản ghi: 2")
	assert.Len(t, tableRow.FindAll(doc, -1), 3)
}

func TestRenderCSV(t *testing.T) {
	r := newTestRenderer(t)

	art, err := r.Render(sampleTable(), FormatCSV)
	require.NoError(t, err)

	data, err := os.ReadFile(art.FilePath)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("\xEF\xBB\xBF")))

	records, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"ho_ten", "check_in", "so_lan"},
		{"Nguyễn Văn An", "08:15:00", "3"},
		{"Trần <Bình> & Co", "", "0"},
	}, records)
}

func TestRenderPDF(t *testing.T) {
	r := newTestRenderer(t)

	art, err := r.Render(sampleTable(), FormatPDF)
	require.NoError(t, err)

	data, err := os.ReadFile(art.FilePath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestRenderNamesAreUnique(t *testing.T) {
	r := newTestRenderer(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		art, err := r.Render(sampleTable(), FormatCSV)
		require.NoError(t, err)
		assert.False(t, seen[art.FileName], art.FileName)
		seen[art.FileName] = true
	}
}

func TestRenderRejectsEmptyAndUnknown(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Render(Table{Columns: []string{"a"}}, FormatCSV)
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = r.Render(sampleTable(), Format("xlsx"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestResolvePath(t *testing.T) {
	r := newTestRenderer(t)
	art, err := r.Render(sampleTable(), FormatDOCX)
	require.NoError(t, err)

	path, format, err := ResolvePath(r.Dir(), art.FileName)
	require.NoError(t, err)
	assert.Equal(t, art.FilePath, path)
	assert.Equal(t, FormatDOCX, format)

	for _, name := range []string{
		"",
		"../secret.docx",
		"..docx",
		"a/b.docx",
		`a\b.docx`,
		"/etc/passwd",
		".hidden.csv",
		"report.exe",
		"report.docx.sh",
	} {
		_, _, err := ResolvePath(r.Dir(), name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}

	_, _, err = ResolvePath(r.Dir(), "report_missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(".PDF")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestCellText(t *testing.T) {
	assert.Equal(t, "", cellText(nil))
	assert.Equal(t, "12", cellText(12.0))
	assert.Equal(t, "12.35", cellText(12.346))
	assert.Equal(t, "7", cellText(int64(7)))
	assert.Equal(t, "true", cellText(true))
	assert.Equal(t, `{"x":1}`, cellText(map[string]any{"x": 1}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 60))
	long := "Nguyễn Văn An Trần Thị Bình Lê Văn Cường"
	out := truncate(long, 20)
	assert.Less(t, len([]rune(out)), len([]rune(long)))
	assert.Contains(t, out, "...")
}
