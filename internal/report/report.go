// Package report renders tabular query results into downloadable files.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Format is a supported report file type.
type Format string

const (
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
	FormatCSV  Format = "csv"
)

var (
	ErrInvalidName   = errors.New("report: invalid file name")
	ErrNotFound      = errors.New("report: file not found")
	ErrNoRows        = errors.New("report: nothing to render")
	ErrUnknownFormat = errors.New("report: unknown format")
)

// ParseFormat maps a file extension or format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatDOCX, FormatPDF, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Table is the already-validated data a report is rendered from.
type Table struct {
	Title   string
	Columns []string
	Rows    []map[string]any
}

// Artifact describes a rendered report file.
type Artifact struct {
	FilePath string
	FileName string
	Format   Format
	RowCount int
}

// Renderer writes reports into a single directory.
type Renderer struct {
	dir      string
	fontPath string
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFont sets a TrueType font used for PDF output so Vietnamese text keeps
// its diacritics. Without it PDFs fall back to a core font.
func WithFont(path string) Option {
	return func(r *Renderer) { r.fontPath = path }
}

// WithClock overrides the time source used in file names.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// NewRenderer creates a renderer writing into dir, creating it if needed.
func NewRenderer(dir string, logger *zap.Logger, opts ...Option) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	r := &Renderer{dir: dir, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dir returns the directory reports are written to.
func (r *Renderer) Dir() string {
	return r.dir
}

// Render writes t in the requested format under a unique file name.
func (r *Renderer) Render(t Table, format Format) (Artifact, error) {
	if len(t.Rows) == 0 || len(t.Columns) == 0 {
		return Artifact{}, ErrNoRows
	}

	name := r.fileName(format)
	path := filepath.Join(r.dir, name)

	var err error
	switch format {
	case FormatDOCX:
		err = writeDOCX(path, t)
	case FormatPDF:
		err = writePDF(path, t, r.fontPath)
	case FormatCSV:
		err = writeCSV(path, t)
	default:
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		_ = os.Remove(path)
		return Artifact{}, fmt.Errorf("render %s: %w", format, err)
	}

	r.logger.Info("report rendered",
		zap.String("file", name),
		zap.String("format", string(format)),
		zap.Int("rows", len(t.Rows)))

	return Artifact{FilePath: path, FileName: name, Format: format, RowCount: len(t.Rows)}, nil
}

func (r *Renderer) fileName(format Format) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("report_%s_%s.%s", r.now().Format("20060102-150405"), id, format)
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*\.(docx|pdf|csv)$`)

// ResolvePath validates a requested file name and returns its path inside
// dir. Names with separators, parent references or unknown extensions are
// rejected before touching the file system.
func ResolvePath(dir, name string) (string, Format, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || !namePattern.MatchString(name) {
		return "", "", ErrInvalidName
	}

	format, err := ParseFormat(filepath.Ext(name))
	if err != nil {
		return "", "", ErrInvalidName
	}

	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", "", ErrNotFound
	}
	return path, format, nil
}

// cellText renders a cell the same way in every format.
func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return formatFloat(val)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
