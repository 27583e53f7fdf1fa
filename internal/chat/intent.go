package chat

import (
	"regexp"
	"strings"

	"github.com/JonMunkholm/HrmSqlChat/internal/report"
)

var exportIntent = regexp.MustCompile(`(?i)\b(?:word|docx|pdf|excel|csv|file|export|xuất|tải|báo cáo)\b`)

// ExportFormat reports whether the question asks for a downloadable file and,
// if so, which format it asks for.
func ExportFormat(question string) (report.Format, bool) {
	if !exportIntent.MatchString(question) {
		return "", false
	}
	lower := strings.ToLower(question)
	switch {
	case strings.Contains(lower, "pdf"):
		return report.FormatPDF, true
	case strings.Contains(lower, "csv"), strings.Contains(lower, "excel"):
		return report.FormatCSV, true
	default:
		return report.FormatDOCX, true
	}
}
