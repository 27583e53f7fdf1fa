// Package sqlexec dispatches safe statements to the system that owns the HRM
// database and normalizes whatever comes back into a Result.
package sqlexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JonMunkholm/HrmSqlChat/internal/sqlguard"
)

// Executor runs a safe statement. Implementations never return an error;
// every failure is a Result of KindError.
type Executor interface {
	Execute(ctx context.Context, stmt sqlguard.Statement) Result
}

// Kind tags the variant held by a Result.
type Kind int

const (
	KindEmpty Kind = iota
	KindRows
	KindScalar
	KindText
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindRows:
		return "rows"
	case KindScalar:
		return "scalar"
	case KindText:
		return "text"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Row maps column name to a normalized value.
type Row map[string]any

// Result is the normalized outcome of one execution.
//
//   - KindRows: Columns and Rows are set.
//   - KindScalar: Value is set; Columns/Rows are kept when the scalar came
//     from a one-row, one-column result set.
//   - KindEmpty: no rows; Columns may still be known.
//   - KindText: Raw holds a body that could not be decoded.
//   - KindError: Message describes the failure.
type Result struct {
	Kind    Kind
	Columns []string
	Rows    []Row
	Value   any
	Raw     string
	Message string

	// Truncated is set when the executor stopped at its row limit and Rows
	// holds only the first part of the result set.
	Truncated bool
}

// Empty returns a result with no rows.
func Empty(columns []string) Result {
	return Result{Kind: KindEmpty, Columns: columns}
}

// Failure returns an error result.
func Failure(format string, args ...any) Result {
	return Result{Kind: KindError, Message: fmt.Sprintf(format, args...)}
}

// FromRows classifies a result set: no rows (or no columns) is empty, a
// single cell is a scalar, anything else is a row set.
func FromRows(columns []string, rows []Row) Result {
	switch {
	case len(rows) == 0 || len(columns) == 0:
		return Empty(columns)
	case len(rows) == 1 && len(columns) == 1:
		return Result{Kind: KindScalar, Columns: columns, Rows: rows, Value: rows[0][columns[0]]}
	default:
		return Result{Kind: KindRows, Columns: columns, Rows: rows}
	}
}

// IsError reports whether the execution failed.
func (r Result) IsError() bool {
	return r.Kind == KindError
}

// Tabular reports whether the result holds at least one row that can be
// exported as a table.
func (r Result) Tabular() bool {
	return (r.Kind == KindRows || r.Kind == KindScalar) && len(r.Rows) > 0 && len(r.Columns) > 0
}

// Data returns the JSON-ready payload for API responses.
func (r Result) Data() any {
	switch r.Kind {
	case KindRows:
		return r.orderedRows()
	case KindScalar:
		if len(r.Rows) > 0 {
			return r.orderedRows()
		}
		return r.Value
	case KindEmpty:
		return []any{}
	case KindText:
		return r.Raw
	default:
		return nil
	}
}

// Text renders the result for inclusion in an LLM prompt.
func (r Result) Text() string {
	switch r.Kind {
	case KindRows:
		return mustJSON(r.orderedRows())
	case KindScalar:
		if len(r.Rows) > 0 {
			return mustJSON(r.orderedRows())
		}
		return mustJSON(r.Value)
	case KindEmpty:
		return "[]"
	case KindText:
		return r.Raw
	default:
		return "ERROR: " + r.Message
	}
}

// orderedRows keeps the column order of the result set when marshalled.
func (r Result) orderedRows() []orderedRow {
	out := make([]orderedRow, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = orderedRow{columns: r.Columns, row: row}
	}
	return out
}

type orderedRow struct {
	columns []string
	row     Row
}

func (o orderedRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range o.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(col)
		if err != nil {
			return nil, err
		}
		val, err := marshalNoEscape(o.row[col])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func mustJSON(v any) string {
	b, err := marshalNoEscape(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// clip shortens s to at most n runes for log and error messages.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
