package sqlexec

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/JonMunkholm/HrmSqlChat/internal/sqlguard"
)

const (
	// DefaultMaxRows caps how many rows a direct query may return.
	DefaultMaxRows = 1000
)

// DBExecutor runs statements against a database/sql connection. It is the
// local alternative to HTTPExecutor for deployments that can reach the HRM
// database directly.
type DBExecutor struct {
	db       *sql.DB
	driver   string
	timeout  time.Duration
	maxRows  int
	logger   *zap.Logger
	readOnly bool
}

// NewDBExecutor wraps db. Postgres connections run every statement in a
// read-only transaction.
func NewDBExecutor(db *sql.DB, driver string, timeout time.Duration, logger *zap.Logger) *DBExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBExecutor{
		db:       db,
		driver:   driver,
		timeout:  timeout,
		maxRows:  DefaultMaxRows,
		logger:   logger,
		readOnly: driver == "postgres",
	}
}

// Execute runs the statement and normalizes the result set.
func (e *DBExecutor) Execute(ctx context.Context, stmt sqlguard.Statement) Result {
	if stmt.IsZero() {
		return Failure("empty statement")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	res, err := e.query(ctx, stmt.String())
	if err != nil {
		e.logger.Warn("query failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return Failure("Lỗi thực thi truy vấn: %v", err)
	}
	e.logger.Debug("statement executed",
		zap.String("kind", res.Kind.String()),
		zap.Int("rows", len(res.Rows)),
		zap.Duration("elapsed", time.Since(start)))
	return res
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (e *DBExecutor) query(ctx context.Context, query string) (Result, error) {
	if !e.readOnly {
		return e.collect(ctx, e.db, query)
	}

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback() }()

	return e.collect(ctx, tx, query)
}

func (e *DBExecutor) collect(ctx context.Context, q querier, query string) (Result, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	var out []Row
	truncated := false
	for rows.Next() {
		if len(out) >= e.maxRows {
			e.logger.Info("row limit reached", zap.Int("limit", e.maxRows))
			truncated = true
			break
		}
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return Result{}, err
		}
		out = append(out, normalizeRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	res := FromRows(columns, out)
	res.Truncated = truncated
	return res, nil
}

func scanRow(rows *sql.Rows, numCols int) ([]any, error) {
	values := make([]any, numCols)
	ptrs := make([]any, numCols)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func normalizeRow(columns []string, values []any) Row {
	row := make(Row, len(values))
	for i, v := range values {
		switch val := v.(type) {
		case []byte:
			row[columns[i]] = string(val)
		case time.Time:
			row[columns[i]] = val.Format(time.RFC3339Nano)
		default:
			row[columns[i]] = val
		}
	}
	return row
}
