package sqlexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JonMunkholm/HrmSqlChat/internal/sqlguard"
)

const (
	// DefaultTimeout bounds a single call to the remote executor.
	DefaultTimeout = 15 * time.Second

	maxBodyBytes = 8 << 20
)

// HTTPExecutor posts statements to the remote HRM execute-sql endpoint.
type HTTPExecutor struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPExecutor creates an executor for the given endpoint. A zero timeout
// uses DefaultTimeout.
func NewHTTPExecutor(url string, timeout time.Duration, logger *zap.Logger) *HTTPExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPExecutor{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type executeRequest struct {
	Command string `json:"command"`
}

// Execute sends the statement as {"command": sql}. It performs exactly one
// attempt; timeouts and non-2xx statuses become KindError results.
func (e *HTTPExecutor) Execute(ctx context.Context, stmt sqlguard.Statement) Result {
	if stmt.IsZero() {
		return Failure("empty statement")
	}

	body, err := json.Marshal(executeRequest{Command: stmt.String()})
	if err != nil {
		return Failure("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return Failure("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("executor unreachable", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Failure("Lỗi kết nối đến máy chủ dữ liệu: hết thời gian chờ (%s)", e.client.Timeout)
		}
		return Failure("Lỗi kết nối đến máy chủ dữ liệu: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Failure("Lỗi đọc phản hồi từ hệ thống dữ liệu: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logger.Warn("executor returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", clip(string(respBody), 500)))
		detail := clip(string(respBody), 500)
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return Failure("Lỗi từ hệ thống dữ liệu (HTTP %d): %s", resp.StatusCode, detail)
	}

	res := DecodeBody(respBody)
	e.logger.Debug("statement executed",
		zap.String("kind", res.Kind.String()),
		zap.Int("rows", len(res.Rows)),
		zap.Duration("elapsed", time.Since(start)))
	return res
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// String describes the executor for logs.
func (e *HTTPExecutor) String() string {
	return fmt.Sprintf("http(%s)", e.url)
}
