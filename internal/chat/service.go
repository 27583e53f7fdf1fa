// Package chat orchestrates one question through SQL generation, the safety
// gate, execution and answer phrasing.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JonMunkholm/HrmSqlChat/internal/catalog"
	"github.com/JonMunkholm/HrmSqlChat/internal/llm"
	"github.com/JonMunkholm/HrmSqlChat/internal/prompt"
	"github.com/JonMunkholm/HrmSqlChat/internal/report"
	"github.com/JonMunkholm/HrmSqlChat/internal/sqlexec"
	"github.com/JonMunkholm/HrmSqlChat/internal/sqlguard"
	"github.com/JonMunkholm/HrmSqlChat/internal/telemetry"
)

// Fixed user-facing messages.
const (
	MsgOffTopic       = "Xin lỗi. Tôi không có dữ liệu về vấn đề này!"
	MsgNotUnderstood  = "Xin lỗi, tôi không thể hiểu yêu cầu này."
	WarningMarker     = "⚠️ "
	defaultReportName = "Báo cáo HRM"
)

// Outcome labels a finished request for logs and metrics.
type Outcome string

const (
	OutcomeAnswered       Outcome = "answered"
	OutcomeOffTopic       Outcome = "off_topic"
	OutcomeRejected       Outcome = "rejected"
	OutcomeExecutionError Outcome = "execution_error"
	OutcomeFailed         Outcome = "failed"
)

var (
	// ErrGeneration wraps any failure of a completion call.
	ErrGeneration = errors.New("chat: completion failed")

	// ErrInternal wraps a panic recovered inside the pipeline.
	ErrInternal = errors.New("chat: internal error")
)

// Response is the final answer to one question.
type Response struct {
	SQL         *string          `json:"sql"`
	Data        any              `json:"data"`
	Answer      string           `json:"answer"`
	DownloadURL *string          `json:"download_url"`
	Outcome     Outcome          `json:"-"`
	Artifact    *report.Artifact `json:"-"`
}

// Generation is the result of the first two stages only.
type Generation struct {
	Raw       string
	Statement sqlguard.Statement
	Rejection *sqlguard.Rejection
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Reports       *report.Renderer // nil disables report export
	PublicBaseURL string           // prefix for download links
	Logger        *zap.Logger
}

// Service runs the chat pipeline. It holds no per-request state and is safe
// for concurrent use.
type Service struct {
	completer llm.Completer
	executor  sqlexec.Executor
	catalog   *catalog.Catalog
	reports   *report.Renderer
	baseURL   string
	logger    *zap.Logger

	tracer     trace.Tracer
	requests   metric.Int64Counter
	rejections metric.Int64Counter
}

// NewService wires the pipeline.
func NewService(completer llm.Completer, executor sqlexec.Executor, cat *catalog.Catalog, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := telemetry.Meter()
	requests, err := meter.Int64Counter("hrm.chat.requests",
		metric.WithDescription("Chat requests by outcome"))
	if err != nil {
		logger.Warn("create counter", zap.String("name", "hrm.chat.requests"), zap.Error(err))
	}
	rejections, err := meter.Int64Counter("hrm.sql.rejections",
		metric.WithDescription("Generated statements rejected by the safety gate, by reason"))
	if err != nil {
		logger.Warn("create counter", zap.String("name", "hrm.sql.rejections"), zap.Error(err))
	}

	return &Service{
		completer:  completer,
		executor:   executor,
		catalog:    cat,
		reports:    opts.Reports,
		baseURL:    strings.TrimRight(opts.PublicBaseURL, "/"),
		logger:     logger,
		tracer:     telemetry.Tracer(),
		requests:   requests,
		rejections: rejections,
	}
}

// Catalog returns the catalog the service generates against.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// GenerateSQL renders the generation prompt, calls the model and applies the
// safety gate. A rejection is a normal result, not an error.
func (s *Service) GenerateSQL(ctx context.Context, question string) (Generation, error) {
	ctx, span := s.tracer.Start(ctx, "chat.generate")
	defer span.End()

	raw, err := s.completer.Complete(ctx, prompt.BuildSQL(question, s.catalog))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return Generation{}, fmt.Errorf("%w: generate sql: %w", ErrGeneration, err)
	}

	gen := Generation{Raw: raw}
	stmt, err := sqlguard.Sanitize(raw)
	if err != nil {
		var rej *sqlguard.Rejection
		if !errors.As(err, &rej) {
			return Generation{}, err
		}
		gen.Rejection = rej
		span.SetAttributes(attribute.String("sql.rejection", string(rej.Reason)))
		s.countRejection(ctx, rej)
		s.logger.Info("statement rejected",
			zap.String("reason", string(rej.Reason)),
			zap.String("keyword", rej.Keyword),
			zap.String("raw", raw))
		return gen, nil
	}

	gen.Statement = stmt
	return gen, nil
}

// Ask answers one question end to end. Off-topic questions, unsafe
// statements and execution failures come back as answers; only completion
// failures and recovered panics are returned as errors.
func (s *Service) Ask(ctx context.Context, question string) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("chat pipeline panic", zap.Any("panic", r), zap.Stack("stack"))
			resp, err = Response{}, fmt.Errorf("%w: %v", ErrInternal, r)
		}
		outcome := resp.Outcome
		if err != nil {
			outcome = OutcomeFailed
		}
		s.countRequest(ctx, outcome)
	}()

	gen, err := s.GenerateSQL(ctx, question)
	if err != nil {
		return Response{}, err
	}

	if gen.Rejection != nil {
		if gen.Rejection.Reason == sqlguard.ReasonOffTopic {
			return Response{Answer: MsgOffTopic, Outcome: OutcomeOffTopic}, nil
		}
		return Response{Answer: MsgNotUnderstood, Outcome: OutcomeRejected}, nil
	}

	sql := gen.Statement.String()
	res := s.execute(ctx, gen.Statement)

	resp = Response{SQL: &sql, Data: res.Data()}

	if res.IsError() {
		resp.Answer = WarningMarker + res.Message
		resp.Outcome = OutcomeExecutionError
		return resp, nil
	}

	answer, err := s.answer(ctx, question, res)
	if err != nil {
		return Response{}, err
	}
	resp.Answer = answer
	resp.Outcome = OutcomeAnswered

	if format, ok := ExportFormat(question); ok && res.Tabular() {
		s.attachReport(ctx, &resp, question, res, format)
	}

	return resp, nil
}

func (s *Service) execute(ctx context.Context, stmt sqlguard.Statement) sqlexec.Result {
	ctx, span := s.tracer.Start(ctx, "chat.execute")
	defer span.End()

	res := s.executor.Execute(ctx, stmt)
	span.SetAttributes(attribute.String("result.kind", res.Kind.String()), attribute.Int("result.rows", len(res.Rows)))
	if res.IsError() {
		span.SetStatus(codes.Error, res.Message)
		s.logger.Warn("execution failed", zap.String("sql", stmt.String()), zap.String("error", res.Message))
	}
	return res
}

func (s *Service) answer(ctx context.Context, question string, res sqlexec.Result) (string, error) {
	ctx, span := s.tracer.Start(ctx, "chat.answer")
	defer span.End()

	text, err := s.completer.Complete(ctx, prompt.BuildAnswer(question, res))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", fmt.Errorf("%w: answer: %w", ErrGeneration, err)
	}
	return strings.TrimSpace(text), nil
}

// attachReport renders the result set and links it from the response.
// Failures are logged and never change the answer.
func (s *Service) attachReport(ctx context.Context, resp *Response, question string, res sqlexec.Result, format report.Format) {
	if s.reports == nil {
		return
	}

	_, span := s.tracer.Start(ctx, "chat.report")
	defer span.End()

	rows := make([]map[string]any, len(res.Rows))
	for i, r := range res.Rows {
		rows[i] = r
	}
	title := defaultReportName
	if q := strings.TrimSpace(question); q != "" {
		title = defaultReportName + ": " + q
	}

	art, err := s.reports.Render(report.Table{Title: title, Columns: res.Columns, Rows: rows}, format)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("report rendering failed", zap.String("format", string(format)), zap.Error(err))
		return
	}

	url := s.baseURL + "/download/" + art.FileName
	resp.DownloadURL = &url
	resp.Artifact = &art
}

func (s *Service) countRequest(ctx context.Context, outcome Outcome) {
	if s.requests == nil {
		return
	}
	s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (s *Service) countRejection(ctx context.Context, rej *sqlguard.Rejection) {
	if s.rejections == nil {
		return
	}
	s.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(rej.Reason))))
}
