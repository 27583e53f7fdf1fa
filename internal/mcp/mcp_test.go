package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/HrmSqlChat/internal/chat"
	"github.com/JonMunkholm/HrmSqlChat/internal/sqlguard"
)

type fakePipeline struct {
	resp      chat.Response
	gen       chat.Generation
	err       error
	questions []string
}

func (f *fakePipeline) Ask(ctx context.Context, q string) (chat.Response, error) {
	f.questions = append(f.questions, q)
	return f.resp, f.err
}

func (f *fakePipeline) GenerateSQL(ctx context.Context, q string) (chat.Generation, error) {
	f.questions = append(f.questions, q)
	return f.gen, f.err
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return text.Text
}

func TestHandleAsk(t *testing.T) {
	sql := "SELECT ho_ten FROM nhanvien"
	p := &fakePipeline{resp: chat.Response{SQL: &sql, Data: []any{}, Answer: "Không có ai đi muộn."}}
	s := New(p, "test", nil)

	result, err := s.handleAsk(context.Background(), toolRequest("hrm_ask", map[string]any{"question": " Hôm nay ai đi muộn? "}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	assert.Equal(t, "Không có ai đi muộn.", got["answer"])
	assert.Equal(t, sql, got["sql"])
	assert.Nil(t, got["download_url"])
	assert.Equal(t, []string{"Hôm nay ai đi muộn?"}, p.questions)
}

func TestHandleAskRequiresQuestion(t *testing.T) {
	p := &fakePipeline{}
	s := New(p, "test", nil)

	result, err := s.handleAsk(context.Background(), toolRequest("hrm_ask", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, p.questions)
}

func TestHandleAskFailure(t *testing.T) {
	s := New(&fakePipeline{err: fmt.Errorf("%w: boom", chat.ErrGeneration)}, "test", nil)

	result, err := s.handleAsk(context.Background(), toolRequest("hrm_ask", map[string]any{"question": "q"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "boom")
}

func TestHandleGenerateSQL(t *testing.T) {
	stmt, err := sqlguard.Sanitize("SELECT 1")
	require.NoError(t, err)
	s := New(&fakePipeline{gen: chat.Generation{Raw: "SELECT 1", Statement: stmt}}, "test", nil)

	result, err := s.handleGenerateSQL(context.Background(), toolRequest("hrm_generate_sql", map[string]any{"question": "q"}))
	require.NoError(t, err)

	var got generateResult
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	assert.Equal(t, "SELECT 1", got.SQL)
	assert.False(t, got.Rejected)
}

func TestHandleGenerateSQLRejection(t *testing.T) {
	_, rejErr := sqlguard.Sanitize("DROP TABLE nhanvien")
	var rej *sqlguard.Rejection
	require.True(t, errors.As(rejErr, &rej))
	s := New(&fakePipeline{gen: chat.Generation{Rejection: rej}}, "test", nil)

	result, err := s.handleGenerateSQL(context.Background(), toolRequest("hrm_generate_sql", map[string]any{"question": "xóa bảng"}))
	require.NoError(t, err)

	var got generateResult
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &got))
	assert.True(t, got.Rejected)
	assert.Equal(t, string(sqlguard.ReasonNotReadOnly), got.Reason)
	assert.Empty(t, got.SQL)
}

func TestHandleGenerateSQLModelUnavailable(t *testing.T) {
	s := New(&fakePipeline{err: fmt.Errorf("%w: 503", chat.ErrGeneration)}, "test", nil)

	result, err := s.handleGenerateSQL(context.Background(), toolRequest("hrm_generate_sql", map[string]any{"question": "q"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "unavailable")
}
