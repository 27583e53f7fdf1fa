package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/HrmSqlChat/internal/catalog"
	"github.com/JonMunkholm/HrmSqlChat/internal/chat"
	"github.com/JonMunkholm/HrmSqlChat/internal/sqlguard"
)

type fakePipeline struct {
	resp     chat.Response
	gen      chat.Generation
	err      error
	question string
	deadline bool
}

func (f *fakePipeline) Ask(ctx context.Context, question string) (chat.Response, error) {
	f.question = question
	_, f.deadline = ctx.Deadline()
	return f.resp, f.err
}

func (f *fakePipeline) GenerateSQL(ctx context.Context, question string) (chat.Generation, error) {
	f.question = question
	return f.gen, f.err
}

func newTestServer(t *testing.T, p Pipeline, reportDir string) *Server {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return New(Config{
		Pipeline:       p,
		Catalog:        cat,
		ReportDir:      reportDir,
		RequestTimeout: time.Minute,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestChatAnswered(t *testing.T) {
	sql := "SELECT ho_ten FROM nhanvien"
	p := &fakePipeline{resp: chat.Response{
		SQL:    &sql,
		Data:   []map[string]any{{"ho_ten": "An"}},
		Answer: "Có 1 nhân viên: An.",
	}}
	s := newTestServer(t, p, "")

	rec := do(t, s, http.MethodPost, "/chat", `{"question":"Ai?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, sql, body["sql"])
	assert.Equal(t, "Có 1 nhân viên: An.", body["answer"])
	assert.Nil(t, body["download_url"])
	assert.Len(t, body["data"], 1)
	assert.NotContains(t, body, "Outcome")
	assert.Equal(t, "Ai?", p.question)
	assert.True(t, p.deadline)
}

func TestChatOffTopicHasNullFields(t *testing.T) {
	p := &fakePipeline{resp: chat.Response{Answer: chat.MsgOffTopic}}
	rec := do(t, newTestServer(t, p, ""), http.MethodPost, "/chat", `{"question":"Thời tiết?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, chat.MsgOffTopic, body["answer"])
	assert.Contains(t, body, "sql")
	assert.Nil(t, body["sql"])
	assert.Nil(t, body["data"])
}

func TestChatBadRequest(t *testing.T) {
	s := newTestServer(t, &fakePipeline{}, "")

	for _, body := range []string{"", "{", `{"question":42}`} {
		rec := do(t, s, http.MethodPost, "/chat", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, decode(t, rec), "detail", body)
	}
}

func TestChatPipelineError(t *testing.T) {
	p := &fakePipeline{err: errors.New("chat: completion failed: openai API error: quota")}
	rec := do(t, newTestServer(t, p, ""), http.MethodPost, "/chat", `{"question":"Ai?"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "quota")
}

func TestGenerateSQL(t *testing.T) {
	stmt, err := sqlguard.Sanitize("```sql\nSELECT 1\n```")
	require.NoError(t, err)

	p := &fakePipeline{gen: chat.Generation{Statement: stmt}}
	rec := do(t, newTestServer(t, p, ""), http.MethodPost, "/generate-sql", `{"question":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "SELECT 1", body["sql"])
	assert.Equal(t, false, body["rejected"])

	p.gen = chat.Generation{Rejection: &sqlguard.Rejection{Reason: sqlguard.ReasonNotReadOnly}}
	rec = do(t, newTestServer(t, p, ""), http.MethodPost, "/generate-sql", `{"question":"x"}`)
	body = decode(t, rec)
	assert.Nil(t, body["sql"])
	assert.Equal(t, true, body["rejected"])
	assert.Equal(t, "not_read_only", body["reason"])
}

func TestSchema(t *testing.T) {
	s := newTestServer(t, &fakePipeline{}, "")
	rec := do(t, s, http.MethodGet, "/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out schemaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, s.catalog.Version, out.Version)
	assert.Len(t, out.Tables, s.catalog.TableCount())
	assert.Equal(t, s.catalog.RuleNames(), out.Rules)
	assert.Equal(t, len(s.catalog.Examples), out.Examples)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakePipeline{}, "")
	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, s.catalog.Version, body["catalog_version"])
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	name := "report_20251201-093005_abcd1234.csv"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("a,b\n1,2\n"), 0o644))
	s := newTestServer(t, &fakePipeline{}, dir)

	rec := do(t, s, http.MethodGet, "/download/"+name, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="`+name+`"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n1,2\n", rec.Body.String())
}

func TestDownloadRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, &fakePipeline{}, dir)

	rec := do(t, s, http.MethodGet, "/download/report.exe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/download/..secret.csv", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/download/missing.pdf", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadDisabled(t *testing.T) {
	rec := do(t, newTestServer(t, &fakePipeline{}, ""), http.MethodGet, "/download/a.csv", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakePipeline{}, "")
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDHeaderIsAccepted(t *testing.T) {
	s := newTestServer(t, &fakePipeline{}, "")
	req := httptest.NewRequest(http.MethodGet, "/healthz", strings.NewReader(""))
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIndexPage(t *testing.T) {
	s := newTestServer(t, &fakePipeline{}, "")
	rec := do(t, s, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "catalog "+s.catalog.Version)
	assert.Contains(t, rec.Body.String(), "fetch('/chat'")
}

func TestChatDoesNotEscapeHTML(t *testing.T) {
	p := &fakePipeline{resp: chat.Response{
		Data:   []map[string]any{{"ghi_chu": "<b>Đi muộn</b> & về sớm"}},
		Answer: "An <An> & Co",
	}}
	rec := do(t, newTestServer(t, p, ""), http.MethodPost, "/chat", `{"question":"Ai?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"answer":"An <An> & Co"`)
	assert.Contains(t, rec.Body.String(), `"ghi_chu":"<b>Đi muộn</b> & về sớm"`)
}
