package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JonMunkholm/HrmSqlChat/internal/chat"
	"github.com/JonMunkholm/HrmSqlChat/internal/report"
)

type questionRequest struct {
	Question string `json:"question"`
}

type generateResponse struct {
	SQL      *string `json:"sql"`
	Rejected bool    `json:"rejected"`
	Reason   string  `json:"reason,omitempty"`
}

type schemaColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Note string `json:"note,omitempty"`
}

type schemaTable struct {
	Name    string         `json:"name"`
	Note    string         `json:"note,omitempty"`
	Columns []schemaColumn `json:"columns"`
}

type schemaResponse struct {
	Version  string        `json:"version"`
	Dialect  string        `json:"dialect"`
	Tables   []schemaTable `json:"tables"`
	Rules    []string      `json:"rules"`
	Examples int           `json:"examples"`
}

func (s *Server) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := s.withTimeout(r)
	defer cancel()

	resp, err := s.pipeline.Ask(ctx, req.Question)
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Debug("chat answered",
		zap.String("outcome", string(resp.Outcome)),
		zap.Bool("download", resp.DownloadURL != nil))
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerateSQL(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := s.withTimeout(r)
	defer cancel()

	gen, err := s.pipeline.GenerateSQL(ctx, req.Question)
	if err != nil {
		s.logger.Error("generate sql failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if gen.Rejection != nil {
		respondJSON(w, http.StatusOK, generateResponse{Rejected: true, Reason: string(gen.Rejection.Reason)})
		return
	}
	sql := gen.Statement.String()
	respondJSON(w, http.StatusOK, generateResponse{SQL: &sql})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	out := schemaResponse{
		Version:  s.catalog.Version,
		Dialect:  s.catalog.Dialect,
		Tables:   make([]schemaTable, 0, len(s.catalog.Tables)),
		Rules:    s.catalog.RuleNames(),
		Examples: len(s.catalog.Examples),
	}
	for _, t := range s.catalog.Tables {
		st := schemaTable{Name: t.Name, Note: t.Note, Columns: make([]schemaColumn, 0, len(t.Columns))}
		for _, c := range t.Columns {
			st.Columns = append(st.Columns, schemaColumn{Name: c.Name, Type: c.Type, Note: c.Note})
		}
		out.Tables = append(out.Tables, st)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.reportDir == "" {
		respondError(w, http.StatusNotFound, "report export is disabled")
		return
	}

	path, format, err := report.ResolvePath(s.reportDir, chi.URLParam(r, "filename"))
	switch {
	case errors.Is(err, report.ErrInvalidName):
		respondError(w, http.StatusBadRequest, "invalid file name")
		return
	case errors.Is(err, report.ErrNotFound):
		respondError(w, http.StatusNotFound, "file not found")
		return
	case err != nil:
		s.logger.Error("resolve download", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not open file")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		respondError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not open file")
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

var _ Pipeline = (*chat.Service)(nil)
