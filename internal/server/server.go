// Package server exposes the chat pipeline over HTTP.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JonMunkholm/HrmSqlChat/internal/catalog"
	"github.com/JonMunkholm/HrmSqlChat/internal/chat"
)

const maxBodyBytes = 1 << 20

//go:embed templates/index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

// Pipeline is the subset of chat.Service the handlers need.
type Pipeline interface {
	Ask(ctx context.Context, question string) (chat.Response, error)
	GenerateSQL(ctx context.Context, question string) (chat.Generation, error)
}

// Config wires a Server.
type Config struct {
	Pipeline       Pipeline
	Catalog        *catalog.Catalog
	ReportDir      string        // empty disables /download
	RequestTimeout time.Duration // bound on one /chat round trip
	MCP            http.Handler  // optional streamable MCP transport
	Logger         *zap.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	pipeline  Pipeline
	catalog   *catalog.Catalog
	reportDir string
	timeout   time.Duration
	logger    *zap.Logger
	router    chi.Router
}

// New builds the router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipeline:  cfg.Pipeline,
		catalog:   cfg.Catalog,
		reportDir: cfg.ReportDir,
		timeout:   cfg.RequestTimeout,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Post("/chat", s.handleChat)
	r.Post("/generate-sql", s.handleGenerateSQL)
	r.Get("/schema", s.handleSchema)
	r.Get("/download/{filename}", s.handleDownload)
	r.Get("/healthz", s.handleHealth)
	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
	}

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, errorResponse{Detail: detail})
}

var errEmptyBody = errors.New("request body is required")

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		CatalogVersion string
		TableCount     int
		Placeholder    string
	}{
		CatalogVersion: s.catalog.Version,
		TableCount:     s.catalog.TableCount(),
		Placeholder:    "Hôm nay ai đi muộn?",
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		s.logger.Error("render index", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":          "ok",
		"catalog_version": s.catalog.Version,
	})
}
