// Package mcp exposes the chat pipeline as Model Context Protocol tools, the
// tool-calling integration style for agents that prefer MCP over HTTP.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/JonMunkholm/HrmSqlChat/internal/chat"
)

// Pipeline is the subset of chat.Service the tools need.
type Pipeline interface {
	Ask(ctx context.Context, question string) (chat.Response, error)
	GenerateSQL(ctx context.Context, question string) (chat.Generation, error)
}

// Server wraps the MCP server around a chat pipeline.
type Server struct {
	mcpServer *mcpserver.MCPServer
	pipeline  Pipeline
	logger    *zap.Logger
}

// New creates and configures the MCP server with all tools.
func New(pipeline Pipeline, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{pipeline: pipeline, logger: logger}

	s.mcpServer = mcpserver.NewMCPServer(
		"hrmchat",
		version,
		mcpserver.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio serves the tools over stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("hrm_ask",
			mcplib.WithDescription(`Answer a question about the HR management database (employees, departments,
attendance, leave, payroll, projects, tasks) in natural language.

The question is translated into one read-only SQL statement, executed, and the
rows are phrased as an answer. Off-topic questions get a fixed apology.

WHAT YOU GET BACK: answer, sql, data and download_url (when a file export was requested).`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("question",
				mcplib.Description("The user's question, usually in Vietnamese, e.g. \"Hôm nay ai đi muộn?\""),
				mcplib.Required(),
			),
		),
		s.handleAsk,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("hrm_generate_sql",
			mcplib.WithDescription("Translate a question into the read-only SQL statement the HRM pipeline would run, without executing it."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("question",
				mcplib.Description("The question to translate"),
				mcplib.Required(),
			),
		),
		s.handleGenerateSQL,
	)
}

func (s *Server) handleAsk(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	question := strings.TrimSpace(request.GetString("question", ""))
	if question == "" {
		return errorResult("question is required"), nil
	}

	resp, err := s.pipeline.Ask(ctx, question)
	if err != nil {
		s.logger.Error("mcp ask failed", zap.Error(err))
		return errorResult(fmt.Sprintf("ask failed: %v", err)), nil
	}

	return jsonResult(resp), nil
}

type generateResult struct {
	SQL      string `json:"sql,omitempty"`
	Rejected bool   `json:"rejected"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleGenerateSQL(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	question := strings.TrimSpace(request.GetString("question", ""))
	if question == "" {
		return errorResult("question is required"), nil
	}

	gen, err := s.pipeline.GenerateSQL(ctx, question)
	if err != nil {
		if errors.Is(err, chat.ErrGeneration) {
			return errorResult("the language model is unavailable"), nil
		}
		return errorResult(fmt.Sprintf("generate failed: %v", err)), nil
	}

	if gen.Rejection != nil {
		return jsonResult(generateResult{Rejected: true, Reason: string(gen.Rejection.Reason)}), nil
	}
	return jsonResult(generateResult{SQL: gen.Statement.String()}), nil
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err))
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
