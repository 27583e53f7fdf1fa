package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/HrmSqlChat/internal/catalog"
	"github.com/JonMunkholm/HrmSqlChat/internal/mcp"
	"github.com/JonMunkholm/HrmSqlChat/internal/prompt"
	"github.com/JonMunkholm/HrmSqlChat/internal/schema"
	"github.com/JonMunkholm/HrmSqlChat/internal/server"
	"github.com/JonMunkholm/HrmSqlChat/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP chat gateway",
	Long: `Serves POST /chat, POST /generate-sql, GET /schema, GET /download/{filename},
GET /healthz and the MCP streamable HTTP transport on /mcp.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and print the response as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var promptCmd = &cobra.Command{
	Use:   "prompt [question]",
	Short: "Print the SQL generation prompt for a question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPrompt,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the chat pipeline as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print a summary of the schema and rules catalog",
	Long: `Prints the catalog version, tables, rule blocks and example count.

With --verify, the catalog is compared against the database named by DB_DRIVER
and DB_DSN, and every table or column the database lacks is listed.`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

var verifyCatalog bool

func init() {
	catalogCmd.Flags().BoolVar(&verifyCatalog, "verify", false, "compare the catalog against the live database")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tools := mcp.New(a.service, version, logger)
	handler := server.New(server.Config{
		Pipeline:       a.service,
		Catalog:        a.catalog,
		ReportDir:      a.reportDir(),
		RequestTimeout: cfg.RequestTimeout,
		MCP:            mcpserver.NewStreamableHTTPServer(tools.MCPServer()),
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.service.Ask(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), prompt.BuildSQL(strings.Join(args, " "), cat))
	return err
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("serving MCP over stdio")
	return mcp.New(a.service, version, logger).ServeStdio()
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	printCatalog(cmd, cat)
	if !verifyCatalog {
		return nil
	}
	return verifyAgainstDB(cmd, cat)
}

func verifyAgainstDB(cmd *cobra.Command, cat *catalog.Catalog) error {
	if cfg.DBDSN == "" {
		return errors.New("catalog --verify needs DB_DSN")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ExecutorTimeout)
	defer cancel()

	db, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	live, err := schema.Inspect(ctx, db, cfg.DBDriver)
	if err != nil {
		return err
	}

	drift := schema.Diff(cat, live)
	out := cmd.OutOrStdout()
	if len(drift) == 0 {
		fmt.Fprintf(out, "Database matches catalog (%d live tables)\n", len(live))
		return nil
	}
	for _, d := range drift {
		fmt.Fprintf(out, "  %s\n", d)
	}
	return fmt.Errorf("catalog drift: %d problems", len(drift))
}

func printCatalog(cmd *cobra.Command, cat *catalog.Catalog) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Catalog version: %s (%s)\n", cat.Version, cat.Dialect)
	fmt.Fprintf(out, "Tables (%d):\n", cat.TableCount())
	for _, t := range cat.Tables {
		fmt.Fprintf(out, "  %-24s %d columns\n", t.Name, len(t.Columns))
	}
	fmt.Fprintf(out, "Rules: %s\n", strings.Join(cat.RuleNames(), ", "))
	fmt.Fprintf(out, "Examples: %d\n", len(cat.Examples))
}
