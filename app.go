package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/HrmSqlChat/internal/catalog"
	"github.com/JonMunkholm/HrmSqlChat/internal/chat"
	"github.com/JonMunkholm/HrmSqlChat/internal/config"
	"github.com/JonMunkholm/HrmSqlChat/internal/llm"
	"github.com/JonMunkholm/HrmSqlChat/internal/report"
	"github.com/JonMunkholm/HrmSqlChat/internal/sqlexec"
)

// app holds the long-lived collaborators shared by every command.
type app struct {
	catalog *catalog.Catalog
	service *chat.Service
	reports *report.Renderer
	closers []func() error
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.CatalogPath)
}

// newApp wires the catalog, completer, executor and report renderer.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	completer, err := llm.NewCompleter(ctx, llm.Config{
		Provider:  cfg.LLMProvider,
		APIKey:    cfg.LLMAPIKey,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.LLMBaseURL,
		MaxTokens: cfg.LLMMaxTokens,
		Timeout:   cfg.LLMTimeout,
	})
	if err != nil {
		return nil, err
	}

	a := &app{catalog: cat}

	var executor sqlexec.Executor
	switch cfg.Executor {
	case config.ExecutorDB:
		db, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		executor = sqlexec.NewDBExecutor(db, cfg.DBDriver, cfg.ExecutorTimeout, logger)
	default:
		executor = sqlexec.NewHTTPExecutor(cfg.APIURL, cfg.ExecutorTimeout, logger)
	}

	if cfg.ReportDir != "" {
		var opts []report.Option
		if cfg.ReportFont != "" {
			opts = append(opts, report.WithFont(cfg.ReportFont))
		}
		a.reports, err = report.NewRenderer(cfg.ReportDir, logger, opts...)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.service = chat.NewService(completer, executor, cat, chat.Options{
		Reports:       a.reports,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger,
	})

	logger.Info("pipeline ready",
		zap.String("catalog_version", cat.Version),
		zap.Int("tables", cat.TableCount()),
		zap.String("llm", completer.Name()),
		zap.String("executor", cfg.Executor),
		zap.Bool("reports", a.reports != nil))
	return a, nil
}

func (a *app) reportDir() string {
	if a.reports == nil {
		return ""
	}
	return a.reports.Dir()
}

// Close releases the database handle, if any.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
