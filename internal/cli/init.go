// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/invoicer, cmd/invoicer-worker and cmd/invoicectl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"invoicer/internal/backend"
	"invoicer/internal/cache"
	"invoicer/internal/config"
	"invoicer/internal/core"
	"invoicer/internal/log"
	"invoicer/internal/mail"
	"invoicer/internal/ports"
	"invoicer/internal/render"
	"invoicer/internal/services"
	gsheet "invoicer/internal/sheets/google"
	memledger "invoicer/internal/sheets/memory"
	"invoicer/internal/worker"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger initializes structured logging at the configured level and
// sets it as the process default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := log.New(log.Config{Level: level, Component: component, Output: os.Stdout})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend creates the configured document store.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger.Slog()).CreateBackend(ctx, bcfg)
}

// App bundles the services shared by the server, the worker and the CLI.
type App struct {
	Documents *services.DocumentService
	Dashboard *services.DashboardService
	Renderer  *render.Renderer
	KPICache  *cache.LRUCache[core.KPIs]

	caches *cache.Manager
}

// NewApp wires the services over an opened backend. Call Close when done.
func NewApp(logger *log.Logger, cfg *config.Config, res *backend.BackendResult) (*App, error) {
	renderer, err := render.New(nil)
	if err != nil {
		return nil, fmt.Errorf("load document templates: %w", err)
	}

	kpis := cache.NewLRUCache[core.KPIs]("kpis", cfg.KPICacheSize, cfg.KPICacheTTL)
	caches := cache.NewManager(logger.Slog())
	caches.Register(kpis)
	caches.StartCleanup(time.Minute)

	dash := services.NewDashboardService(res.Store, kpis)
	return &App{
		Documents: services.NewDocumentService(res.Store, res.Publisher, dash),
		Dashboard: dash,
		Renderer:  renderer,
		KPICache:  kpis,
		caches:    caches,
	}, nil
}

func (a *App) Close() {
	a.caches.Stop()
}

// NewLedger returns the Google Sheets ledger when a spreadsheet is
// configured and an in-process ledger otherwise.
func NewLedger(ctx context.Context, logger *log.Logger, cfg *config.Config) (ports.LedgerWriter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Ledger spreadsheet disabled - no GOOGLE_SPREADSHEET_ID provided")
		return memledger.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsFile: cfg.GoogleCredentialsFile,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets ledger: %w", err)
	}
	logger.Info("Google Sheets ledger initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client, nil
}

// NewMailer returns the SMTP mailer, or nil when no SMTP host is set.
func NewMailer(cfg *config.Config) ports.Mailer {
	if cfg.SMTPHost == "" {
		return nil
	}
	return mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
}

// NewLocalWorkers builds the in-process workers for a backend that
// invoicer-worker cannot open. queue must be the publisher the App's
// DocumentService was built with.
func NewLocalWorkers(ctx context.Context, logger *log.Logger, cfg *config.Config, res *backend.BackendResult, app *App, queue *worker.Queue, pdf ports.PDFRenderer) (*worker.Local, error) {
	ledger, err := NewLedger(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	local := &worker.Local{
		Queue:      queue,
		Ledger:     worker.NewLedgerWorker(res.Store, ledger, nil, worker.LedgerConfig{}),
		SweepEvery: cfg.OverdueInterval,
	}
	if mailer := NewMailer(cfg); mailer != nil {
		local.Delivery = worker.NewDeliveryWorker(app.Documents, app.Renderer, pdf, mailer)
	} else {
		logger.Info("SMTP delivery disabled - no SMTP_HOST provided")
	}
	if tenants, ok := res.Store.(ports.TenantLister); ok {
		local.Sweeper = services.NewOverdueProcessor(app.Documents, res.Store, tenants)
	}
	return local, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
