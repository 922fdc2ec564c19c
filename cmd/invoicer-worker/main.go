package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"invoicer/internal/amqp"
	"invoicer/internal/backend"
	"invoicer/internal/cli"
	"invoicer/internal/log"
	"invoicer/internal/pdf"
	"invoicer/internal/ports"
	"invoicer/internal/services"
	"invoicer/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting invoicer-worker")

	if !backend.BackendType(cfg.DataBackend).Shared() {
		logger.Error("invoicer-worker needs the sqlite backend; with bolt or memory the server runs the workers itself",
			"backend", cfg.DataBackend)
		os.Exit(1)
	}

	res, err := cli.OpenBackend(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Failed to close backend", log.FieldError, err)
			}
		}
	}()

	app, err := cli.NewApp(logger, cfg, res)
	if err != nil {
		logger.Error("Failed to initialize services", log.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	ledger, err := cli.NewLedger(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize ledger", log.FieldError, err)
		os.Exit(1)
	}

	// Only the sqlite backend tracks pending ledger versions.
	var pending worker.PendingSource
	if res.Ledger != nil {
		pending = res.Ledger
	}
	ledgerWorker := worker.NewLedgerWorker(res.Store, ledger, pending, worker.LedgerConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	})

	var delivery *worker.DeliveryWorker
	exporter := pdf.NewExporter(cfg.BrowserBin, cfg.PDFTimeout, logger)
	defer exporter.Close()
	if mailer := cli.NewMailer(cfg); mailer != nil {
		delivery = worker.NewDeliveryWorker(app.Documents, app.Renderer, exporter, mailer)
		logger.Info("SMTP delivery enabled", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
	} else {
		logger.Info("SMTP delivery disabled - no SMTP_HOST provided")
	}
	dispatcher := worker.NewDispatcher(ledgerWorker, delivery)

	// On startup, mirror any versions that changed while the worker was down.
	logger.Info("Performing startup ledger sync check...")
	if err := ledgerWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup ledger sync check", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP consumer", log.FieldError, err)
			os.Exit(1)
		}
		defer consumer.Close()

		g.Go(func() error {
			logger.Info("Consuming document events", "queue", cfg.AMQPQueue, "handlers", dispatcher.Len())
			return consumer.Consume(gctx, dispatcher.Handle)
		})
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP_URL provided")
	}

	if err := ledgerWorker.Start(gctx); err != nil {
		logger.Error("Failed to start ledger worker", log.FieldError, err)
		os.Exit(1)
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return ledgerWorker.Stop(stopCtx)
	})

	if tenants, ok := res.Store.(ports.TenantLister); ok {
		sweeper := services.NewOverdueProcessor(app.Documents, res.Store, tenants)
		g.Go(func() error {
			logger.Info("Overdue sweeper started", "interval", cfg.OverdueInterval)
			return sweeper.Run(gctx, cfg.OverdueInterval)
		})
	} else {
		logger.Warn("Backend cannot list tenants, overdue sweeper disabled", "backend", cfg.DataBackend)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
