package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"invoicer/internal/auth"
	"invoicer/internal/cli"
	apphttp "invoicer/internal/http"
	"invoicer/internal/log"
	"invoicer/internal/metrics"
	"invoicer/internal/middleware/ratelimit"
	"invoicer/internal/pdf"
	"invoicer/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	res, err := cli.OpenBackend(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// bolt locks its file and memory lives in this process, so events are
	// handled here instead of by invoicer-worker.
	var queue *worker.Queue
	if !res.Shared {
		queue = worker.NewQueue(0)
		res.Publisher = queue
	}

	app, err := cli.NewApp(logger, cfg, res)
	if err != nil {
		logger.Error("Failed to initialize services", log.FieldError, err)
		os.Exit(1)
	}

	registry, err := metrics.NewRegistry(res.Collector)
	if err != nil {
		logger.Error("Failed to register metrics", log.FieldError, err)
		os.Exit(1)
	}

	exporter := pdf.NewExporter(cfg.BrowserBin, cfg.PDFTimeout, logger)
	authn := auth.New(cfg.AuthSecret, cfg.DevTenant, cfg.TokenTTL)
	if authn.DevMode() {
		logger.Warn("AUTH_SECRET not set, every request uses the dev tenant", "tenant", cfg.DevTenant)
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Documents: app.Documents,
		Dashboard: app.Dashboard,
		Renderer:  app.Renderer,
		Store:     res.Store,
		PDF:       exporter,
		Auth:      authn,
		Registry:  registry,
		Logger:    logger,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
	})
	if err != nil {
		logger.Error("Failed to configure HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	workersDone := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		select {
		case <-workersDone:
		case <-ctx.Done():
			logger.Warn("In-process workers did not stop in time")
		}
		app.Close()
		if err := exporter.Close(); err != nil {
			logger.Warn("Failed to close browser", log.FieldError, err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Failed to close backend", log.FieldError, err)
			}
		}
	})

	if queue != nil {
		local, err := cli.NewLocalWorkers(ctx, logger, cfg, res, app, queue, exporter)
		if err != nil {
			logger.Error("Failed to initialize in-process workers", log.FieldError, err)
			os.Exit(1)
		}
		go func() {
			defer close(workersDone)
			if err := local.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("In-process workers stopped", log.FieldError, err)
			}
		}()
	} else {
		close(workersDone)
	}

	logger.Info("Starting invoicer server", "port", cfg.Port, "backend", cfg.DataBackend, "events", res.Publisher != nil, "in_process_workers", queue != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
