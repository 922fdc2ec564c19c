package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoicer/internal/backend"
	"invoicer/internal/cli"
	"invoicer/internal/config"
	"invoicer/internal/log"
)

// env is opened lazily by commands that need the document store.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	res    *backend.BackendResult
	app    *cli.App
}

func (e *env) open(ctx context.Context) error {
	if e.app != nil {
		return nil
	}
	res, err := cli.OpenBackend(ctx, e.logger, e.cfg)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	app, err := cli.NewApp(e.logger, e.cfg, res)
	if err != nil {
		if res.Cleanup != nil {
			_ = res.Cleanup()
		}
		return err
	}
	e.res, e.app = res, app
	return nil
}

func (e *env) close() {
	if e.app != nil {
		e.app.Close()
	}
	if e.res != nil && e.res.Cleanup != nil {
		if err := e.res.Cleanup(); err != nil {
			e.logger.Warn("Failed to close backend", log.FieldError, err)
		}
	}
	e.app, e.res = nil, nil
}

func newRootCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Administer invoicer tenants and documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			e.cfg = config.Load()
			if err := e.cfg.Validate(); err != nil {
				return err
			}
			e.logger = cli.SetupLogger(e.cfg, log.ComponentApp)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}
	cmd.AddCommand(
		newTokenCommand(e),
		newRenderCommand(e),
		newExportCommand(e),
		newSweepCommand(e),
		newSeedCommand(e),
	)
	return cmd
}

func main() {
	e := &env{}
	if err := newRootCommand(e).Execute(); err != nil {
		e.close()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
