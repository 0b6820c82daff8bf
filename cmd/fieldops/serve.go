package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/hsdfat8/fieldops/internal/adapters/http"
)

var serveH2C bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the connectivity sampler",
	Long: `Starts the JSON API over HTTP/1.1 or h2c. When simulator.autoStart is set the
background connectivity sampler runs for simulator.duration (0 runs until shutdown).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveH2C, "h2c", true, "serve HTTP/2 cleartext alongside HTTP/1.1")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	deps := httpAdapter.Dependencies{
		Store:     app.store,
		Catalog:   app.catalog,
		Simulator: app.sim,
		Harness:   app.harness,
	}
	if app.structured != nil {
		deps.Database = app.structured
	}
	if cfg.Metrics.Enabled {
		deps.MetricsPath = cfg.Metrics.Path
	}

	server := httpAdapter.NewServer(httpAdapter.ServerConfig{
		ListenAddr:   fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		EnableH2C:    serveH2C,
	}, deps)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	app.logger.Infow("HTTP server listening", "address", server.GetAddr())

	if cfg.Simulator.AutoStart {
		if err := app.sim.Start(cfg.Simulator.Duration); err != nil {
			app.logger.Warnw("Connectivity sampler not started", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err, ok := <-server.Errors():
			if ok {
				return fmt.Errorf("HTTP server failed: %w", err)
			}
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Stop()
	})
	g.Go(func() error {
		<-gctx.Done()
		app.sim.Stop()
		return nil
	})

	err = g.Wait()
	app.logger.Infow("Shutdown complete")
	return err
}
