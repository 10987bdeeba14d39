package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"filevault-backend/internal/bootstrap"
	"filevault-backend/internal/shared/config"
	"filevault-backend/internal/shared/server"
	"filevault-backend/internal/shared/telemetry"
)

func newServeCmd() *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run every job on its schedule and expose the ops HTTP endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), runOnStart)
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Fire every job once at startup")
	return cmd
}

func runServe(ctx context.Context, runOnStart bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	app.Scheduler.Start(ctx)
	if runOnStart {
		for _, name := range app.JobNames() {
			if _, err := app.Scheduler.Trigger(name); err != nil {
				telemetry.Warn("serve.run_on_start_failed", map[string]any{"job": name, "error": err})
			}
		}
	}

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		telemetry.Info("serve.listening", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		telemetry.Info("serve.shutdown_requested", map[string]any{"timeout": cfg.ShutdownTimeout.String()})
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Warn("serve.http_shutdown_failed", map[string]any{"error": err})
	}
	if err := app.Scheduler.Shutdown(); err != nil {
		telemetry.Warn("serve.scheduler_shutdown", map[string]any{"error": err})
	}
	return runErr
}
