package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kdimtricp/vingest/internal/api"
	"github.com/kdimtricp/vingest/internal/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}
	setupLogger(cfg)

	svc, err := build(ctx, cfg)
	if err != nil {
		slog.Error("Failed to build service", "error", err)
		return err
	}
	defer svc.Close()

	if n, err := svc.staging.Sweep(cfg.Staging.SweepAge); err != nil {
		slog.Warn("Staging sweep failed", "error", err)
	} else if n > 0 {
		slog.Info("Removed stale staging files", "count", n)
	}

	router := api.NewRouter(&api.App{
		Pipeline:      svc.pipeline,
		Repo:          svc.repo,
		Blobs:         svc.blobs,
		Bucket:        cfg.Supabase.Bucket,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		Media:         svc.media,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting",
			"port", cfg.Server.Port,
			"storage", cfg.Storage.Backend,
			"metadata", cfg.Metadata.Backend,
			"bucket", cfg.Supabase.Bucket,
			"max_upload_size", cfg.Server.MaxUploadSize,
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
		return err
	}
	return nil
}
