package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kdimtricp/vingest/internal/config"
	"github.com/kdimtricp/vingest/internal/database"
	"github.com/kdimtricp/vingest/internal/httputil"
	"github.com/kdimtricp/vingest/internal/pipeline"
	"github.com/kdimtricp/vingest/internal/postgrest"
	"github.com/kdimtricp/vingest/internal/staging"
	"github.com/kdimtricp/vingest/internal/storage"
	"github.com/kdimtricp/vingest/internal/transcode"
)

type service struct {
	repo     database.Repository
	blobs    storage.Store
	media    http.Handler
	staging  *staging.Store
	pipeline *pipeline.Pipeline
	http     *httputil.RetryClient

	closers []func() error
}

func (s *service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("Failed to close component", "error", err)
		}
	}
}

func build(ctx context.Context, cfg *config.Config) (*service, error) {
	svc := &service{}
	retry := httputil.NewRetryClient(httputil.NewClient(cfg.Retry.Timeout), httputil.RetryConfig{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
	})
	svc.http = retry

	if err := svc.buildRepository(ctx, cfg, retry); err != nil {
		svc.Close()
		return nil, err
	}
	if err := svc.buildBlobs(ctx, cfg, retry); err != nil {
		svc.Close()
		return nil, err
	}

	stage, err := staging.NewStore(cfg.Staging.Dir)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.staging = stage

	ffmpeg, err := transcode.NewFFmpeg(cfg.Transcode.FFmpegPath, cfg.Transcode.Timeout)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.pipeline = pipeline.New(pipeline.Options{
		Repository:    svc.repo,
		Blobs:         svc.blobs,
		Staging:       stage,
		Runner:        transcode.NewRunner(ffmpeg, !cfg.Transcode.Sequential),
		Bucket:        cfg.Supabase.Bucket,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		Logger:        slog.Default(),
	})
	return svc, nil
}

func (s *service) buildRepository(ctx context.Context, cfg *config.Config, retry *httputil.RetryClient) error {
	switch cfg.Metadata.Backend {
	case config.MetadataREST:
		client := postgrest.NewClient(cfg.Supabase.URL, cfg.Supabase.APIKey, retry)
		s.repo = database.NewRESTRepository(client)

	case config.MetadataMemory:
		slog.Warn("Using in-memory metadata, records are lost on restart")
		s.repo = database.NewMemoryRepository()

	case config.MetadataSQLite, config.MetadataPostgres:
		pg := cfg.Metadata.Postgres
		db, err := database.NewDB(database.Config{
			Type:       cfg.Metadata.Backend,
			Host:       pg.Host,
			Port:       pg.Port,
			User:       pg.User,
			Password:   pg.Password,
			Name:       pg.Name,
			SSLMode:    pg.SSLMode,
			SQLitePath: cfg.Metadata.SQLitePath,
		})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		s.closers = append(s.closers, db.Close)

		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		s.repo = database.NewSQLRepository(db)

	default:
		return fmt.Errorf("unknown metadata backend %q", cfg.Metadata.Backend)
	}
	return nil
}

func (s *service) buildBlobs(ctx context.Context, cfg *config.Config, retry *httputil.RetryClient) error {
	switch cfg.Storage.Backend {
	case config.StorageSupabase:
		s.blobs = storage.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.APIKey, retry)

	case config.StorageGCS:
		gcs, err := storage.NewGCSStore(ctx, cfg.Storage.GCS.PublicBaseURL)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, gcs.Close)
		s.blobs = gcs

	case config.StorageS3:
		s3, err := storage.NewS3Store(ctx, storage.S3Options{
			Region:        cfg.Storage.S3.Region,
			Endpoint:      cfg.Storage.S3.Endpoint,
			PublicBaseURL: cfg.Storage.S3.PublicBaseURL,
			UsePathStyle:  cfg.Storage.S3.UsePathStyle,
		})
		if err != nil {
			return err
		}
		s.blobs = s3

	case config.StorageLocal:
		local, err := storage.NewLocalStore(cfg.Storage.Local.Dir, cfg.Storage.Local.PublicBaseURL)
		if err != nil {
			return err
		}
		s.blobs = local
		s.media = local.Handler()

	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return nil
}
