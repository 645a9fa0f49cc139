package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/kdimtricp/vingest/internal/config"
	"github.com/kdimtricp/vingest/internal/database"
	"github.com/kdimtricp/vingest/internal/storage"
)

func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg is a shell script")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatalf("Failed to write fake ffmpeg: %v", err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server:   config.ServerConfig{Port: "0", MaxUploadSize: 1 << 20},
		Supabase: config.SupabaseConfig{Bucket: "videos"},
		Storage: config.StorageConfig{
			Backend: config.StorageLocal,
			Local:   config.LocalDir{Dir: filepath.Join(dir, "blobs"), PublicBaseURL: "http://localhost/media"},
		},
		Metadata: config.MetadataConfig{
			Backend:    config.MetadataSQLite,
			SQLitePath: filepath.Join(dir, "vingest.db"),
		},
		Transcode: config.TranscodeConfig{FFmpegPath: fakeFFmpeg(t), Timeout: time.Minute},
		Staging:   config.StagingConfig{Dir: filepath.Join(dir, "staging"), SweepAge: time.Hour},
		Retry:     config.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, Timeout: 2 * time.Second},
	}
}

func TestBuildLocal(t *testing.T) {
	cfg := testConfig(t)

	svc, err := build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build() error: %v", err)
	}
	defer svc.Close()

	if _, ok := svc.repo.(*database.SQLRepository); !ok {
		t.Errorf("Expected SQL repository, got %T", svc.repo)
	}
	if _, ok := svc.blobs.(*storage.LocalStore); !ok {
		t.Errorf("Expected local blob store, got %T", svc.blobs)
	}
	if svc.media == nil {
		t.Error("Expected a media handler for local storage")
	}
	if svc.pipeline == nil {
		t.Error("Expected a pipeline")
	}
}

func TestBuildRemoteBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metadata.Backend = config.MetadataREST
	cfg.Storage.Backend = config.StorageSupabase
	cfg.Supabase.URL = "https://proj.supabase.co"
	cfg.Supabase.APIKey = "key"

	svc, err := build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build() error: %v", err)
	}
	defer svc.Close()

	if _, ok := svc.repo.(*database.RESTRepository); !ok {
		t.Errorf("Expected REST repository, got %T", svc.repo)
	}
	if _, ok := svc.blobs.(*storage.SupabaseStore); !ok {
		t.Errorf("Expected Supabase store, got %T", svc.blobs)
	}
	if svc.media != nil {
		t.Error("Expected no media handler for remote storage")
	}
	if got := svc.http.Client().Timeout; got != 2*time.Second {
		t.Errorf("Expected HTTP timeout 2s, got %v", got)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown metadata backend", func(c *config.Config) { c.Metadata.Backend = "mongo" }},
		{"unknown storage backend", func(c *config.Config) { c.Storage.Backend = "ftp" }},
		{"missing ffmpeg", func(c *config.Config) { c.Transcode.FFmpegPath = filepath.Join(t.TempDir(), "nope") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Metadata.Backend = config.MetadataMemory
			tt.mutate(cfg)

			if _, err := build(context.Background(), cfg); err == nil {
				t.Error("Expected build to fail")
			}
		})
	}
}
