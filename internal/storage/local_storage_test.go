package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStore(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewLocalStore(tmpDir, "http://localhost:8080/media")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	ctx := context.Background()

	t.Run("Upload", func(t *testing.T) {
		content := []byte("encoded video")
		if err := store.Upload(ctx, "videos", "videos/abc.mp4", content, "video/mp4"); err != nil {
			t.Fatalf("Failed to upload: %v", err)
		}

		saved, err := os.ReadFile(filepath.Join(tmpDir, "videos", "videos", "abc.mp4"))
		if err != nil {
			t.Fatalf("Object was not written: %v", err)
		}
		if !bytes.Equal(saved, content) {
			t.Errorf("Content mismatch")
		}
	})

	t.Run("UploadOverwrites", func(t *testing.T) {
		if err := store.Upload(ctx, "videos", "thumbnails/abc.jpg", []byte("v1"), "image/jpeg"); err != nil {
			t.Fatalf("Failed to upload: %v", err)
		}
		if err := store.Upload(ctx, "videos", "thumbnails/abc.jpg", []byte("v2"), "image/jpeg"); err != nil {
			t.Fatalf("Failed to re-upload: %v", err)
		}
		saved, _ := os.ReadFile(filepath.Join(tmpDir, "videos", "thumbnails", "abc.jpg"))
		if string(saved) != "v2" {
			t.Errorf("Expected overwrite, got %q", saved)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Upload(ctx, "videos", "videos/gone.mp4", []byte("x"), "video/mp4"); err != nil {
			t.Fatalf("Failed to upload: %v", err)
		}
		if err := store.Delete(ctx, "videos", "videos/gone.mp4"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if _, err := os.Stat(filepath.Join(tmpDir, "videos", "videos", "gone.mp4")); !os.IsNotExist(err) {
			t.Errorf("File was not deleted")
		}
		if err := store.Delete(ctx, "videos", "videos/gone.mp4"); err != nil {
			t.Errorf("Deleting a missing object should succeed, got %v", err)
		}
	})

	t.Run("PublicURL", func(t *testing.T) {
		got := store.PublicURL("videos", "videos/abc.mp4")
		want := "http://localhost:8080/media/videos/videos/abc.mp4"
		if got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	})

	t.Run("Handler", func(t *testing.T) {
		srv := httptest.NewServer(http.StripPrefix("/media", store.Handler()))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/media/videos/videos/abc.mp4")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || string(body) != "encoded video" {
			t.Errorf("Unexpected response %d %q", resp.StatusCode, body)
		}
	})

	t.Run("PathTraversalPrevention", func(t *testing.T) {
		if err := store.Upload(ctx, "videos", "../../../etc/passwd", []byte("x"), "text/plain"); err == nil {
			t.Errorf("Path traversal was not prevented")
		}
		if err := store.Delete(ctx, "..", "etc/passwd"); err == nil {
			t.Errorf("Path traversal was not prevented in delete")
		}
	})
}
