package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects on the local filesystem under {base}/{bucket}/{path}.
// It backs development setups; Handler serves the files at the public URL.
type LocalStore struct {
	basePath      string
	publicBaseURL string
}

func NewLocalStore(basePath, publicBaseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{
		basePath:      basePath,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (ls *LocalStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	fullPath, err := ls.resolve(bucket, path)
	if err != nil {
		return &UploadError{Op: "upload", Bucket: bucket, Path: path, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &UploadError{Op: "upload", Bucket: bucket, Path: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return &UploadError{Op: "upload", Bucket: bucket, Path: path, Err: err}
	}

	tmp := fullPath + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		_ = os.Remove(tmp)
		return &UploadError{Op: "upload", Bucket: bucket, Path: path, Err: err}
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return &UploadError{Op: "upload", Bucket: bucket, Path: path, Err: err}
	}
	return nil
}

func (ls *LocalStore) Delete(ctx context.Context, bucket, path string) error {
	fullPath, err := ls.resolve(bucket, path)
	if err != nil {
		return &UploadError{Op: "delete", Bucket: bucket, Path: path, Err: err}
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &UploadError{Op: "delete", Bucket: bucket, Path: path, Err: err}
	}
	return nil
}

func (ls *LocalStore) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/%s/%s", ls.publicBaseURL, bucket, escapePath(path))
}

// Handler serves stored objects; mount it under the public base path.
func (ls *LocalStore) Handler() http.Handler {
	return http.FileServer(http.Dir(ls.basePath))
}

func (ls *LocalStore) resolve(bucket, path string) (string, error) {
	cleanPath := filepath.Clean(filepath.Join(bucket, path))
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) || bucket == "" {
		return "", fmt.Errorf("invalid path")
	}
	return filepath.Join(ls.basePath, cleanPath), nil
}
