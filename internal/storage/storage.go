// Package storage uploads finished artifacts to an object store.
package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// Store puts and removes objects and derives their public URLs.
// PublicURL must not perform I/O and must not assume the object exists.
type Store interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	Delete(ctx context.Context, bucket, path string) error
	PublicURL(bucket, path string) string
}

// UploadError is a failed object operation. StatusCode is the remote
// status when the backend reported one.
type UploadError struct {
	Op         string
	Bucket     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	msg := fmt.Sprintf("%s %s/%s failed", e.Op, e.Bucket, e.Path)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// RemoveQuietly deletes an object and only logs a failure.
func RemoveQuietly(ctx context.Context, store Store, bucket, path string) {
	if err := store.Delete(ctx, bucket, path); err != nil {
		slog.Warn("failed to delete object", "bucket", bucket, "path", path, "error", err)
	}
}
