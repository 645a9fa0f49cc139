package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultGCSBaseURL = "https://storage.googleapis.com"

type GCSStore struct {
	client        *gcs.Client
	publicBaseURL string
}

func NewGCSStore(ctx context.Context, publicBaseURL string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return NewGCSStoreWithClient(client, publicBaseURL), nil
}

func NewGCSStoreWithClient(client *gcs.Client, publicBaseURL string) *GCSStore {
	if publicBaseURL == "" {
		publicBaseURL = defaultGCSBaseURL
	}
	return &GCSStore{
		client:        client,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (s *GCSStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	w := s.client.Bucket(bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return gcsError("upload", bucket, path, err)
	}
	if err := w.Close(); err != nil {
		return gcsError("upload", bucket, path, err)
	}
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, bucket, path string) error {
	err := s.client.Bucket(bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return gcsError("delete", bucket, path, err)
	}
	return nil
}

func (s *GCSStore) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, bucket, escapePath(path))
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func gcsError(op, bucket, path string, err error) error {
	uerr := &UploadError{Op: op, Bucket: bucket, Path: path, Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		uerr.StatusCode = apiErr.Code
		uerr.Body = apiErr.Message
	}
	return uerr
}
