package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kdimtricp/vingest/internal/httputil"
)

const maxErrorBody = 4096

// SupabaseStore talks to the Supabase storage REST API. Uploads use
// x-upsert so a retried upload overwrites instead of conflicting.
type SupabaseStore struct {
	baseURL string
	apiKey  string
	client  *httputil.RetryClient
}

func NewSupabaseStore(baseURL, apiKey string, client *httputil.RetryClient) *SupabaseStore {
	if client == nil {
		client = httputil.NewRetryClient(nil, httputil.DefaultRetryConfig())
	}
	return &SupabaseStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (s *SupabaseStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(bucket, path), bytes.NewReader(data))
	if err != nil {
		return &UploadError{Op: "upload", Bucket: bucket, Path: path, Err: err}
	}
	s.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	return s.do(req, "upload", bucket, path)
}

func (s *SupabaseStore) Delete(ctx context.Context, bucket, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(bucket, path), nil)
	if err != nil {
		return &UploadError{Op: "delete", Bucket: bucket, Path: path, Err: err}
	}
	s.authorize(req)

	return s.do(req, "delete", bucket, path)
}

func (s *SupabaseStore) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, url.PathEscape(bucket), escapePath(path))
}

func (s *SupabaseStore) objectURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(bucket), escapePath(path))
}

func (s *SupabaseStore) authorize(req *http.Request) {
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
}

func (s *SupabaseStore) do(req *http.Request, op, bucket, path string) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return &UploadError{Op: op, Bucket: bucket, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UploadError{
			Op:         op,
			Bucket:     bucket,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func escapePath(path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
