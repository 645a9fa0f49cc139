// Package postgrest is a small client for a PostgREST endpoint: single-row
// lookups, ordered lists, insert, update, delete and RPC calls.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kdimtricp/vingest/internal/httputil"
)

const maxErrorBody = 4096

// ErrNotFound is returned when a lookup, update or delete matches no row.
var ErrNotFound = errors.New("no rows matched")

// Error is a non-2xx response.
type Error struct {
	Method     string
	Resource   string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("postgrest %s %s: status %d: %s", e.Method, e.Resource, e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *httputil.RetryClient
}

// NewClient builds a client for {projectURL}/rest/v1.
func NewClient(projectURL, apiKey string, client *httputil.RetryClient) *Client {
	if client == nil {
		client = httputil.NewRetryClient(nil, httputil.DefaultRetryConfig())
	}
	return &Client{
		baseURL: strings.TrimRight(projectURL, "/") + "/rest/v1",
		apiKey:  apiKey,
		http:    client,
	}
}

// GetByColumn decodes the single row where column equals value into dest.
func (c *Client) GetByColumn(ctx context.Context, table, column, value string, dest any) error {
	q := url.Values{}
	q.Set(column, "eq."+value)
	q.Set("select", "*")
	q.Set("limit", "1")

	var rows []json.RawMessage
	if err := c.do(ctx, http.MethodGet, table, q, nil, nil, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return fmt.Errorf("failed to decode %s row: %w", table, err)
	}
	return nil
}

// ListOrdered decodes every row of table into dest, ordered by order
// (PostgREST syntax, e.g. "created_at.desc").
func (c *Client) ListOrdered(ctx context.Context, table, order string, dest any) error {
	q := url.Values{}
	q.Set("select", "*")
	if order != "" {
		q.Set("order", order)
	}
	return c.do(ctx, http.MethodGet, table, q, nil, nil, dest)
}

func (c *Client) Insert(ctx context.Context, table string, value any) error {
	headers := map[string]string{"Prefer": "return=minimal"}
	return c.do(ctx, http.MethodPost, table, nil, value, headers, nil)
}

// Update applies patch to rows where column equals value. Matching no row
// is ErrNotFound.
func (c *Client) Update(ctx context.Context, table, column, value string, patch any) error {
	return c.mutate(ctx, http.MethodPatch, table, column, value, patch)
}

// Delete removes rows where column equals value. Matching no row is
// ErrNotFound.
func (c *Client) Delete(ctx context.Context, table, column, value string) error {
	return c.mutate(ctx, http.MethodDelete, table, column, value, nil)
}

// CallProcedure invokes a stored function through /rpc/{name}.
func (c *Client) CallProcedure(ctx context.Context, name string, params any, dest any) error {
	if params == nil {
		params = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, "rpc/"+name, nil, params, nil, dest)
}

func (c *Client) mutate(ctx context.Context, method, table, column, value string, body any) error {
	q := url.Values{}
	q.Set(column, "eq."+value)
	q.Set("select", column)
	headers := map[string]string{"Prefer": "return=representation"}

	var rows []json.RawMessage
	if err := c.do(ctx, method, table, q, body, headers, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, resource string, query url.Values, body any, headers map[string]string, dest any) error {
	endpoint := c.baseURL + "/" + resource
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s body: %w", resource, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", resource, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.send(req)
	if err != nil {
		return fmt.Errorf("postgrest %s %s: %w", method, resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if isNoRows(resp.StatusCode, data) {
			return fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(string(data)))
		}
		return &Error{
			Method:     method,
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", resource, err)
	}
	return nil
}

// isNoRows reports responses that mean "nothing matched": 406 for a
// singular request with no row, or a procedure raising no_data_found.
// A 404 for an unknown table or function is a real error.
func isNoRows(status int, body []byte) bool {
	switch status {
	case http.StatusNotAcceptable:
		return true
	case http.StatusNotFound:
		var pgErr struct {
			Code string `json:"code"`
		}
		return json.Unmarshal(body, &pgErr) == nil && pgErr.Code == "P0002"
	}
	return false
}

// send retries idempotent verbs only. Inserts and procedure calls are
// sent once.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	switch req.Method {
	case http.MethodGet, http.MethodPatch, http.MethodDelete:
		return c.http.Do(req)
	default:
		return c.http.Client().Do(req)
	}
}
