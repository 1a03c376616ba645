package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPBackend talks to a cache server started with the serve command.
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPBackend creates a backend for the cache server at baseURL.
func NewHTTPBackend(baseURL, token string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// LatestResponse is the body returned by the cache server for prefix lookups.
type LatestResponse struct {
	Key string `json:"key"`
}

func (b *HTTPBackend) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	return req, nil
}

// Get implements Backend.
func (b *HTTPBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := b.newRequest(ctx, http.MethodGet, "/cache/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cache server request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, ErrNotFound
	default:
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, statusError(resp)
	}
}

// Put implements Backend.
func (b *HTTPBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	req, err := b.newRequest(ctx, http.MethodPut, "/cache/"+url.PathEscape(key), r)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/gzip")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("cache server request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrKeyExists
	default:
		return statusError(resp)
	}
}

// Latest implements Backend.
func (b *HTTPBackend) Latest(ctx context.Context, prefix string) (string, error) {
	req, err := b.newRequest(ctx, http.MethodGet, "/cache?prefix="+url.QueryEscape(prefix), nil)
	if err != nil {
		return "", err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cache server request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		var body LatestResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("failed to decode cache server response: %w", err)
		}
		return body.Key, nil
	case http.StatusNotFound:
		return "", ErrNotFound
	default:
		return "", statusError(resp)
	}
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("cache server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}
