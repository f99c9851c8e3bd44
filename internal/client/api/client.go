// Package api is the HTTP client for the photo API. It attaches the
// session's bearer token to every request and turns non-2xx responses into
// *RequestError and transport failures into *NetworkError. Requests are
// never retried.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/PhotoKeeper/internal/middleware"
	"github.com/atinyakov/PhotoKeeper/internal/models"
)

const maxErrorBody = 64 << 10

// Client is the API client for the photo backend.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	log            *zap.Logger
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its transport is wrapped,
// the value passed in is not modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		clone := *hc
		c.httpClient = &clone
	}
}

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithUnauthorizedHook registers fn to run whenever the API answers 401.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// New creates a Client for baseURL (e.g. http://localhost:8080/api) that
// reads the bearer token from tokens on every request.
func New(baseURL string, tokens middleware.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = middleware.Chain(c.httpClient.Transport,
		middleware.WithRequestLogging(c.log),
		middleware.BearerAuth(tokens),
	)
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Do sends the request and returns the response for 2xx statuses. The
// caller must close the response body. body may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body Body) (*http.Response, error) {
	var (
		reader      io.ReadCloser
		contentType string
	)
	if body != nil {
		rc, ct, err := body.Open()
		if err != nil {
			return nil, err
		}
		reader, contentType = rc, ct
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		// a form body is already being written into a pipe; closing the
		// reader stops the writer and releases its file
		if reader != nil {
			reader.Close()
		}
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: unwrapURLError(ctx, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		reqErr := &RequestError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: readErrorMessage(resp),
		}
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, reqErr
	}
	return resp, nil
}

// Call sends the request and decodes a 2xx JSON response into T.
func Call[T any](ctx context.Context, c *Client, method, path string, body Body) (T, error) {
	var out T
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("invalid response from %s: %w", path, err)
	}
	return out, nil
}

func unwrapURLError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("request canceled: %w", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("request timed out: %w", err)
	}
	return err
}

// readErrorMessage extracts the server's reason from an error body:
// {"message": ...}, {"error": ...}, or short plain text.
func readErrorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload models.ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	text := strings.TrimSpace(string(data))
	if text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") && !strings.HasPrefix(text, "{") {
		return text
	}
	return fmt.Sprintf("request failed with status %d", resp.StatusCode)
}
