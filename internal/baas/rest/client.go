// Package rest is the HTTP client for the managed backend: the auth service
// under /auth/v1 and the table REST service under /rest/v1.
//
// Every request carries the project's public API key in the "apikey" header.
// The Authorization header carries the caller's access token when one is
// attached to the context, and the public key otherwise, so row-level
// security on the backend sees the right identity.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/hackhub/internal/baas"
)

const defaultTimeout = 15 * time.Second

// Client talks to one backend project. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// compile-time check
var _ baas.Backend = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for the project at baseURL (for example
// "https://abc.example.co") authenticated with its public API key.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request is one call to the backend.
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	bearer  string
	headers map[string]string
}

// do sends req and returns the response body. Non-2xx answers are turned
// into *baas.Error by decodeErr.
func (c *Client) do(ctx context.Context, req request, decodeErr func(status int, body []byte) error) ([]byte, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("rest: encoding %s %s body: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("rest: building %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("apikey", c.apiKey)
	bearer := req.bearer
	if bearer == "" {
		bearer = c.apiKey
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rest: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rest: reading %s %s response: %w", req.method, req.path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeErr(resp.StatusCode, data)
		c.logger.Debug("backend error",
			slog.String("method", req.method),
			slog.String("path", req.path),
			slog.Int("status", resp.StatusCode),
			slog.String("error", apiErr.Error()),
		)
		return nil, apiErr
	}
	return data, nil
}
