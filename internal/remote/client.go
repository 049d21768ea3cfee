package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/wardsync/internal/model"
	"github.com/roach88/wardsync/internal/record"
)

// DefaultTimeout bounds each request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a response body is read.
const maxBody = 10 << 20

// Client is the HTTP implementation of Transport and the conflict
// resolution authority.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	http    *http.Client
	base    string
	headers map[string]string
	logger  *slog.Logger
}

var _ Transport = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHeaders adds headers to every request that does not already carry them.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the authority at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		base:    strings.TrimRight(baseURL, "/"),
		headers: map[string]string{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL resolves an endpoint against the base URL. Absolute URLs are
// returned unchanged.
func (c *Client) URL(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.IsAbs() {
		return endpoint
	}
	if c.base == "" {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.base + endpoint
}

// EntityURL is {base}/{entityType}/{entityId}.
func (c *Client) EntityURL(t model.EntityType, id string) string {
	return c.URL("/" + t.Collection() + "/" + url.PathEscape(id))
}

// Do implements Transport.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	target := c.URL(req.URL)

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return Response{}, &TransportError{Method: req.Method, URL: target, Err: err}
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range c.headers {
		if httpReq.Header.Get(k) == "" {
			httpReq.Header.Set(k, v)
		}
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed",
			"method", req.Method,
			"url", target,
			"error", err,
		)
		return Response{}, &TransportError{Method: req.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Response{}, &TransportError{Method: req.Method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("request completed",
		"method", req.Method,
		"url", target,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Fetch retrieves the authoritative record for (t, id).
func (c *Client) Fetch(ctx context.Context, t model.EntityType, id string) (record.Record, error) {
	target := c.EntityURL(t, id)
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: target})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &StatusError{Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	rec, err := record.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", t, id, err)
	}
	return rec, nil
}

// Put commits rec as the authoritative record for (t, id).
func (c *Client) Put(ctx context.Context, t model.EntityType, id string, rec record.Record) error {
	target := c.EntityURL(t, id)
	body, err := rec.Encode()
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", t, id, err)
	}

	resp, err := c.Do(ctx, Request{Method: http.MethodPut, URL: target, Body: body})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{Method: http.MethodPut, URL: target, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	return nil
}

// Ping checks that the authority is reachable. Any status below 500 counts.
func (c *Client) Ping(ctx context.Context) error {
	target := c.URL("/health")
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, URL: target})
	if err != nil {
		return err
	}
	if resp.StatusCode >= 500 {
		return &StatusError{Method: http.MethodGet, URL: target, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	return nil
}
