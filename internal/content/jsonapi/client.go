package jsonapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/umanagarjuna/go-content-cache/internal/content/domain"
	"github.com/umanagarjuna/go-content-cache/internal/content/metrics"
)

const (
	systemName        = "jsonapi"
	acceptHeader      = "application/vnd.api+json, application/json"
	defaultTimeout    = 10 * time.Second
	maxErrorBodyBytes = 512
	errHTTPStatus     = "http status %d: %s"
)

type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client performs authenticated GET requests against the content API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	logger     *zap.Logger
	metrics    metrics.Metrics
}

var _ domain.JSONGetter = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		logger:     zap.NewNop(),
		metrics:    metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches path relative to the base URL and returns the decoded
// document. The path is appended verbatim.
func (c *Client) GetJSON(ctx context.Context, path string) (any, error) {
	resp, err := c.get(ctx, c.baseURL+path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		c.logger.Warn("Upstream request failed",
			zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, err
	}

	var document any
	if err := json.NewDecoder(resp.Body).Decode(&document); err != nil {
		return nil, domain.Decode(systemName, err)
	}

	return document, nil
}

// Ping reports whether the base URL answers with a 2xx status.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, c.baseURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return checkStatus(resp)
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.External(systemName, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", acceptHeader)
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.IncrementCounterWithLabels(metrics.UpstreamRequests, map[string]string{"outcome": "error"})
		return nil, domain.External(systemName, fmt.Errorf("failed to make request: %w", err))
	}

	c.metrics.IncrementCounterWithLabels(metrics.UpstreamRequests,
		map[string]string{"outcome": statusClass(resp.StatusCode)})
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return domain.External(systemName,
		fmt.Errorf(errHTTPStatus, resp.StatusCode, strings.TrimSpace(string(body))))
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
