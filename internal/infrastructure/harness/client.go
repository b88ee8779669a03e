// Package harness is the HTTP client for the agent harness backend: task
// orchestration, progress logs and the PPT workflow.
package harness

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
	"time"

	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/tidwall/gjson"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "NanoBeeConsole/1.0"
	maxResponseBytes = 8 << 20
)

// StatusError is returned for every non-2xx answer. Detail carries the
// backend's "detail" message when the body has one.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("harness: %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("harness: %s %s: request failed: %d", e.Method, e.Path, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	// longClient has no overall timeout. Streams and LLM-backed runs are
	// bounded by the caller's context instead.
	longClient *http.Client
	userAgent  string
	log        *logger.Logger
}

type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
	Logger     *logger.Logger
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	long := *hc
	long.Timeout = 0

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
		longClient: &long,
		userAgent:  ua,
		log:        log,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	long   bool
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, int, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var (
		reader io.Reader
		size   int
	)
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
		size = len(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, size, nil
}

// raw performs r and returns the body of a 2xx response.
func (c *Client) raw(ctx context.Context, r request) ([]byte, error) {
	start := time.Now()
	req, size, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	hc := c.httpClient
	if r.long {
		hc = c.longClient
	}

	c.log.Debugw("harness_request", "method", r.method, "path", r.path, "payload_bytes", size)
	resp, err := hc.Do(req)
	if err != nil {
		c.log.Warnw("harness_network_error", "method", r.method, "path", r.path, "error", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debugw("harness_response",
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"resp_bytes", len(body),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warnw("harness_bad_status", "method", r.method, "path", r.path, "status", resp.StatusCode)
		return nil, statusError(r.method, r.path, resp.StatusCode, body)
	}
	return body, nil
}

// do performs r and decodes the JSON answer into out when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	body, err := c.raw(ctx, r)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.log.Warnw("harness_parse_error", "method", r.method, "path", r.path, "error", err)
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func statusError(method, path string, code int, body []byte) *StatusError {
	se := &StatusError{Method: method, Path: path, StatusCode: code}
	if gjson.ValidBytes(body) {
		if d := gjson.GetBytes(body, "detail"); d.Type == gjson.String {
			se.Detail = d.Str
		}
	}
	return se
}

func taskPath(taskID string, parts ...string) string {
	p := "/api/tasks/" + url.PathEscape(taskID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}
