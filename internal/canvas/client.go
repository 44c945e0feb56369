// Package canvas is the HTTP client for the LMS REST API. It owns endpoint
// normalization, cursor pagination, and retry with backoff so that the
// exporters and importers above it only ever deal in parsed JSON values.
package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	apiPrefix      = "/api/v1"
	defaultPerPage = "100"
	userAgent      = "coursemover/1.0"
)

// Client talks to one LMS instance. A migration constructs two independent
// clients (source and target) and passes them by parameter; there is no
// package-level instance.
type Client struct {
	hostRoot    string // e.g. https://school.example.edu
	apiRoot     string // e.g. https://school.example.edu/api/v1
	token       string
	httpc       *http.Client
	log         *zap.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests pass the
// httptest server's client here).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpc = h } }

// WithLogger sets the structured logger for retry warnings.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithMaxAttempts bounds the total tries per request, including the first.
func WithMaxAttempts(n int) Option { return func(c *Client) { c.maxAttempts = n } }

// WithBackoff sets the base and ceiling for the exponential retry delay.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

// New builds a client for the instance at baseURL. The URL may be given with
// or without the /api/v1 suffix; either way the client keeps exactly one
// versioned API root and the bare host root.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || token == "" {
		return nil, fmt.Errorf("canvas: base URL and token are required")
	}

	hostRoot := baseURL
	if strings.HasSuffix(hostRoot, apiPrefix) {
		hostRoot = strings.TrimSuffix(hostRoot, apiPrefix)
	}

	c := &Client{
		hostRoot:    hostRoot,
		apiRoot:     hostRoot + apiPrefix,
		token:       token,
		httpc:       &http.Client{Timeout: 60 * time.Second},
		log:         zap.NewNop(),
		maxAttempts: 4,
		baseDelay:   time.Second,
		maxDelay:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HostRoot returns the instance root without the API prefix.
func (c *Client) HostRoot() string { return c.hostRoot }

// APIRoot returns the canonical versioned API root.
func (c *Client) APIRoot() string { return c.apiRoot }

// endpointURL resolves any accepted endpoint spelling (bare, leading slash,
// or already /api/v1-prefixed) to one canonical absolute URL. The version
// segment is never doubled and never dropped.
func (c *Client) endpointURL(endpoint string) string {
	ep := strings.TrimSpace(endpoint)
	ep = strings.TrimPrefix(ep, apiPrefix)
	ep = strings.TrimLeft(ep, "/")
	return c.apiRoot + "/" + ep
}

// GetObject fetches a single JSON object. No pagination is attempted.
func (c *Client) GetObject(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	body, err := c.getRaw(ctx, c.endpointURL(endpoint), params)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(body.data, &obj); err != nil {
		return nil, fmt.Errorf("canvas: %s returned a non-object body: %w", endpoint, err)
	}
	return obj, nil
}

// GetList fetches a JSON list, transparently following rel="next" Link
// headers and concatenating pages in order until no next link remains.
func (c *Client) GetList(ctx context.Context, endpoint string, params url.Values) ([]map[string]any, error) {
	if params == nil {
		params = url.Values{}
	}
	if params.Get("per_page") == "" {
		params.Set("per_page", defaultPerPage)
	}

	var out []map[string]any
	next := c.endpointURL(endpoint)
	for next != "" {
		body, err := c.getRaw(ctx, next, params)
		if err != nil {
			return nil, err
		}
		params = nil // the next link carries its own query string

		var page []map[string]any
		if err := json.Unmarshal(body.data, &page); err != nil {
			return nil, fmt.Errorf("canvas: %s returned a non-list body: %w", endpoint, err)
		}
		out = append(out, page...)
		next = nextLink(body.linkHeader)
	}
	return out, nil
}

// GetAbsolute fetches a JSON object from an already-absolute URL with the
// client's auth. The transfer finalizer uses it to follow upload redirects
// whose targets are not under the API root.
func (c *Client) GetAbsolute(ctx context.Context, absURL string) (map[string]any, error) {
	body, err := c.getRaw(ctx, absURL, nil)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(body.data, &obj); err != nil {
		return nil, fmt.Errorf("canvas: %s returned a non-object body: %w", absURL, err)
	}
	return obj, nil
}

// Post creates a resource and returns the parsed response object, or nil for
// an empty body.
func (c *Client) Post(ctx context.Context, endpoint string, payload any) (map[string]any, error) {
	return c.write(ctx, http.MethodPost, endpoint, payload)
}

// Put updates a resource and returns the parsed response object, or nil for
// an empty body.
func (c *Client) Put(ctx context.Context, endpoint string, payload any) (map[string]any, error) {
	return c.write(ctx, http.MethodPut, endpoint, payload)
}

// Delete removes a resource. The response body, if any, is returned parsed.
func (c *Client) Delete(ctx context.Context, endpoint string) (map[string]any, error) {
	return c.write(ctx, http.MethodDelete, endpoint, nil)
}

func (c *Client) write(ctx context.Context, method, endpoint string, payload any) (map[string]any, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("canvas: encoding %s payload: %w", endpoint, err)
		}
	}

	resp, err := c.do(ctx, method, c.endpointURL(endpoint), nil, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("canvas: reading %s response: %w", endpoint, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("canvas: parsing %s response: %w", endpoint, err)
	}
	return obj, nil
}

// Download streams the content at srcURL (typically a file download link on
// a separate host) to destPath, writing through a temp file so interrupted
// downloads never leave partial content at the destination.
func (c *Client) Download(ctx context.Context, srcURL, destPath string) error {
	resp, err := c.do(ctx, http.MethodGet, srcURL, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("canvas: creating %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".download*")
	if err != nil {
		return fmt.Errorf("canvas: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("canvas: downloading %s: %w", srcURL, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destPath)
}

type rawBody struct {
	data       []byte
	linkHeader string
}

func (c *Client) getRaw(ctx context.Context, absURL string, params url.Values) (rawBody, error) {
	if params != nil {
		sep := "?"
		if strings.Contains(absURL, "?") {
			sep = "&"
		}
		absURL += sep + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, absURL, nil, nil)
	if err != nil {
		return rawBody{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return rawBody{}, fmt.Errorf("canvas: reading %s: %w", absURL, err)
	}
	return rawBody{data: data, linkHeader: resp.Header.Get("Link")}, nil
}

// do issues one logical request, retrying transient failures (429, 5xx, and
// transport errors) up to the attempt bound. The returned response has a
// status below 400 and an open body the caller must close.
func (c *Client) do(ctx context.Context, method, absURL string, params url.Values, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, absURL, reader)
		if err != nil {
			return nil, fmt.Errorf("canvas: building request: %w", err)
		}
		if params != nil {
			req.URL.RawQuery = params.Encode()
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn("request failed, retrying",
				zap.String("method", method), zap.String("url", absURL),
				zap.Int("attempt", attempt), zap.Error(err))
			if attempt < c.maxAttempts {
				if err := c.sleep(ctx, c.backoff(attempt, "")); err != nil {
					return nil, err
				}
				continue
			}
			break
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := resp.Header.Get("Retry-After")
			drainClose(resp)
			lastErr = &APIError{StatusCode: resp.StatusCode, Method: method, URL: absURL}
			c.log.Warn("rate limited, retrying",
				zap.String("method", method), zap.String("url", absURL),
				zap.Int("attempt", attempt), zap.String("retry_after", retryAfter))
			if attempt < c.maxAttempts {
				if err := c.sleep(ctx, c.backoff(attempt, retryAfter)); err != nil {
					return nil, err
				}
				continue
			}

		case resp.StatusCode >= 500:
			msg := drainClose(resp)
			lastErr = &APIError{StatusCode: resp.StatusCode, Method: method, URL: absURL, Body: msg}
			c.log.Warn("server error, retrying",
				zap.String("method", method), zap.String("url", absURL),
				zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
			if attempt < c.maxAttempts {
				if err := c.sleep(ctx, c.backoff(attempt, "")); err != nil {
					return nil, err
				}
				continue
			}

		case resp.StatusCode >= 400:
			// Permanent request error: never retried.
			msg := drainClose(resp)
			return nil, &APIError{StatusCode: resp.StatusCode, Method: method, URL: absURL, Body: msg}

		default:
			return resp, nil
		}
	}
	return nil, fmt.Errorf("canvas: %s %s failed after %d attempts: %w", method, absURL, c.maxAttempts, lastErr)
}

// backoff computes the delay before the next attempt. A Retry-After hint
// wins when present; otherwise the delay grows exponentially with jitter,
// capped at maxDelay.
func (c *Client) backoff(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil && secs > 0 {
			d := time.Duration(secs * float64(time.Second))
			if d > c.maxDelay {
				return c.maxDelay
			}
			return d
		}
	}

	d := c.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.maxDelay {
			d = c.maxDelay
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(c.baseDelay)/2 + 1))
	if d+jitter > c.maxDelay {
		return c.maxDelay
	}
	return d + jitter
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// drainClose reads a short error body and closes the response.
func drainClose(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return strings.TrimSpace(string(data))
}

// nextLink extracts the rel="next" target from an RFC 5988 Link header, or
// returns "" when the final page has been reached.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}
