// Package remote implements the bounded API client shared by every
// destination system: a fixed-size admission pool, token-bucket rate
// limiting, transport and 429 retries under one reliability policy, and
// offset/limit pagination. One Client instance wraps one remote endpoint
// family; all calls on it compete for the same in-flight slots and quota.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/storyport/storyport/internal/ratelimit"
)

// DefaultTimeout bounds a single HTTP exchange, not the whole retried call.
const DefaultTimeout = 30 * time.Second

// DefaultPageSize is the limit used by paginated list requests.
const DefaultPageSize = 100

// Client executes logical requests against one base endpoint.
type Client struct {
	baseURL string
	httpc   *http.Client
	policy  Policy
	limiter *ratelimit.Limiter
	sem     *semaphore.Weighted
	log     *zap.Logger

	authHeader map[string]string
	basicUser  string
	basicPass  string

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy replaces the reliability policy.
func WithPolicy(p Policy) Option { return func(c *Client) { c.policy = p } }

// WithLimiter installs token-bucket admission control. Without it calls are
// only bounded by the in-flight cap.
func WithLimiter(l *ratelimit.Limiter) Option { return func(c *Client) { c.limiter = l } }

// WithMaxInFlight caps simultaneous in-flight requests on this client.
func WithMaxInFlight(n int64) Option {
	return func(c *Client) { c.sem = semaphore.NewWeighted(n) }
}

// WithHeader adds a header to every request (e.g. an Authorization token).
func WithHeader(key, value string) Option {
	return func(c *Client) { c.authHeader[key] = value }
}

// WithBasicAuth sets HTTP basic credentials on every request.
func WithBasicAuth(user, pass string) Option {
	return func(c *Client) { c.basicUser, c.basicPass = user, pass }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpc = h } }

// WithLogger installs a logger; default is a nop logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client for the given base URL with a default in-flight cap
// of four.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpc:      &http.Client{Timeout: DefaultTimeout},
		policy:     DefaultPolicy(),
		sem:        semaphore.NewWeighted(4),
		log:        zap.NewNop(),
		authHeader: make(map[string]string),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes one logical request. body is JSON-marshalled when non-nil.
// The returned bytes are the raw response body (nil on 204).
//
// Transport failures are retried with the policy's backoff and surface as
// *TransportError once the budget is spent. 429 responses honour the
// server's Retry-After (seconds), falling back to the policy pause, on a
// budget independent of transport retries; exhaustion surfaces as
// *RateLimitError. Any other 4xx/5xx fails immediately with *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body any, query url.Values) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	return c.do(ctx, method, path, query, payload, "application/json", nil)
}

// Upload posts one file as multipart/form-data under the "file" field. The
// content is buffered up front so retries can resend it.
func (c *Client) Upload(ctx context.Context, path, filename string, content []byte, extraHeaders map[string]string) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, buf.Bytes(), w.FormDataContentType(), extraHeaders)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte, contentType string, extraHeaders map[string]string) (json.RawMessage, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	fullURL := c.url(path, query)

	var lastTransportErr error
	transportAttempts := 0
	rateAttempts := 0

	for {
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if len(payload) > 0 || method != http.MethodGet {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range c.authHeader {
			req.Header.Set(k, v)
		}
		for k, v := range extraHeaders {
			req.Header.Set(k, v)
		}
		if c.basicUser != "" || c.basicPass != "" {
			req.SetBasicAuth(c.basicUser, c.basicPass)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			transportAttempts++
			lastTransportErr = err
			if transportAttempts >= c.policy.MaxRetries {
				return nil, &TransportError{Attempts: transportAttempts, Err: lastTransportErr}
			}
			delay := c.policy.Backoff(transportAttempts - 1)
			c.log.Debug("transport failure, retrying",
				zap.String("url", fullURL),
				zap.Int("attempt", transportAttempts),
				zap.Duration("delay", delay),
				zap.Error(err))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			transportAttempts++
			lastTransportErr = err
			if transportAttempts >= c.policy.MaxRetries {
				return nil, &TransportError{Attempts: transportAttempts, Err: lastTransportErr}
			}
			if err := c.sleep(ctx, c.policy.Backoff(transportAttempts - 1)); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			rateAttempts++
			if rateAttempts >= c.policy.MaxRetries {
				return nil, &RateLimitError{Attempts: rateAttempts}
			}
			delay := c.retryAfter(resp.Header)
			c.log.Debug("rate limited, retrying",
				zap.String("url", fullURL),
				zap.Int("attempt", rateAttempts),
				zap.Duration("delay", delay))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		if resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}
		return respBody, nil
	}
}

// retryAfter reads the server-provided pause, falling back to the policy's
// default when absent or unparseable.
func (c *Client) retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.policy.RateLimitPause
}

// GetPaged fetches a list endpoint page by page with an offset/limit cursor,
// returning the concatenation of all pages in order. Fetching stops at the
// first page shorter than the page size. If the endpoint answers with a
// single object instead of a list, that object is returned as the only
// element.
func (c *Client) GetPaged(ctx context.Context, path string, query url.Values, pageSize int) ([]json.RawMessage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("limit", strconv.Itoa(pageSize))

	var all []json.RawMessage
	offset := 0
	for {
		q.Set("offset", strconv.Itoa(offset))
		raw, err := c.Do(ctx, http.MethodGet, path, nil, q)
		if err != nil {
			return nil, err
		}

		var page []json.RawMessage
		if err := json.Unmarshal(raw, &page); err != nil {
			// Singleton sub-resource: not a list, nothing to paginate.
			if offset == 0 {
				return []json.RawMessage{raw}, nil
			}
			return nil, fmt.Errorf("failed to parse page at offset %d: %w", offset, err)
		}

		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		offset += pageSize
	}
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL
	if path != "" {
		u += "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
