// Package rest is the JSON-over-HTTP transport shared by the GitHub and
// Canvas gateways: bearer auth, bounded retries with exponential backoff,
// a circuit breaker per host and Link-header pagination.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config for a Client. Zero values use defaults.
type Config struct {
	BaseURL    string
	Timeout    time.Duration // per request, default: 30s
	MaxRetries int           // retries after the first attempt; negative disables
	Backoff    BackoffConfig
	Breaker    BreakerConfig
	UserAgent  string
	Headers    map[string]string // sent on every request
}

// MetricsRecorder is an optional interface for recording outbound calls.
// statusCode is 0 when no response was received.
type MetricsRecorder interface {
	RecordGatewayCall(ctx context.Context, service, method string, statusCode int, durationSeconds float64)
}

// Request is one API call. Path is resolved against the base URL unless
// it is already absolute (as pagination links are).
type Request struct {
	Method string
	Path   string
	Token  string
	Body   any
}

// Client sends JSON requests to one API.
type Client struct {
	service  string
	base     *url.URL
	http     *http.Client
	cfg      Config
	breakers *breakers
	metrics  MetricsRecorder
	logger   *slog.Logger
	wait     func(ctx context.Context, d time.Duration) error
}

// New creates a client for the named service.
func New(service string, cfg Config, metrics MetricsRecorder) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid %s base URL %q", service, cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Client{
		service: service,
		base:    base,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:      cfg,
		breakers: &breakers{cfg: cfg.Breaker, now: time.Now},
		metrics:  metrics,
		logger:   slog.With("component", "gateway", "service", service),
		wait:     sleep,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do sends the request and decodes a 2xx JSON body into out (if non-nil).
// Server errors, 429s and transport errors are retried; other 4xx are not.
func (c *Client) Do(ctx context.Context, req Request, out any) (http.Header, error) {
	target, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}

	var body []byte
	if req.Body != nil {
		if body, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", req.Method, target.Path, err)
		}
	}

	host := target.Host
	br := c.breakers.get(host)
	if !br.allow() {
		return nil, fmt.Errorf("%s %s: %w for %s", req.Method, target.Path, ErrCircuitOpen, host)
	}

	var (
		header http.Header
		retry  bool
	)
	for attempt := range c.cfg.MaxRetries + 1 {
		if attempt > 0 {
			if werr := c.wait(ctx, c.cfg.Backoff.delay(attempt)); werr != nil {
				break
			}
			c.logger.Debug("Retrying request", "method", req.Method, "path", target.Path, "attempt", attempt, "error", err)
		}
		header, retry, err = c.send(ctx, req.Method, target.String(), req.Token, body, out)
		if err == nil {
			br.success()
			return header, nil
		}
		if !retry {
			break
		}
	}

	if IsClientError(err) {
		br.success()
		return header, err
	}
	if br.failure() {
		c.logger.Warn("Circuit opened", "host", host, "error", err)
	}
	return header, err
}

func (c *Client) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	return c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(ref.Path, "/"), RawQuery: ref.RawQuery}), nil
}

// send makes one attempt and reports whether a failure is worth retrying.
func (c *Client) send(ctx context.Context, method, target, token string, body []byte, out any) (http.Header, bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(ctx, method, 0, start)
		return nil, ctx.Err() == nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	c.record(ctx, method, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := newStatusError(method, req.URL.Path, resp)
		return resp.Header, !IsClientError(serr), serr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.Header, false, fmt.Errorf("decoding %s %s response: %w", method, req.URL.Path, err)
		}
	}
	return resp.Header, false, nil
}

func (c *Client) record(ctx context.Context, method string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordGatewayCall(ctx, c.service, method, status, time.Since(start).Seconds())
	}
}

// errorBody covers the GitHub ({"message", "errors":[...]}) and Canvas
// ({"errors":[{"message"}]}) error shapes.
type errorBody struct {
	Message string `json:"message"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func newStatusError(method, path string, resp *http.Response) *StatusError {
	se := &StatusError{Method: method, URL: path, StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		parts := make([]string, 0, len(eb.Errors)+1)
		if eb.Message != "" {
			parts = append(parts, eb.Message)
		}
		for _, e := range eb.Errors {
			if e.Message != "" {
				parts = append(parts, e.Message)
			}
		}
		se.Message = strings.Join(parts, ": ")
	}
	return se
}
