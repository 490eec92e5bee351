// Package gateway is the client side of the buyMove REST API: one HTTP
// transport that attaches the bearer credential, and typed methods for each
// endpoint. Responses carrying vehicles are returned raw so callers can run
// them through the normalizer.
package gateway

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/buymove/buymove-client/pkg/resilience"
)

const (
	// DefaultTimeout bounds every request.
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

// TokenSource returns the bearer credential to attach, or "" for none.
type TokenSource func(ctx context.Context) string

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit is the sustained request rate per second; 0 disables it.
	RateLimit float64
	Burst     int
	Breaker   resilience.BreakerOpts
	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}

// Client issues requests against the backend.
type Client struct {
	base     *url.URL
	http     *http.Client
	token    TokenSource
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	log      *zap.Logger
	requests metric.Int64Counter
}

// New creates a Client. token may be nil for anonymous access.
func New(cfg Config, token TokenSource, log *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if token == nil {
		token = func(context.Context) string { return "" }
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("gateway")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	bopts := cfg.Breaker
	bopts.Trips = func(err error) bool {
		var gerr *Error
		return errors.As(err, &gerr) && gerr.Temporary() && !errors.Is(err, context.Canceled)
	}
	bopts.OnStateChange = func(from, to resilience.State) {
		log.Warn("circuit breaker state change", zap.Stringer("from", from), zap.Stringer("to", to))
	}

	base0 := cfg.Transport
	if base0 == nil {
		base0 = http.DefaultTransport
	}

	requests, err := otel.Meter("github.com/buymove/buymove-client/pkg/gateway").Int64Counter(
		"gateway.requests",
		metric.WithDescription("Requests issued to the backend, by method and status class."),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway: request counter: %w", err)
	}

	return &Client{
		base:     base,
		http:     &http.Client{Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(base0)},
		token:    token,
		limiter:  limiter,
		breaker:  resilience.NewBreaker(bopts),
		log:      log,
		requests: requests,
	}, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string { return c.base.String() }

// BreakerState reports the circuit breaker's state.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

// Close releases idle connections.
func (c *Client) Close() { c.http.CloseIdleConnections() }

// request describes one call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func jsonRequest(method, path string, v any) (request, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return request{}, fmt.Errorf("gateway: encode %s %s: %w", method, path, err)
	}
	return request{method: method, path: path, body: b, contentType: "application/json"}, nil
}

// do sends r and decodes a successful body into out (when non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	fail := func(status int, detail []string, cause error) *Error {
		return &Error{Method: r.method, Path: r.path, StatusCode: status, Detail: detail, Cause: cause}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fail(0, nil, err)
	}

	var body []byte
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		u := c.base.JoinPath(r.path)
		if len(r.query) > 0 {
			u.RawQuery = r.query.Encode()
		}
		var rdr io.Reader
		if r.body != nil {
			rdr = bytes.NewReader(r.body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, u.String(), rdr)
		if err != nil {
			return fail(0, nil, err)
		}
		req.Header.Set("Accept", "application/json")
		if r.contentType != "" {
			req.Header.Set("Content-Type", r.contentType)
		}
		if tok := c.token(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			c.count(ctx, r.method, 0)
			return fail(0, nil, err)
		}
		defer resp.Body.Close()
		c.count(ctx, r.method, resp.StatusCode)

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fail(0, nil, err)
		}
		c.log.Debug("request",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)),
		)
		if resp.StatusCode >= 400 {
			return fail(resp.StatusCode, extractDetail(body), nil)
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fail(0, nil, err)
	}
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fail(0, nil, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) count(ctx context.Context, method string, status int) {
	class := "error"
	if status > 0 {
		class = fmt.Sprintf("%dxx", status/100)
	}
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", class),
	))
}
