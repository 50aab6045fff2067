// Package channelapi is the outbound HTTP transport shared by the channel and
// shipping adapters.
package channelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/infrastructure/config"
)

// maxResponseSize caps how much of a channel response is read (10MB)
const maxResponseSize = 10 * 1024 * 1024

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	baseRetryDelay    = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// Options tunes the outbound HTTP behaviour of a channel client
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
	MaxRetries     int
}

// OptionsFromConfig converts the per-platform client settings
func OptionsFromConfig(cfg config.ChannelClientConfig) Options {
	return Options{
		BaseURL:        cfg.BaseURL,
		Timeout:        cfg.Timeout,
		RequestsPerSec: cfg.RequestsPerSec,
		Burst:          cfg.Burst,
		MaxRetries:     cfg.MaxRetries,
	}
}

// Client is the throttled, retrying HTTP transport shared by the channel
// adapters. Requests wait on a token bucket; 429 and 5xx responses are retried
// with exponential backoff, honouring Retry-After when the server sends it.
type Client struct {
	platform   integration.PlatformCode
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger
	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func New(platform integration.PlatformCode, opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		platform:   platform,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: opts.MaxRetries,
		logger:     logger.Named(string(platform)),
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Request describes one API call. Body, when set, is sent as JSON.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    any
}

// Response is a successful API reply
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Do executes req with throttling and retries. Errors wrap the
// integration.ErrPlatform* sentinels so callers can classify them.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", c.platform, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt, lastErr)
			c.logger.Warn("Retrying channel request",
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, req, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, req Request, payload []byte) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", c.platform, err)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if payload != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &statusError{platform: c.platform, cause: integration.ErrPlatformUnavailable, detail: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &statusError{platform: c.platform, cause: integration.ErrPlatformUnavailable, detail: "read response: " + err.Error()}
	}

	if resp.StatusCode >= 400 {
		return nil, newStatusError(c.platform, resp, data)
	}
	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

// statusError is a failed call, classified by cause
type statusError struct {
	platform   integration.PlatformCode
	status     int
	cause      error
	detail     string
	retryAfter time.Duration
}

func newStatusError(platform integration.PlatformCode, resp *http.Response, body []byte) *statusError {
	e := &statusError{platform: platform, status: resp.StatusCode, detail: truncate(string(body), 512)}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.cause = integration.ErrPlatformRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.cause = integration.ErrPlatformAuthFailed
	case resp.StatusCode >= 500:
		e.cause = integration.ErrPlatformUnavailable
	default:
		e.cause = integration.ErrPlatformRequestFailed
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.retryAfter = time.Duration(secs) * time.Second
	}
	return e
}

func (e *statusError) Error() string {
	if e.status == 0 {
		return fmt.Sprintf("%s: %v: %s", e.platform, e.cause, e.detail)
	}
	return fmt.Sprintf("%s: %v: HTTP %d: %s", e.platform, e.cause, e.status, e.detail)
}

func (e *statusError) Unwrap() error { return e.cause }

// StatusOf returns the HTTP status of a failed call, or 0
func StatusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

func retryable(err error) bool {
	return errors.Is(err, integration.ErrPlatformRateLimited) || errors.Is(err, integration.ErrPlatformUnavailable)
}

func backoff(attempt int, err error) time.Duration {
	var se *statusError
	if errors.As(err, &se) && se.retryAfter > 0 {
		return min(se.retryAfter, maxRetryDelay)
	}
	d := baseRetryDelay << (attempt - 1)
	return min(d, maxRetryDelay)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
