// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// CLOUD: Secure logging, size limits and request pacing

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the HTTP transport.
const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// UserAgent identifies the client to providers.
	UserAgent = "xion/0.1.0"
)

var (
	// ErrResponseTooLarge means the body exceeded the size limit.
	ErrResponseTooLarge = errors.New("response exceeded maximum size")

	// ErrInvalidURL means the endpoint could not be parsed or is not http(s).
	ErrInvalidURL = errors.New("invalid endpoint URL")
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// SECURITY: TLS verification required for production
// Timeouts are applied per attempt through the context.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the net/http Transport. Configure it with the With* methods
// before first use; after that it is safe for concurrent use.
type Client struct {
	httpClient      *http.Client
	timeout         time.Duration
	maxResponseSize int64
	userAgent       string
	limiter         *rate.Limiter
	logger          *slog.Logger
}

// NewClient creates a client backed by the shared pooled http.Client.
func NewClient() *Client {
	return &Client{
		httpClient:      sharedHTTPClient,
		timeout:         DefaultTimeout,
		maxResponseSize: MaxResponseSize,
		userAgent:       UserAgent,
		logger:          slog.Default(),
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithTimeout sets the per-attempt timeout. Zero disables it.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout >= 0 {
		c.timeout = timeout
	}
	return c
}

// WithMaxResponseSize sets the body size limit in bytes.
func (c *Client) WithMaxResponseSize(n int64) *Client {
	if n > 0 {
		c.maxResponseSize = n
	}
	return c
}

// WithUserAgent overrides the User-Agent header.
func (c *Client) WithUserAgent(ua string) *Client {
	if ua != "" {
		c.userAgent = ua
	}
	return c
}

// WithRateLimit paces outgoing requests to rps per second with the given
// burst. rps <= 0 disables pacing.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithLogger sets the logger for request/response lines.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Post implements Transport.
func (c *Client) Post(ctx context.Context, r Request) (*Response, error) {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, r.URL)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	c.setHeaders(req, r.APIKey)

	c.logger.Debug("api request",
		slog.String("method", req.Method),
		slog.String("host", u.Host),
		slog.String("path", u.Path),
		slog.String("key", KeyFingerprint(r.APIKey)),
		slog.Int("bytes", len(r.Body)))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := c.readResponse(resp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("api response",
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func (c *Client) setHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

func (c *Client) readResponse(resp *http.Response) ([]byte, error) {
	// SECURITY: Limit response size to prevent memory exhaustion.
	// Read one extra byte so an exactly-full body is still accepted.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, fmt.Errorf("%w of %d bytes", ErrResponseTooLarge, c.maxResponseSize)
	}
	return body, nil
}

// =============================================================================
// CLOUD: Key handling (never log key material)
// =============================================================================

// KeyFingerprint returns the first 4 bytes of the key's SHA-256 as hex.
// SECURITY: Uses SHA-256 hash to create a unique identifier without exposing the key.
func KeyFingerprint(apiKey string) string {
	if apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:4])
}

// MaskKey returns a display form of the key that reveals no part of it.
func MaskKey(apiKey string) string {
	if strings.TrimSpace(apiKey) == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(apiKey), KeyFingerprint(apiKey))
}
