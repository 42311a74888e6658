// Package transport provides the mTLS HTTP client for the BANCIWS service.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"anaf-gateway-go/internal/config"
	"anaf-gateway-go/internal/metrics"
)

const userAgent = "anaf-gateway-go/1.0"

// Result is the final response of one upstream call after all redirects.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
	// Cookies holds every cookie valid for the base URL after the call,
	// including ones set on intermediate redirect hops.
	Cookies []*http.Cookie
}

// ContentType returns the response Content-Type header.
func (r *Result) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Sender abstracts the upstream transport for the session and executor layers.
type Sender interface {
	Send(ctx context.Context, method, endpoint string, body []byte, contentType string, cookies []*http.Cookie) (*Result, error)
}

// Client sends requests to the BANCIWS service over mutual TLS. It has no
// session awareness: the cookies to present are a per-call parameter.
type Client struct {
	transport      http.RoundTripper
	baseURL        *url.URL
	requestTimeout time.Duration
	maxRedirects   int
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// New creates a Client with the configured client certificate, connection
// pooling and timeouts. The metrics parameter is optional; pass nil to disable
// upstream metrics recording.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	cert, err := tls.LoadX509KeyPair(cfg.ANAF.CertFile, cfg.ANAF.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
		MaxIdleConns:        cfg.ANAF.IdleConnections,
		MaxIdleConnsPerHost: cfg.ANAF.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return newClient(transport, cfg, logger, m)
}

// newClient wires a Client around an existing RoundTripper. Tests use it to
// point the client at an httptest server without real certificate material.
func newClient(rt http.RoundTripper, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	u, err := url.Parse(cfg.ANAF.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse anaf base_url: %w", err)
	}

	return &Client{
		transport:      rt,
		baseURL:        u,
		requestTimeout: time.Duration(cfg.ANAF.RequestTimeoutSeconds) * time.Second,
		maxRedirects:   cfg.ANAF.MaxRedirects,
		logger:         logger.With("component", "transport"),
		metrics:        m,
	}, nil
}

// Send executes one upstream call: it presents the given cookies, follows
// redirects up to the configured hop limit, and returns the final response
// together with the accumulated cookie set. Each call uses its own cookie jar
// seeded from the cookies parameter, so concurrent callers never observe each
// other's cookie mutations.
func (c *Client) Send(ctx context.Context, method, endpoint string, body []byte, contentType string, cookies []*http.Cookie) (*Result, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("new cookie jar: %w", err)
	}
	jar.SetCookies(c.baseURL, cookies)

	httpClient := &http.Client{
		Transport: c.transport,
		Jar:       jar,
		Timeout:   c.requestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= c.maxRedirects {
				return fmt.Errorf("stopped after %d redirects", c.maxRedirects)
			}
			return nil
		},
	}

	u := c.baseURL.JoinPath(endpoint)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("upstream request",
		"method", method,
		"endpoint", endpoint,
	)

	label := metrics.NormalizeEndpoint(endpoint)

	start := time.Now()
	resp, err := httpClient.Do(req)
	duration := time.Since(start).Seconds()

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(label).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(label).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		FinalURL:   resp.Request.URL.String(),
		Cookies:    jar.Cookies(c.baseURL),
	}, nil
}
