package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	// Provide a custom Transport, e.g. for proxies or uTLS fingerprinting
	Transport http.RoundTripper
	// BearerToken, when set, is sent as "Authorization: Bearer <token>".
	BearerToken string
	// Header is added to every request that does not already set the key.
	Header http.Header
}

// Client wraps a standard http.Client to provide configurable timeouts,
// redirect policy and per-client authentication.
type Client struct {
	*http.Client
	token  string
	header http.Header
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("httpclient: negative timeout")
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	if cfg.MaxRedirects >= 0 {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("httpclient: stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		}
	} else {
		// Don't follow any redirects if max < 0
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c, token: cfg.BearerToken, header: cfg.Header.Clone()}, nil
}

// Do executes an HTTP request. The provided context.Context controls
// cancellation independent of the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	reqWithCtx := req.Clone(ctx)
	for k, vals := range c.header {
		if reqWithCtx.Header.Get(k) != "" {
			continue
		}
		for _, v := range vals {
			reqWithCtx.Header.Add(k, v)
		}
	}
	if c.token != "" && reqWithCtx.Header.Get("Authorization") == "" {
		reqWithCtx.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.Client.Do(reqWithCtx)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}
