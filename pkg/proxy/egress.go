package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/FranksOps/v6scout/pkg/httpclient"
	"github.com/tidwall/gjson"
)

// EgressConfig configures an EgressChecker.
type EgressConfig struct {
	// URL of an IP echo service answering with the caller address, either as
	// plain text or as JSON with an "ip" field.
	URL string
	// Transport should route through the local proxy.
	Transport http.RoundTripper
	Timeout   time.Duration
}

// EgressChecker discovers the public address traffic leaves from.
type EgressChecker struct {
	url    string
	client *httpclient.Client
}

// NewEgressChecker creates an EgressChecker.
func NewEgressChecker(cfg EgressConfig) (*EgressChecker, error) {
	if cfg.URL == "" {
		return nil, errors.New("proxy: egress check URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client, err := httpclient.New(httpclient.Config{
		Timeout:   cfg.Timeout,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	return &EgressChecker{url: cfg.URL, client: client}, nil
}

// IP returns the current egress address.
func (e *EgressChecker) IP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return "", fmt.Errorf("proxy: %w", err)
	}
	resp, err := e.client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("proxy: egress check: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("proxy: egress check: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proxy: egress check: unexpected status %d", resp.StatusCode)
	}

	raw := strings.TrimSpace(string(body))
	if gjson.Valid(raw) {
		if ip := gjson.Get(raw, "ip"); ip.Exists() {
			raw = ip.String()
		}
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", fmt.Errorf("proxy: egress check: unexpected body %q", raw)
	}
	return addr.String(), nil
}
