package proxy

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

	"github.com/FranksOps/v6scout/pkg/httpclient"
	"github.com/tidwall/gjson"
)

// DefaultExcludePatterns mark selector entries that are subscription
// metadata or meta-groups rather than real egress nodes.
var DefaultExcludePatterns = []string{"流量", "套餐", "重置", "直连", "自动", "故障"}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// URL is the base of the external controller API, e.g. http://127.0.0.1:9090.
	URL string
	// Secret is sent as a bearer token when non-empty.
	Secret string
	// Timeout bounds every call. Defaults to 5s.
	Timeout time.Duration
	// Exclude lists substrings that disqualify a node name. Nil uses DefaultExcludePatterns.
	Exclude []string
}

// Group is a selector group as reported by the controller.
type Group struct {
	Name string
	Type string
	// Now is the currently selected member.
	Now string
	All []string
}

// Controller talks to a Clash-compatible proxy controller over HTTP.
type Controller struct {
	base    *url.URL
	client  *httpclient.Client
	exclude []string
}

// NewController validates cfg and creates a Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.URL == "" {
		return nil, errors.New("proxy: controller URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("proxy: parse controller URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Exclude == nil {
		cfg.Exclude = DefaultExcludePatterns
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:     cfg.Timeout,
		BearerToken: cfg.Secret,
		Header:      http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}

	return &Controller{base: base, client: client, exclude: cfg.Exclude}, nil
}

func (c *Controller) groupURL(group string) string {
	u := *c.base
	prefix := u.Path + "/proxies/"
	u.Path = prefix + group
	u.RawPath = prefix + url.PathEscape(group)
	return u.String()
}

// Group fetches the raw selector group.
func (c *Controller) Group(ctx context.Context, group string) (Group, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.groupURL(group), nil)
	if err != nil {
		return Group{}, fmt.Errorf("proxy: %w", err)
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return Group{}, fmt.Errorf("proxy: get group %q: %w", group, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Group{}, fmt.Errorf("proxy: read group %q: %w", group, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Group{}, fmt.Errorf("proxy: get group %q: unexpected status %d", group, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return Group{}, fmt.Errorf("proxy: get group %q: invalid JSON response", group)
	}

	res := gjson.ParseBytes(body)
	g := Group{
		Name: res.Get("name").String(),
		Type: res.Get("type").String(),
		Now:  res.Get("now").String(),
	}
	for _, m := range res.Get("all").Array() {
		if m.Type == gjson.String {
			g.All = append(g.All, m.String())
		}
	}
	return g, nil
}

// ListNodes returns the group's members that look like real egress nodes.
func (c *Controller) ListNodes(ctx context.Context, group string) ([]string, error) {
	g, err := c.Group(ctx, group)
	if err != nil {
		return nil, err
	}
	return FilterNodes(g.All, c.exclude), nil
}

// Active returns the group's currently selected member.
func (c *Controller) Active(ctx context.Context, group string) (string, error) {
	g, err := c.Group(ctx, group)
	if err != nil {
		return "", err
	}
	return g.Now, nil
}

// SetActiveNode switches the group's selection to node.
func (c *Controller) SetActiveNode(ctx context.Context, group, node string) error {
	payload, err := json.Marshal(map[string]string{"name": node})
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.groupURL(group), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("proxy: switch %q to %q: %w", group, node, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("proxy: switch %q to %q: unexpected status %d", group, node, resp.StatusCode)
	}
	return nil
}

// FilterNodes drops every name containing one of the exclude substrings.
func FilterNodes(all, exclude []string) []string {
	out := make([]string, 0, len(all))
	for _, name := range all {
		skip := false
		for _, pat := range exclude {
			if pat != "" && strings.Contains(name, pat) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, name)
		}
	}
	return out
}
