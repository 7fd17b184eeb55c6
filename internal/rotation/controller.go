// Package rotation decides when to change the egress identity, performs the
// switch through an external proxy controller and escalates persistent
// blocks into a fatal condition.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/FranksOps/v6scout/internal/browser"
	"github.com/FranksOps/v6scout/internal/bypass"
	"github.com/FranksOps/v6scout/internal/clock"
	"github.com/FranksOps/v6scout/internal/metrics"
	"github.com/FranksOps/v6scout/pkg/proxy"
)

// NodeController is the external capability that lists and selects egress nodes.
type NodeController interface {
	ListNodes(ctx context.Context, group string) ([]string, error)
	Active(ctx context.Context, group string) (string, error)
	SetActiveNode(ctx context.Context, group, node string) error
}

// EgressProber reports the public address traffic currently leaves from.
type EgressProber interface {
	IP(ctx context.Context) (string, error)
}

// Config holds the rotation policy.
type Config struct {
	// Enabled turns scheduled rotation on. Block escalation works regardless.
	Enabled bool
	// RequestsPerIP is how many queries one identity serves before rotating.
	RequestsPerIP int
	// Group is the controller selector group holding the egress nodes.
	Group string
	// SettleDelay is waited after a scheduled switch.
	SettleDelay time.Duration
	// EscalationSettle is waited after a switch triggered by a block.
	EscalationSettle time.Duration
	// RestartDelay is waited between switching and recreating the browser.
	RestartDelay time.Duration
	// Seed makes node selection deterministic when non-zero.
	Seed uint64
}

// DefaultConfig returns the standard rotation policy.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		RequestsPerIP:    10,
		Group:            "🔰 节点选择",
		SettleDelay:      2 * time.Second,
		EscalationSettle: 3 * time.Second,
		RestartDelay:     3 * time.Second,
	}
}

// State is the current egress identity and its usage.
type State struct {
	Node     string
	Requests int
}

// Controller owns the per-identity request counter and the rotation policy.
// It is not safe for concurrent use; the batch drives it from one goroutine.
type Controller struct {
	cfg       Config
	nodes     NodeController
	pool      *proxy.Pool
	egress    EgressProber
	detectors []bypass.Detector
	clock     clock.Clock
	logger    *slog.Logger
	rng       *rand.Rand

	state State
}

// Option customizes a Controller.
type Option func(*Controller)

// WithEgressProber enables egress address verification after each switch.
func WithEgressProber(p EgressProber) Option {
	return func(c *Controller) { c.egress = p }
}

// WithPool overrides the node health pool.
func WithPool(p *proxy.Pool) Option {
	return func(c *Controller) { c.pool = p }
}

// WithDetectors overrides the block detectors.
func WithDetectors(d []bypass.Detector) Option {
	return func(c *Controller) { c.detectors = d }
}

// New creates a Controller. nodes may be nil when no external controller is available.
func New(cfg Config, nodes NodeController, clk clock.Clock, logger *slog.Logger, opts ...Option) *Controller {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	c := &Controller{
		cfg:       cfg,
		nodes:     nodes,
		pool:      proxy.NewPool(proxy.Config{}),
		detectors: bypass.DefaultDetectors(),
		clock:     clk,
		logger:    logger,
		rng:       rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns a copy of the current identity state.
func (c *Controller) State() State { return c.state }

// Threshold returns the configured requests per identity.
func (c *Controller) Threshold() int { return c.cfg.RequestsPerIP }

// ShouldRotate reports whether the current identity has served its quota.
func (c *Controller) ShouldRotate() bool {
	return c.cfg.Enabled && c.cfg.RequestsPerIP > 0 && c.state.Requests >= c.cfg.RequestsPerIP
}

// RecordRequest counts one completed query against the current identity.
func (c *Controller) RecordRequest() {
	c.state.Requests++
	metrics.IdentityRequests.Set(float64(c.state.Requests))
}

func (c *Controller) resetCounter() {
	c.state.Requests = 0
	metrics.IdentityRequests.Set(0)
}

// Check runs the block detectors over page content.
func (c *Controller) Check(content string) (bool, string) {
	return bypass.Analyze(content, c.detectors)
}

// IsBlocked reports whether page content carries a block indicator.
func (c *Controller) IsBlocked(content string) bool {
	blocked, _ := c.Check(content)
	return blocked
}

// Rotate switches to a random eligible node and resets the request counter.
// Failures are returned for logging only: the current identity stays in use.
func (c *Controller) Rotate(ctx context.Context) error {
	c.logger.Info("rotating egress node", "requests", c.state.Requests, "threshold", c.cfg.RequestsPerIP, "node", c.state.Node)
	defer c.resetCounter()

	node, err := c.switchNode(ctx, c.cfg.SettleDelay)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordRotation(rotationResult(err))
		c.logger.Warn("rotation failed, keeping current node", "node", c.state.Node, "err", err)
		return err
	}
	metrics.RecordRotation("switched")
	c.logger.Info("switched egress node", "node", node)
	return nil
}

// RotateSession performs a full identity rotation: node switch, browser
// restart with a fresh profile and a cleared page. Only context cancellation
// and a failed browser restart are returned as errors.
func (c *Controller) RotateSession(ctx context.Context, sess browser.Session) error {
	if err := c.Rotate(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	c.logger.Info("restarting browser", "delay", c.cfg.RestartDelay)
	if err := c.clock.Sleep(ctx, c.cfg.RestartDelay); err != nil {
		return err
	}
	if err := sess.Reset(ctx); err != nil {
		return fmt.Errorf("rotation: restart browser: %w", err)
	}
	c.resetCounter()
	c.logger.Info("browser restarted, continuing")
	return nil
}

// Escalate handles a detected block: exactly one node switch followed by a
// page re-initialization and a re-check. A block that persists, or a switch
// that cannot be made, is returned as a *BlockedError. Other errors come from
// re-initializing the page and are retryable.
func (c *Controller) Escalate(ctx context.Context, sess browser.Session, source string) error {
	metrics.RecordBlock(source)
	c.logger.Warn("block detected, switching egress node", "source", source, "node", c.state.Node)

	node, err := c.switchNode(ctx, c.cfg.EscalationSettle)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordRotation(rotationResult(err))
		c.logger.Error("block detected and no node could be switched to, stopping", "source", source, "err", err)
		return &BlockedError{Source: source, Node: c.state.Node, Cause: err}
	}
	metrics.RecordRotation("switched")

	sess.Invalidate()
	if err := sess.Init(ctx); err != nil {
		return fmt.Errorf("rotation: reinitialize page after switch: %w", err)
	}

	content, err := sess.Content(ctx)
	if err != nil {
		return fmt.Errorf("rotation: read page after switch: %w", err)
	}
	if blocked, src := c.Check(content); blocked {
		_ = c.pool.MarkFailure(node)
		c.logger.Error("still blocked after switching node, stopping; change node manually or retry in 24h",
			"source", src, "node", node)
		return &BlockedError{Source: src, Node: node}
	}

	c.logger.Info("node switch cleared the block, continuing", "node", node)
	return nil
}

// switchNode picks a random healthy node other than the current one,
// selects it, waits settle and verifies the switch.
func (c *Controller) switchNode(ctx context.Context, settle time.Duration) (string, error) {
	if c.nodes == nil {
		return "", ErrNoController
	}

	var before string
	if c.egress != nil {
		ip, err := c.egress.IP(ctx)
		if err != nil {
			c.logger.Warn("egress check before switch failed", "err", err)
		}
		before = ip
	}

	names, err := c.nodes.ListNodes(ctx, c.cfg.Group)
	if err != nil {
		return "", fmt.Errorf("rotation: list nodes: %w", err)
	}
	current := c.state.Node
	if current == "" {
		if active, err := c.nodes.Active(ctx, c.cfg.Group); err == nil {
			current = active
		}
	}
	healthy := c.pool.Healthy(names)
	if len(healthy) > 1 && current != "" {
		others := healthy[:0:0]
		for _, n := range healthy {
			if n != current {
				others = append(others, n)
			}
		}
		healthy = others
	}
	if len(healthy) == 0 {
		return "", ErrNoNodes
	}

	node := healthy[c.rng.IntN(len(healthy))]
	if err := c.nodes.SetActiveNode(ctx, c.cfg.Group, node); err != nil {
		_ = c.pool.MarkFailure(node)
		return "", fmt.Errorf("rotation: switch to %q: %w", node, err)
	}
	c.pool.MarkUsed(node)
	c.state.Node = node

	if err := c.clock.Sleep(ctx, settle); err != nil {
		return "", err
	}

	if active, err := c.nodes.Active(ctx, c.cfg.Group); err != nil {
		c.logger.Warn("could not confirm active node", "node", node, "err", err)
	} else if active != node {
		_ = c.pool.MarkFailure(node)
		c.state.Node = active
		return "", fmt.Errorf("%w: controller reports %q, wanted %q", ErrUnverified, active, node)
	}

	if c.egress != nil && before != "" {
		after, err := c.egress.IP(ctx)
		switch {
		case err != nil:
			c.logger.Warn("egress check after switch failed", "node", node, "err", err)
		case after == before:
			_ = c.pool.MarkFailure(node)
			return "", fmt.Errorf("%w: egress address %s unchanged", ErrUnverified, after)
		default:
			c.logger.Info("egress address changed", "from", before, "to", after)
		}
	}

	_ = c.pool.MarkSuccess(node)
	return node, nil
}

func rotationResult(err error) string {
	switch {
	case errors.Is(err, ErrNoNodes), errors.Is(err, ErrNoController):
		return "no_nodes"
	case errors.Is(err, ErrUnverified):
		return "unverified"
	default:
		return "failed"
	}
}
