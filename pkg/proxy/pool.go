package proxy

import (
	"errors"
	"sync"
	"time"
)

// Node is a single egress node known to the controller, with health tracking.
type Node struct {
	Name          string
	Failures      int
	Successes     int
	LastUsed      time.Time
	Disabled      bool
	DisabledUntil time.Time
}

// Pool tracks the health of egress nodes by name. Nodes are added lazily the
// first time they are reported by the controller.
type Pool struct {
	mu          sync.Mutex
	nodes       map[string]*Node
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the node Pool.
type Config struct {
	// MaxFailures before disabling a node temporarily.
	MaxFailures int
	// Cooldown is how long a node remains disabled after hitting MaxFailures.
	Cooldown time.Duration
	// Now overrides the time source. Defaults to time.Now.
	Now func() time.Time
}

// NewPool creates a new node pool. If config values are zero, reasonable defaults are used.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{
		nodes:       make(map[string]*Node),
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         cfg.Now,
	}
}

// Healthy filters names down to the nodes that are not cooling down,
// preserving order. Unknown names are registered as healthy.
func (p *Pool) Healthy(names []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]string, 0, len(names))
	for _, name := range names {
		n := p.node(name)

		if n.Disabled && now.After(n.DisabledUntil) {
			n.Disabled = false
			n.Failures = 0 // reset failures on revival
		}
		if !n.Disabled {
			out = append(out, name)
		}
	}
	return out
}

// MarkUsed records that name became the active node.
func (p *Pool) MarkUsed(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.node(name).LastUsed = p.now()
}

// MarkSuccess records a successful rotation onto name.
func (p *Pool) MarkSuccess(name string) error {
	if name == "" {
		return errors.New("proxy: node name cannot be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.node(name)
	n.Successes++
	if n.Failures > 0 {
		n.Failures--
	}
	return nil
}

// MarkFailure records a failed rotation onto name. Once failures reach the
// configured maximum the node is disabled for the cooldown period.
func (p *Pool) MarkFailure(name string) error {
	if name == "" {
		return errors.New("proxy: node name cannot be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.node(name)
	n.Failures++
	if n.Failures >= p.maxFailures {
		n.Disabled = true
		n.DisabledUntil = p.now().Add(p.cooldown)
	}
	return nil
}

// Snapshot returns a copy of the tracked state for name.
func (p *Pool) Snapshot(name string) (Node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[name]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// node returns the entry for name, creating it. Must be called with lock held.
func (p *Pool) node(name string) *Node {
	n, ok := p.nodes[name]
	if !ok {
		n = &Node{Name: name}
		p.nodes[name] = n
	}
	return n
}
