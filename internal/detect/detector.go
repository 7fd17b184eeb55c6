// Package detect decides when an asynchronously rendered lookup has finished.
//
// The remote page gives no deterministic completion event, so the detector
// polls the page on a fixed interval and treats a result count that stays
// unchanged over consecutive ticks as final.
package detect

import (
	"context"
	"log/slog"
	"time"

	"github.com/FranksOps/v6scout/internal/clock"
	"github.com/FranksOps/v6scout/internal/extract"
)

// ContentSource yields the current rendered page markup.
type ContentSource interface {
	Content(ctx context.Context) (string, error)
}

// Config holds the polling constants.
type Config struct {
	// PollInterval is the delay before every tick.
	PollInterval time.Duration
	// Ceiling bounds the whole wait.
	Ceiling time.Duration
	// StableTicks is how many consecutive ticks must report the same non-zero count.
	StableTicks int
	// EmptyTicks is how many consecutive ticks must report zero addresses.
	EmptyTicks int
	// SettleDelay is applied after loading finished, before reading results.
	SettleDelay time.Duration
}

// DefaultConfig returns the tuned defaults for the DNS lookup page.
func DefaultConfig() Config {
	return Config{
		PollInterval: 3 * time.Second,
		Ceiling:      120 * time.Second,
		StableTicks:  2,
		EmptyTicks:   3,
		SettleDelay:  2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Ceiling <= 0 {
		c.Ceiling = d.Ceiling
	}
	if c.StableTicks <= 0 {
		c.StableTicks = d.StableTicks
	}
	if c.EmptyTicks <= 0 {
		c.EmptyTicks = d.EmptyTicks
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	return c
}

// Outcome is the terminal result of one Wait.
type Outcome struct {
	State     State
	Addresses []string
	// Confirmed is set when the page explicitly reported zero addresses.
	Confirmed bool
	Ticks     int
	Elapsed   time.Duration
}

// Detector runs the polling loop.
type Detector struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Detector. A nil clock uses the wall clock.
func New(cfg Config, clk clock.Clock, logger *slog.Logger) *Detector {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cfg: cfg.withDefaults(), clock: clk, logger: logger}
}

// Wait polls src until the rendered lookup for domain is stable or the
// ceiling is reached. Only context cancellation produces an error; page read
// failures are logged and the tick is skipped.
func (d *Detector) Wait(ctx context.Context, src ContentSource, domain string) (Outcome, error) {
	start := d.clock.Now()
	tr := NewTracker(d.cfg.StableTicks, d.cfg.EmptyTicks)
	ticks := 0

	for d.clock.Now().Sub(start) < d.cfg.Ceiling {
		if err := d.clock.Sleep(ctx, d.cfg.PollInterval); err != nil {
			return Outcome{State: StatePolling, Addresses: tr.Best(), Ticks: ticks, Elapsed: d.clock.Now().Sub(start)}, err
		}
		ticks++
		elapsed := d.clock.Now().Sub(start)

		html, err := src.Content(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{State: StatePolling, Addresses: tr.Best(), Ticks: ticks, Elapsed: elapsed}, ctx.Err()
			}
			d.logger.Warn("reading page failed", "domain", domain, "err", err)
			continue
		}

		sig := ReadSignals(html)
		if sig.Loading {
			d.logger.Info("lookup in progress", "domain", domain, "elapsed", elapsed.Round(time.Second), "progress", sig.Progress)
			continue
		}

		if err := d.clock.Sleep(ctx, d.cfg.SettleDelay); err != nil {
			return Outcome{State: StatePolling, Addresses: tr.Best(), Ticks: ticks, Elapsed: d.clock.Now().Sub(start)}, err
		}
		html, err = src.Content(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{State: StatePolling, Addresses: tr.Best(), Ticks: ticks, Elapsed: d.clock.Now().Sub(start)}, ctx.Err()
			}
			d.logger.Warn("reading page failed", "domain", domain, "err", err)
			continue
		}

		sig = ReadSignals(html)
		d.logger.Debug("lookup settled", "domain", domain, "count", len(sig.Addresses))

		switch tr.Observe(sig) {
		case StateStableWithResults:
			return Outcome{
				State:     StateStableWithResults,
				Addresses: tr.Latest(),
				Ticks:     ticks,
				Elapsed:   d.clock.Now().Sub(start),
			}, nil
		case StateStableEmpty:
			return Outcome{
				State:     StateStableEmpty,
				Addresses: []string{},
				Confirmed: tr.Confirmed(),
				Ticks:     ticks,
				Elapsed:   d.clock.Now().Sub(start),
			}, nil
		}
	}

	addrs := tr.Best()
	if len(addrs) > 0 {
		// Results were seen but never settled; take whatever is rendered now.
		if html, err := src.Content(ctx); err == nil {
			if latest := extract.Addresses(extract.PageText(html)); len(latest) > 0 {
				addrs = latest
			}
		}
	}
	if addrs == nil {
		addrs = []string{}
	}
	return Outcome{
		State:     StateTimedOut,
		Addresses: addrs,
		Ticks:     ticks,
		Elapsed:   d.clock.Now().Sub(start),
	}, nil
}
