// Package query drives one domain lookup through the shared browser session:
// page initialization, block handling, submission, completion detection and
// bounded retries.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/v6scout/internal/browser"
	"github.com/FranksOps/v6scout/internal/clock"
	"github.com/FranksOps/v6scout/internal/detect"
	"github.com/FranksOps/v6scout/internal/metrics"
	"github.com/FranksOps/v6scout/internal/rotation"
)

// Outcome classifies a finished lookup.
type Outcome int

const (
	// OutcomeFound means at least one address was extracted.
	OutcomeFound Outcome = iota
	// OutcomeEmpty means the page explicitly reported zero addresses.
	OutcomeEmpty
	// OutcomeUnresolved means no addresses were seen but emptiness was not
	// confirmed by the page (debounced zero or timeout).
	OutcomeUnresolved
	// OutcomeFailed means every attempt errored.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeEmpty:
		return "empty"
	case OutcomeUnresolved:
		return "unresolved"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	for _, o := range []Outcome{OutcomeFound, OutcomeEmpty, OutcomeUnresolved, OutcomeFailed} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("query: unknown outcome %q", s)
}

// Result is the outcome of resolving one domain.
type Result struct {
	Domain    string
	Addresses []string
	Outcome   Outcome
	Attempts  int
	Duration  time.Duration
	// State is the detector's final state for the successful attempt.
	State detect.State
	// Err is the last attempt error when Outcome is OutcomeFailed.
	Err error
}

// Guard is the block handling the driver needs from the rotation controller.
type Guard interface {
	Check(content string) (bool, string)
	Escalate(ctx context.Context, sess browser.Session, source string) error
	RecordRequest()
}

// Config holds retry settings.
type Config struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DefaultConfig returns the standard retry settings.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, RetryBackoff: 3 * time.Second}
}

// Driver resolves domains one at a time.
type Driver struct {
	cfg      Config
	detector *detect.Detector
	guard    Guard
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates a Driver.
func New(cfg Config, detector *detect.Detector, guard Guard, clk clock.Clock, logger *slog.Logger) *Driver {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{cfg: cfg, detector: detector, guard: guard, clock: clk, logger: logger}
}

// Resolve looks up the AAAA records of domain. Attempt failures are retried
// and reported as OutcomeFailed; only a persistent block or context
// cancellation is returned as an error.
func (d *Driver) Resolve(ctx context.Context, sess browser.Session, domain string) (Result, error) {
	start := d.clock.Now()
	res := Result{Domain: domain, Addresses: []string{}}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		out, err := d.attempt(ctx, sess, domain)
		if err == nil {
			res.Addresses = out.Addresses
			res.State = out.State
			res.Outcome = classify(out)
			lastErr = nil
			break
		}
		if isFatal(ctx, err) {
			res.Duration = d.clock.Now().Sub(start)
			return res, err
		}

		lastErr = err
		d.logger.Warn("query attempt failed", "domain", domain, "attempt", attempt, "max", d.cfg.MaxAttempts, "err", err)
		sess.Invalidate()
		if attempt < d.cfg.MaxAttempts {
			if err := d.clock.Sleep(ctx, d.cfg.RetryBackoff); err != nil {
				res.Duration = d.clock.Now().Sub(start)
				return res, err
			}
		}
	}

	if lastErr != nil {
		res.Outcome = OutcomeFailed
		res.Err = lastErr
		d.logger.Error("query failed, attempts exhausted", "domain", domain, "attempts", res.Attempts, "err", lastErr)
	}
	res.Duration = d.clock.Now().Sub(start)

	d.guard.RecordRequest()
	metrics.RecordQuery(res.Outcome.String(), res.Attempts, len(res.Addresses), res.Duration)
	return res, nil
}

func (d *Driver) attempt(ctx context.Context, sess browser.Session, domain string) (detect.Outcome, error) {
	if !sess.Initialized() {
		if err := sess.Init(ctx); err != nil {
			return detect.Outcome{}, fmt.Errorf("query: initialize page: %w", err)
		}
	}

	content, err := sess.Content(ctx)
	if err != nil {
		return detect.Outcome{}, fmt.Errorf("query: read page: %w", err)
	}
	if blocked, source := d.guard.Check(content); blocked {
		if err := d.guard.Escalate(ctx, sess, source); err != nil {
			return detect.Outcome{}, err
		}
	}

	if err := sess.Submit(ctx, domain); err != nil {
		return detect.Outcome{}, fmt.Errorf("query: submit: %w", err)
	}

	out, err := d.detector.Wait(ctx, sess, domain)
	if err != nil {
		return detect.Outcome{}, err
	}
	if out.State == detect.StateTimedOut && len(out.Addresses) == 0 {
		d.logger.Warn("query timed out without addresses", "domain", domain, "elapsed", out.Elapsed)
	}
	return out, nil
}

func classify(out detect.Outcome) Outcome {
	switch {
	case len(out.Addresses) > 0:
		return OutcomeFound
	case out.State == detect.StateStableEmpty && out.Confirmed:
		return OutcomeEmpty
	default:
		return OutcomeUnresolved
	}
}

func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, rotation.ErrBlocked)
}
