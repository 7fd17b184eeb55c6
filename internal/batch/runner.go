// Package batch processes a range of domains from an input workbook through
// the query driver, checkpointing progress and writing the output workbook.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tevino/abool"

	"github.com/FranksOps/v6scout/internal/browser"
	"github.com/FranksOps/v6scout/internal/checkpoint"
	"github.com/FranksOps/v6scout/internal/clock"
	"github.com/FranksOps/v6scout/internal/metrics"
	"github.com/FranksOps/v6scout/internal/query"
	"github.com/FranksOps/v6scout/internal/rotation"
	"github.com/FranksOps/v6scout/internal/sheet"
	"github.com/FranksOps/v6scout/internal/storage"
	"github.com/FranksOps/v6scout/pkg/ratelimit"
)

// Resolver resolves one domain on the shared session.
type Resolver interface {
	Resolve(ctx context.Context, sess browser.Session, domain string) (query.Result, error)
}

// Rotator performs scheduled identity rotation.
type Rotator interface {
	ShouldRotate() bool
	RotateSession(ctx context.Context, sess browser.Session) error
	State() rotation.State
	Threshold() int
}

// Options selects the work and its pacing.
type Options struct {
	Input  string
	Output string // defaults to sheet.OutputPath(Input)
	// Start and End bound the 0-based half-open range [Start, End).
	// End <= 0 means the end of the input.
	Start  int
	End    int
	Resume bool
	// CheckpointEvery saves progress and a partial output after every N
	// positions (1-based position divisible by N).
	CheckpointEvery int
	InterQueryDelay time.Duration
	Jitter          float64
	// Rotate enables scheduled rotation between domains.
	Rotate bool
}

// DefaultOptions returns the standard pacing.
func DefaultOptions() Options {
	return Options{
		Resume:          true,
		CheckpointEvery: 10,
		InterQueryDelay: 3 * time.Second,
		Rotate:          true,
	}
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Start      int
	End        int
	NextIndex  int // first index not completed
	Processed  int
	Found      int
	Empty      int
	Unresolved int
	Failed     int
	Rotations  int
	// Interrupted is set when a stop was requested before the range finished.
	Interrupted bool
	Output      string
	Results     map[string][]string
}

// Runner executes one batch. It is single-use and drives the session from
// one goroutine; only Stop may be called concurrently.
type Runner struct {
	opts     Options
	sess     browser.Session
	resolver Resolver
	rotator  Rotator
	store    *checkpoint.Store
	backend  storage.Backend
	pacer    *ratelimit.Pacer
	clock    clock.Clock
	logger   *slog.Logger
	stop     *abool.AtomicBool
	runID    string
}

// Config carries the collaborators of a Runner. Backend is optional.
type Config struct {
	Options    Options
	Session    browser.Session
	Resolver   Resolver
	Rotator    Rotator
	Checkpoint *checkpoint.Store
	Backend    storage.Backend
	Clock      clock.Clock
	Logger     *slog.Logger
}

// New creates a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Session == nil || cfg.Resolver == nil || cfg.Rotator == nil {
		return nil, errors.New("batch: session, resolver and rotator are required")
	}
	if cfg.Options.Input == "" {
		return nil, errors.New("batch: input path is required")
	}
	opts := cfg.Options
	if opts.Output == "" {
		opts.Output = sheet.OutputPath(opts.Input)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Checkpoint == nil {
		cfg.Checkpoint = checkpoint.NewStore(checkpoint.DefaultPath(opts.Input), cfg.Logger)
	}

	return &Runner{
		opts:     opts,
		sess:     cfg.Session,
		resolver: cfg.Resolver,
		rotator:  cfg.Rotator,
		store:    cfg.Checkpoint,
		backend:  cfg.Backend,
		pacer:    ratelimit.NewPacer(opts.InterQueryDelay, opts.Jitter, cfg.Clock),
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		stop:     abool.New(),
		runID:    uuid.NewString(),
	}, nil
}

// Stop asks the runner to finish the current domain and exit cleanly.
func (r *Runner) Stop() { r.stop.Set() }

// Stopping reports whether Stop was called.
func (r *Runner) Stopping() bool { return r.stop.IsSet() }

// RunID identifies this run in the audit records.
func (r *Runner) RunID() string { return r.runID }

// Run processes the configured range. A persistent block or an unexpected
// error is returned after progress is saved; an interruption returns a
// Summary with Interrupted set and a nil error. The output workbook is
// written and the session closed on every path.
func (r *Runner) Run(ctx context.Context) (sum Summary, err error) {
	sum = Summary{RunID: r.runID, Output: r.opts.Output}

	domains, err := sheet.ReadDomains(r.opts.Input, r.logger)
	if err != nil {
		r.closeSession()
		return sum, err
	}
	total := len(domains)
	r.logger.Info("read domains", "input", r.opts.Input, "total", total)

	start, end := r.opts.Start, r.opts.End
	if end <= 0 || end > total {
		end = total
	}
	if start < 0 || start > end {
		r.closeSession()
		return sum, fmt.Errorf("batch: start index %d outside [0, %d]", start, end)
	}

	results := map[string][]string{}
	outcomes := map[string]string{}
	if r.opts.Resume {
		p, found, err := r.store.Load()
		if err != nil {
			r.logger.Warn("could not load progress, starting fresh", "err", err)
		} else if found && p.LastIndex > start {
			start = min(p.LastIndex, end)
			results = p.Results
			if p.Outcomes != nil {
				outcomes = p.Outcomes
			}
			r.logger.Info("resuming from saved progress", "start", start, "saved_results", len(results))
		}
	}
	sum.Start, sum.End = start, end
	r.logger.Info("processing domains", "from", start+1, "to", end, "count", end-start, "run_id", r.runID)

	next := start
	var runErr error
	defer func() {
		sum.NextIndex = next
		sum.Results = results
		err = r.finish(&sum, results, outcomes, runErr)
	}()

	for i := start; i < end; i++ {
		next = i
		if r.Stopping() || ctx.Err() != nil {
			sum.Interrupted = true
			return sum, nil
		}

		if r.opts.Rotate && r.rotator.ShouldRotate() {
			if err := r.rotator.RotateSession(ctx, r.sess); err != nil {
				if ctx.Err() != nil {
					sum.Interrupted = true
					return sum, nil
				}
				runErr = err
				return sum, nil
			}
			sum.Rotations++
		}

		domain := domains[i]
		st := r.rotator.State()
		r.logger.Info("querying domain", "position", fmt.Sprintf("%d/%d", i+1, end), "domain", domain,
			"identity_requests", fmt.Sprintf("%d/%d", st.Requests+1, r.rotator.Threshold()))

		res, err := r.resolver.Resolve(ctx, r.sess, domain)
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, rotation.ErrBlocked) {
				sum.Interrupted = true
				return sum, nil
			}
			runErr = err
			return sum, nil
		}

		results[domain] = res.Addresses
		outcomes[domain] = res.Outcome.String()
		sum.Processed++
		switch res.Outcome {
		case query.OutcomeFound:
			sum.Found++
		case query.OutcomeEmpty:
			sum.Empty++
		case query.OutcomeUnresolved:
			sum.Unresolved++
		case query.OutcomeFailed:
			sum.Failed++
		}
		r.record(ctx, i, res)

		next = i + 1
		metrics.BatchPosition.Set(float64(next))

		if r.opts.CheckpointEvery > 0 && next%r.opts.CheckpointEvery == 0 {
			r.logger.Info("progress", "position", fmt.Sprintf("%d/%d", next, end), "percent", next*100/max(end, 1),
				"found", sum.Found, "empty", sum.Empty, "unresolved", sum.Unresolved, "failed", sum.Failed)
			r.checkpoint(next, results, outcomes)
			r.writeOutput(results)
		}

		if err := r.pacer.Wait(ctx); err != nil {
			sum.Interrupted = true
			return sum, nil
		}
	}
	next = end
	return sum, nil
}

// finish persists progress, writes the output and releases the session.
func (r *Runner) finish(sum *Summary, results map[string][]string, outcomes map[string]string, runErr error) error {
	switch {
	case runErr != nil:
		var blocked *rotation.BlockedError
		if errors.As(runErr, &blocked) {
			r.logger.Error("stopped by persistent block, saving progress", "index", sum.NextIndex, "source", blocked.Source)
		} else {
			r.logger.Error("run failed, saving progress", "index", sum.NextIndex, "err", runErr)
		}
	case sum.Interrupted:
		r.logger.Warn("interrupted, saving progress", "index", sum.NextIndex)
	}
	cpErr := r.checkpoint(sum.NextIndex, results, outcomes)

	outErr := r.writeOutput(results)
	r.closeSession()

	r.logger.Info("run complete",
		"found", sum.Found, "empty", sum.Empty, "unresolved", sum.Unresolved, "failed", sum.Failed,
		"rotations", sum.Rotations, "next_index", sum.NextIndex, "output", sum.Output)

	if runErr != nil {
		return runErr
	}
	if outErr != nil {
		return outErr
	}
	return cpErr
}

func (r *Runner) checkpoint(next int, results map[string][]string, outcomes map[string]string) error {
	err := r.store.Save(checkpoint.Progress{
		LastIndex: next,
		Timestamp: checkpoint.At(r.clock.Now()),
		Results:   results,
		Outcomes:  outcomes,
	})
	if err != nil {
		r.logger.Error("saving progress failed", "path", r.store.Path(), "err", err)
		return err
	}
	metrics.CheckpointsTotal.Inc()
	return nil
}

func (r *Runner) writeOutput(results map[string][]string) error {
	if err := sheet.WriteResults(r.opts.Input, r.opts.Output, results); err != nil {
		r.logger.Error("writing output failed", "output", r.opts.Output, "err", err)
		return err
	}
	r.logger.Info("results written", "output", r.opts.Output, "domains", len(results))
	return nil
}

func (r *Runner) record(ctx context.Context, index int, res query.Result) {
	if r.backend == nil {
		return
	}
	rec := &storage.QueryRecord{
		ID:        uuid.NewString(),
		RunID:     r.runID,
		Index:     index,
		Domain:    res.Domain,
		Outcome:   res.Outcome.String(),
		Addresses: res.Addresses,
		Attempts:  res.Attempts,
		Node:      r.rotator.State().Node,
		Duration:  res.Duration,
		CreatedAt: r.clock.Now(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := r.backend.Save(ctx, rec); err != nil {
		r.logger.Warn("recording lookup failed", "domain", res.Domain, "err", err)
	}
}

func (r *Runner) closeSession() {
	if err := r.sess.Close(); err != nil {
		r.logger.Warn("closing browser failed", "err", err)
	}
}
