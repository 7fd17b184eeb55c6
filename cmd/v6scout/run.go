package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/v6scout/internal/batch"
	"github.com/FranksOps/v6scout/internal/browser"
	"github.com/FranksOps/v6scout/internal/checkpoint"
	"github.com/FranksOps/v6scout/internal/clock"
	"github.com/FranksOps/v6scout/internal/config"
	"github.com/FranksOps/v6scout/internal/detect"
	"github.com/FranksOps/v6scout/internal/fingerprint"
	"github.com/FranksOps/v6scout/internal/metrics"
	"github.com/FranksOps/v6scout/internal/query"
	"github.com/FranksOps/v6scout/internal/report"
	"github.com/FranksOps/v6scout/internal/rotation"
	"github.com/FranksOps/v6scout/internal/storage"
	"github.com/FranksOps/v6scout/pkg/proxy"
)

func newRunCmd(a *app) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "run [input.xlsx]",
		Short: "Look up every domain of a spreadsheet and write the results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if len(args) == 1 {
				cfg.Input = args[0]
			}
			if cfg.Input == "" {
				return errors.New("an input spreadsheet is required")
			}
			return a.runBatch(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("input", "", "input spreadsheet (.xlsx), domains in column A from row 2")
	f.String("output", "", "output spreadsheet (default <input>_with_ipv6.xlsx)")
	f.String("checkpoint", "", "checkpoint file (default <input>_progress.json)")
	f.Int("start", 0, "first 0-based domain index")
	f.Int("end", 0, "stop before this index (0 = end of input)")
	f.Bool("resume", true, "resume from the checkpoint when present")
	f.Int("checkpoint-every", 10, "save progress every N domains")
	f.Duration("delay", 3*time.Second, "delay between queries")
	f.Bool("proxy", true, "route the browser through the local proxy and rotate nodes")
	f.Int("requests-per-ip", 10, "rotate the proxy node after this many queries (0 = never)")
	f.Bool("headless", true, "run the browser headless")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")

	err := bindFlags(a.v, f.Lookup, map[string]string{
		"input":                 "input",
		"output":                "output",
		"checkpoint":            "checkpoint",
		"start":                 "start",
		"end":                   "end",
		"resume":                "resume",
		"checkpoint_every":      "checkpoint-every",
		"inter_query_delay":     "delay",
		"proxy.enabled":         "proxy",
		"proxy.requests_per_ip": "requests-per-ip",
		"browser.headless":      "headless",
		"metrics.addr":          "metrics-addr",
	})
	return cmd, err
}

func (a *app) runBatch(ctx context.Context, cfg config.Config, out io.Writer) error {
	logger := a.logger
	clk := clock.Real()

	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	var srv *metrics.Server
	if cfg.Metrics.Addr != "" {
		if srv, err = metrics.Start(cfg.Metrics.Addr, logger); err != nil {
			_ = closeBackend(backend)
			return fmt.Errorf("start metrics server: %w", err)
		}
	}
	defer func() {
		var result *multierror.Error
		if srv != nil {
			result = multierror.Append(result, srv.Stop(context.Background()))
		}
		result = multierror.Append(result, closeBackend(backend))
		if cerr := result.ErrorOrNil(); cerr != nil {
			logger.Warn("shutdown", "err", cerr)
		}
	}()

	rotator, err := newRotator(cfg.Proxy, clk, logger)
	if err != nil {
		return err
	}
	detector := detect.New(detect.Config{
		PollInterval: cfg.Detect.PollInterval,
		Ceiling:      cfg.Detect.Ceiling,
		StableTicks:  cfg.Detect.StableTicks,
		EmptyTicks:   cfg.Detect.EmptyTicks,
		SettleDelay:  cfg.Detect.SettleDelay,
	}, clk, logger)
	driver := query.New(query.Config{
		MaxAttempts:  cfg.Query.MaxAttempts,
		RetryBackoff: cfg.Query.RetryBackoff,
	}, detector, rotator, clk, logger)

	cpPath := cfg.Checkpoint
	if cpPath == "" {
		cpPath = checkpoint.DefaultPath(cfg.Input)
	}

	chrome := browser.NewChrome(browser.ChromeConfig{
		BaseURL:       cfg.Browser.BaseURL,
		Headless:      cfg.Browser.Headless,
		ExecPath:      cfg.Browser.ExecPath,
		UseProxy:      cfg.Proxy.Enabled,
		ProxyHost:     cfg.Proxy.Host,
		ProxyPort:     cfg.Proxy.Port,
		NavTimeout:    cfg.Browser.NavTimeout,
		ActionTimeout: cfg.Browser.ActionTimeout,
		Selectors:     cfg.Browser.Selectors,
	}, fingerprint.NewGenerator(fingerprint.IdentityConfig{
		UserAgents: cfg.Browser.UserAgents,
		Viewports:  cfg.Browser.Viewports,
		Locales:    cfg.Browser.Locales,
		Timezones:  cfg.Browser.Timezones,
	}), clk, logger)

	runner, err := batch.New(batch.Config{
		Options: batch.Options{
			Input:           cfg.Input,
			Output:          cfg.Output,
			Start:           cfg.Start,
			End:             cfg.End,
			Resume:          cfg.Resume,
			CheckpointEvery: cfg.CheckpointEvery,
			InterQueryDelay: cfg.InterQueryDelay,
			Jitter:          cfg.Jitter,
			Rotate:          cfg.Proxy.Enabled,
		},
		Session:    chrome,
		Resolver:   driver,
		Rotator:    rotator,
		Checkpoint: checkpoint.NewStore(cpPath, logger),
		Backend:    backend,
		Clock:      clk,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if err := chrome.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	done := make(chan struct{})
	var sum batch.Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		var runErr error
		sum, runErr = runner.Run(gctx)
		return runErr
	})
	g.Go(func() error {
		select {
		case <-sigs:
			logger.Warn("interrupt received, finishing the current domain; interrupt again to abort")
			runner.Stop()
		case <-done:
			return nil
		}
		select {
		case <-sigs:
			logger.Warn("second interrupt, aborting")
			cancel()
		case <-done:
		}
		return nil
	})
	runErr := g.Wait()

	printSummary(ctx, out, sum, backend, logger)
	return runErr
}

// newRotator wires the node controller, health pool and optional egress
// verification into a rotation.Controller.
func newRotator(pc config.ProxyConfig, clk clock.Clock, logger *slog.Logger) (*rotation.Controller, error) {
	pool := proxy.NewPool(proxy.Config{MaxFailures: pc.MaxFailures, Cooldown: pc.Cooldown})
	opts := []rotation.Option{rotation.WithPool(pool)}

	var nodes rotation.NodeController
	if pc.Enabled && pc.ControllerURL != "" {
		ctrl, err := proxy.NewController(proxy.ControllerConfig{
			URL:     pc.ControllerURL,
			Secret:  pc.Secret,
			Exclude: pc.Exclude,
		})
		if err != nil {
			return nil, err
		}
		nodes = ctrl
	}

	if pc.Enabled && pc.EgressCheckURL != "" {
		egress, err := newEgressChecker(pc)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rotation.WithEgressProber(egress))
	}

	return rotation.New(rotation.Config{
		Enabled:          pc.Enabled,
		RequestsPerIP:    pc.RequestsPerIP,
		Group:            pc.Group,
		SettleDelay:      pc.SettleDelay,
		EscalationSettle: pc.EscalationSettle,
		RestartDelay:     pc.RestartDelay,
	}, nodes, clk, logger, opts...), nil
}

// newEgressChecker builds an egress prober that leaves through the local
// proxy with a browser TLS fingerprint.
func newEgressChecker(pc config.ProxyConfig) (*proxy.EgressChecker, error) {
	transport, err := fingerprint.Transport(fingerprint.TransportConfig{
		Profile: fingerprint.Profile(pc.TLSProfile),
		Proxy:   &url.URL{Scheme: "http", Host: net.JoinHostPort(pc.Host, strconv.Itoa(pc.Port))},
	})
	if err != nil {
		return nil, err
	}
	return proxy.NewEgressChecker(proxy.EgressConfig{URL: pc.EgressCheckURL, Transport: transport})
}

// printSummary writes the run totals, plus the stored report for this run
// when a query log is configured.
func printSummary(ctx context.Context, w io.Writer, sum batch.Summary, backend storage.Backend, logger *slog.Logger) {
	fmt.Fprintf(w, "processed %d domains [%d, %d), next index %d: found=%d empty=%d unresolved=%d failed=%d rotations=%d\n",
		sum.Processed, sum.Start, sum.End, sum.NextIndex, sum.Found, sum.Empty, sum.Unresolved, sum.Failed, sum.Rotations)
	if sum.Output != "" {
		fmt.Fprintf(w, "output: %s\n", sum.Output)
	}
	if backend == nil || sum.RunID == "" {
		return
	}
	records, err := backend.Query(context.WithoutCancel(ctx), storage.Filter{RunID: sum.RunID})
	if err != nil {
		logger.Warn("load run records", "err", err)
		return
	}
	if len(records) == 0 {
		return
	}
	if err := report.WriteText(w, report.GenerateSummary(records)); err != nil {
		logger.Warn("write report", "err", err)
	}
}
