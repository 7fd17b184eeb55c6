package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/FranksOps/v6scout/internal/clock"
	"github.com/FranksOps/v6scout/internal/fingerprint"
	"github.com/FranksOps/v6scout/pkg/proxy"
)

// Selectors locate the lookup page controls. Each is passed to chromedp with
// BySearch, so CSS selectors and XPath expressions both work.
type Selectors struct {
	RecordTypeDropdown string `mapstructure:"record_type_dropdown" yaml:"record_type_dropdown"`
	RecordTypeOption   string `mapstructure:"record_type_option" yaml:"record_type_option"`
	QueryInput         string `mapstructure:"query_input" yaml:"query_input"`
	SubmitButton       string `mapstructure:"submit_button" yaml:"submit_button"`
}

// DefaultSelectors match the antping.com DNS lookup page.
func DefaultSelectors() Selectors {
	return Selectors{
		RecordTypeDropdown: `(//div[normalize-space(.)="A"])[2]`,
		RecordTypeOption:   `//*[@title="AAAA"]`,
		QueryInput:         `//input[@placeholder="例：cn.bing.com"]`,
		SubmitButton:       `//button[contains(normalize-space(.), "开始测试")]`,
	}
}

// ChromeConfig configures the chromedp-backed session.
type ChromeConfig struct {
	BaseURL  string
	Headless bool
	// ExecPath overrides the browser binary. CHROME_PATH is used when empty.
	ExecPath string
	// ProxyHost and ProxyPort route the browser through a local proxy when
	// UseProxy is set and the endpoint accepts connections.
	UseProxy  bool
	ProxyHost string
	ProxyPort int

	NavTimeout    time.Duration
	ActionTimeout time.Duration
	// InitSettle is waited after navigation, ClickSettle after each dropdown
	// click and InputSettle between typing and submitting.
	InitSettle  time.Duration
	ClickSettle time.Duration
	InputSettle time.Duration

	Selectors Selectors
}

func (c ChromeConfig) withDefaults() ChromeConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://antping.com/dns"
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 30 * time.Second
	}
	if c.InitSettle <= 0 {
		c.InitSettle = 3 * time.Second
	}
	if c.ClickSettle <= 0 {
		c.ClickSettle = 500 * time.Millisecond
	}
	if c.InputSettle <= 0 {
		c.InputSettle = 300 * time.Millisecond
	}
	d := DefaultSelectors()
	if c.Selectors.RecordTypeDropdown == "" {
		c.Selectors.RecordTypeDropdown = d.RecordTypeDropdown
	}
	if c.Selectors.RecordTypeOption == "" {
		c.Selectors.RecordTypeOption = d.RecordTypeOption
	}
	if c.Selectors.QueryInput == "" {
		c.Selectors.QueryInput = d.QueryInput
	}
	if c.Selectors.SubmitButton == "" {
		c.Selectors.SubmitButton = d.SubmitButton
	}
	return c
}

// ProxyAddr is the host:port of the configured proxy.
func (c ChromeConfig) ProxyAddr() string {
	return net.JoinHostPort(c.ProxyHost, strconv.Itoa(c.ProxyPort))
}

// IdentitySource hands out browser identities.
type IdentitySource interface {
	Next() fingerprint.Identity
}

// runActions is chromedp.Run, replaceable in tests.
var runActions = chromedp.Run

// Chrome is a Session driving a single Chrome tab through chromedp.
type Chrome struct {
	cfg        ChromeConfig
	identities IdentitySource
	clock      clock.Clock
	logger     *slog.Logger

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	initialized bool
}

var _ Session = (*Chrome)(nil)

// NewChrome creates a session. Start must be called before use.
func NewChrome(cfg ChromeConfig, identities IdentitySource, clk clock.Clock, logger *slog.Logger) *Chrome {
	if identities == nil {
		identities = fingerprint.NewGenerator(fingerprint.IdentityConfig{})
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chrome{
		cfg:        cfg.withDefaults(),
		identities: identities,
		clock:      clk,
		logger:     logger,
	}
}

func allocatorOptions(cfg ChromeConfig, id fingerprint.Identity, proxyServer string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("incognito", true),
		chromedp.Flag("lang", id.Locale),
		chromedp.UserAgent(id.UserAgent),
		chromedp.WindowSize(int(id.Viewport.Width), int(id.Viewport.Height)),
	)
	if proxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(proxyServer))
	}

	execPath := cfg.ExecPath
	if execPath == "" {
		execPath = os.Getenv("CHROME_PATH")
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	return opts
}

// Start launches the browser with a new identity.
func (c *Chrome) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := c.identities.Next()

	proxyServer := ""
	if c.cfg.UseProxy {
		if proxy.Reachable(ctx, c.cfg.ProxyAddr(), time.Second) {
			proxyServer = "http://" + c.cfg.ProxyAddr()
			c.logger.Info("using proxy", "proxy", proxyServer)
		} else {
			c.logger.Warn("proxy not reachable, launching without it", "proxy", c.cfg.ProxyAddr())
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(c.cfg, id, proxyServer)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	c.allocCancel = allocCancel
	c.tabCtx = tabCtx
	c.tabCancel = tabCancel
	c.initialized = false

	// The first Run on a tab launches the browser and ties the process to
	// the context it receives, so it gets the tab context itself.
	stop := context.AfterFunc(ctx, tabCancel)
	err := runActions(tabCtx)
	stop()
	if err != nil {
		_ = c.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("browser: launch: %w", err)
	}

	err = c.run(ctx, c.cfg.NavTimeout,
		emulation.SetTimezoneOverride(id.Timezone),
		emulation.SetLocaleOverride().WithLocale(id.Locale),
		chromedp.EmulateViewport(id.Viewport.Width, id.Viewport.Height),
	)
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("browser: start: %w", err)
	}

	ua := id.UserAgent
	if len(ua) > 50 {
		ua = ua[:50]
	}
	c.logger.Info("browser started", "ua", ua, "viewport", fmt.Sprintf("%dx%d", id.Viewport.Width, id.Viewport.Height),
		"locale", id.Locale, "timezone", id.Timezone, "proxied", proxyServer != "")
	return nil
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if c.tabCtx == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(c.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := runActions(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Chrome) Initialized() bool { return c.initialized }

func (c *Chrome) Invalidate() { c.initialized = false }

func (c *Chrome) Init(ctx context.Context) error {
	c.logger.Info("initializing lookup page", "url", c.cfg.BaseURL)
	c.initialized = false

	if err := c.run(ctx, c.cfg.NavTimeout, chromedp.Navigate(c.cfg.BaseURL)); err != nil {
		return fmt.Errorf("browser: navigate: %w", err)
	}
	if err := c.clock.Sleep(ctx, c.cfg.InitSettle); err != nil {
		return err
	}

	sel := c.cfg.Selectors
	if err := c.run(ctx, c.cfg.ActionTimeout, chromedp.Click(sel.RecordTypeDropdown, chromedp.BySearch)); err != nil {
		return fmt.Errorf("browser: open record type dropdown: %w", err)
	}
	if err := c.clock.Sleep(ctx, c.cfg.ClickSettle); err != nil {
		return err
	}
	if err := c.run(ctx, c.cfg.ActionTimeout, chromedp.Click(sel.RecordTypeOption, chromedp.BySearch)); err != nil {
		return fmt.Errorf("browser: select record type: %w", err)
	}
	if err := c.clock.Sleep(ctx, c.cfg.ClickSettle); err != nil {
		return err
	}

	c.initialized = true
	c.logger.Info("lookup page ready", "record_type", "AAAA")
	return nil
}

// selectActive selects the text of the focused input so typing replaces it.
const selectActive = `(function() {
	const el = document.activeElement;
	if (el && typeof el.select === "function") { el.select(); }
	return true;
})()`

func (c *Chrome) Submit(ctx context.Context, domain string) error {
	sel := c.cfg.Selectors
	var ok bool
	err := c.run(ctx, c.cfg.ActionTimeout,
		chromedp.Click(sel.QueryInput, chromedp.BySearch),
		chromedp.Evaluate(selectActive, &ok),
		chromedp.SendKeys(sel.QueryInput, domain, chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("browser: fill query input: %w", err)
	}
	if err := c.clock.Sleep(ctx, c.cfg.InputSettle); err != nil {
		return err
	}
	if err := c.run(ctx, c.cfg.ActionTimeout, chromedp.Click(sel.SubmitButton, chromedp.BySearch)); err != nil {
		return fmt.Errorf("browser: submit: %w", err)
	}
	c.logger.Debug("lookup submitted", "domain", domain)
	return nil
}

func (c *Chrome) Content(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, c.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("browser: read content: %w", err)
	}
	return html, nil
}

func (c *Chrome) Reset(ctx context.Context) error {
	if err := c.Close(); err != nil {
		c.logger.Warn("closing browser before restart failed", "err", err)
	}
	return c.Start(ctx)
}

func (c *Chrome) Close() error {
	if c.tabCtx == nil {
		return nil
	}
	err := chromedp.Cancel(c.tabCtx)
	c.tabCancel()
	c.allocCancel()
	c.tabCtx, c.tabCancel, c.allocCancel = nil, nil, nil
	c.initialized = false
	if err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}
