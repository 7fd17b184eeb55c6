// Package config holds the v6scout run configuration: defaults, decoding
// from viper (file, environment, flags) and validation.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/FranksOps/v6scout/internal/browser"
	"github.com/FranksOps/v6scout/internal/fingerprint"
	"github.com/FranksOps/v6scout/pkg/proxy"
)

// EnvPrefix prefixes environment overrides, e.g. V6SCOUT_PROXY_SECRET.
const EnvPrefix = "V6SCOUT"

// Config is the complete run configuration.
type Config struct {
	Input           string        `mapstructure:"input" yaml:"input"`
	Output          string        `mapstructure:"output" yaml:"output"`
	Checkpoint      string        `mapstructure:"checkpoint" yaml:"checkpoint"`
	Start           int           `mapstructure:"start" yaml:"start"`
	End             int           `mapstructure:"end" yaml:"end"`
	Resume          bool          `mapstructure:"resume" yaml:"resume"`
	CheckpointEvery int           `mapstructure:"checkpoint_every" yaml:"checkpoint_every"`
	InterQueryDelay time.Duration `mapstructure:"inter_query_delay" yaml:"inter_query_delay"`
	Jitter          float64       `mapstructure:"jitter" yaml:"jitter"`

	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Proxy   ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	Detect  DetectConfig  `mapstructure:"detect" yaml:"detect"`
	Query   QueryConfig   `mapstructure:"query" yaml:"query"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

type BrowserConfig struct {
	BaseURL       string                 `mapstructure:"base_url" yaml:"base_url"`
	Headless      bool                   `mapstructure:"headless" yaml:"headless"`
	ExecPath      string                 `mapstructure:"exec_path" yaml:"exec_path"`
	NavTimeout    time.Duration          `mapstructure:"nav_timeout" yaml:"nav_timeout"`
	ActionTimeout time.Duration          `mapstructure:"action_timeout" yaml:"action_timeout"`
	Selectors     browser.Selectors      `mapstructure:"selectors" yaml:"selectors"`
	UserAgents    []string               `mapstructure:"user_agents" yaml:"user_agents"`
	Viewports     []fingerprint.Viewport `mapstructure:"viewports" yaml:"viewports"`
	Locales       []string               `mapstructure:"locales" yaml:"locales"`
	Timezones     []string               `mapstructure:"timezones" yaml:"timezones"`
}

type ProxyConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	Host             string        `mapstructure:"host" yaml:"host"`
	Port             int           `mapstructure:"port" yaml:"port"`
	RequestsPerIP    int           `mapstructure:"requests_per_ip" yaml:"requests_per_ip"`
	ControllerURL    string        `mapstructure:"controller_url" yaml:"controller_url"`
	Secret           string        `mapstructure:"secret" yaml:"secret"`
	Group            string        `mapstructure:"group" yaml:"group"`
	Exclude          []string      `mapstructure:"exclude" yaml:"exclude"`
	SettleDelay      time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	EscalationSettle time.Duration `mapstructure:"escalation_settle" yaml:"escalation_settle"`
	RestartDelay     time.Duration `mapstructure:"restart_delay" yaml:"restart_delay"`
	MaxFailures      int           `mapstructure:"max_failures" yaml:"max_failures"`
	Cooldown         time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	// EgressCheckURL enables egress address verification after each switch.
	EgressCheckURL string `mapstructure:"egress_check_url" yaml:"egress_check_url"`
	// TLSProfile is the client fingerprint used for the egress check.
	TLSProfile string `mapstructure:"tls_profile" yaml:"tls_profile"`
}

type DetectConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Ceiling      time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
	StableTicks  int           `mapstructure:"stable_ticks" yaml:"stable_ticks"`
	EmptyTicks   int           `mapstructure:"empty_ticks" yaml:"empty_ticks"`
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

type QueryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // none, json, csv, sqlite, postgres
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type MetricsConfig struct {
	// Addr enables the Prometheus endpoint when non-empty, e.g. ":9464".
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Resume:          true,
		CheckpointEvery: 10,
		InterQueryDelay: 3 * time.Second,
		Log:             LogConfig{Level: "info", Format: "text"},
		Browser: BrowserConfig{
			BaseURL:       "https://antping.com/dns",
			Headless:      true,
			NavTimeout:    60 * time.Second,
			ActionTimeout: 30 * time.Second,
			Selectors:     browser.DefaultSelectors(),
		},
		Proxy: ProxyConfig{
			Enabled:          true,
			Host:             "127.0.0.1",
			Port:             7890,
			RequestsPerIP:    10,
			ControllerURL:    "http://127.0.0.1:9090",
			Group:            "🔰 节点选择",
			Exclude:          proxy.DefaultExcludePatterns,
			SettleDelay:      2 * time.Second,
			EscalationSettle: 3 * time.Second,
			RestartDelay:     3 * time.Second,
			MaxFailures:      1,
			Cooldown:         30 * time.Minute,
			TLSProfile:       string(fingerprint.ProfileChrome),
		},
		Detect: DetectConfig{
			PollInterval: 3 * time.Second,
			Ceiling:      120 * time.Second,
			StableTicks:  2,
			EmptyTicks:   3,
			SettleDelay:  2 * time.Second,
		},
		Query:   QueryConfig{MaxAttempts: 3, RetryBackoff: 3 * time.Second},
		Storage: StorageConfig{Driver: "none"},
	}
}

// WriteDefault writes the default configuration as YAML.
func WriteDefault(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Default()); err != nil {
		return fmt.Errorf("config: encode defaults: %w", err)
	}
	return enc.Close()
}

// NewViper returns a viper instance seeded with every default key so that
// environment variables can override keys absent from the config file.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var buf bytes.Buffer
	if err := WriteDefault(&buf); err != nil {
		return nil, err
	}
	if err := v.ReadConfig(&buf); err != nil {
		return nil, fmt.Errorf("config: seed defaults: %w", err)
	}
	return v, nil
}

// Load merges the optional config file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs *multierror.Error
	add := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	if c.Start < 0 {
		add("start must be >= 0, got %d", c.Start)
	}
	if c.End < 0 {
		add("end must be >= 0, got %d", c.End)
	}
	if c.End > 0 && c.Start > c.End {
		add("start %d is beyond end %d", c.Start, c.End)
	}
	if c.CheckpointEvery < 0 {
		add("checkpoint_every must be >= 0, got %d", c.CheckpointEvery)
	}
	if c.InterQueryDelay < 0 {
		add("inter_query_delay must be >= 0, got %s", c.InterQueryDelay)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		add("jitter must be within [0, 1], got %g", c.Jitter)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		add("log.level: %v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	if _, err := url.ParseRequestURI(c.Browser.BaseURL); err != nil {
		add("browser.base_url: %v", err)
	}

	if c.Proxy.Enabled {
		if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
			add("proxy.port must be within 1-65535, got %d", c.Proxy.Port)
		}
		if c.Proxy.Host == "" {
			add("proxy.host is required when the proxy is enabled")
		}
	}
	if c.Proxy.RequestsPerIP < 0 {
		add("proxy.requests_per_ip must be >= 0, got %d", c.Proxy.RequestsPerIP)
	}
	if c.Proxy.ControllerURL != "" {
		if _, err := url.ParseRequestURI(c.Proxy.ControllerURL); err != nil {
			add("proxy.controller_url: %v", err)
		}
	}
	switch fingerprint.Profile(c.Proxy.TLSProfile) {
	case fingerprint.ProfileChrome, fingerprint.ProfileFirefox, fingerprint.ProfileSafari,
		fingerprint.ProfileGo, fingerprint.ProfileRandom, "":
	default:
		add("proxy.tls_profile %q is not a known profile", c.Proxy.TLSProfile)
	}

	if c.Detect.PollInterval <= 0 {
		add("detect.poll_interval must be > 0, got %s", c.Detect.PollInterval)
	}
	if c.Detect.Ceiling < c.Detect.PollInterval {
		add("detect.ceiling %s is shorter than the poll interval", c.Detect.Ceiling)
	}
	if c.Detect.StableTicks < 1 || c.Detect.EmptyTicks < 1 {
		add("detect.stable_ticks and detect.empty_ticks must be >= 1")
	}
	if c.Query.MaxAttempts < 1 {
		add("query.max_attempts must be >= 1, got %d", c.Query.MaxAttempts)
	}

	switch c.Storage.Driver {
	case "", "none":
	case "json", "csv", "sqlite", "postgres":
		if c.Storage.DSN == "" {
			add("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		add("storage.driver must be one of none, json, csv, sqlite, postgres, got %q", c.Storage.Driver)
	}

	return errs.ErrorOrNil()
}
