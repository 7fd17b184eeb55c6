package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
)

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	v, err := NewViper()
	if err != nil {
		t.Fatalf("NewViper failed: %v", err)
	}
	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Detect.PollInterval != 3*time.Second || cfg.Detect.Ceiling != 120*time.Second {
		t.Errorf("unexpected detect defaults %+v", cfg.Detect)
	}
	if cfg.Proxy.RequestsPerIP != 10 || cfg.Proxy.Port != 7890 {
		t.Errorf("unexpected proxy defaults %+v", cfg.Proxy)
	}
	if cfg.Browser.Selectors.QueryInput == "" {
		t.Error("expected default selectors to survive the round trip")
	}
	if len(cfg.Proxy.Exclude) != 6 {
		t.Errorf("expected default exclude patterns, got %v", cfg.Proxy.Exclude)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v6scout.yaml")
	content := `
input: /data/domains.xlsx
proxy:
  requests_per_ip: 20
  secret: from-file
detect:
  ceiling: 90s
browser:
  viewports:
    - width: 1280
      height: 720
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("V6SCOUT_PROXY_SECRET", "from-env")

	v, err := NewViper()
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Input != "/data/domains.xlsx" {
		t.Errorf("expected input from file, got %q", cfg.Input)
	}
	if cfg.Proxy.RequestsPerIP != 20 {
		t.Errorf("expected requests_per_ip 20, got %d", cfg.Proxy.RequestsPerIP)
	}
	if cfg.Proxy.Secret != "from-env" {
		t.Errorf("expected env to override file, got %q", cfg.Proxy.Secret)
	}
	if cfg.Detect.Ceiling != 90*time.Second {
		t.Errorf("expected ceiling 90s, got %v", cfg.Detect.Ceiling)
	}
	if cfg.Detect.PollInterval != 3*time.Second {
		t.Errorf("expected untouched default poll interval, got %v", cfg.Detect.PollInterval)
	}
	if len(cfg.Browser.Viewports) != 1 || cfg.Browser.Viewports[0].Width != 1280 {
		t.Errorf("unexpected viewports %+v", cfg.Browser.Viewports)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	v, err := NewViper()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Load(v, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Jitter = 2
	cfg.Log.Format = "xml"
	cfg.Query.MaxAttempts = 0
	cfg.Storage.Driver = "sqlite"

	err := cfg.Validate()
	merr, ok := err.(*multierror.Error)
	if !ok {
		t.Fatalf("expected *multierror.Error, got %T: %v", err, err)
	}
	if len(merr.Errors) != 4 {
		t.Errorf("expected 4 errors, got %d: %v", len(merr.Errors), merr)
	}
	if !strings.Contains(err.Error(), "storage.dsn is required") {
		t.Errorf("expected storage dsn error, got %v", err)
	}
}

func TestValidate_ProxyPortOnlyWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.Proxy.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected port error with proxy enabled")
	}
	cfg.Proxy.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("port should not matter with proxy disabled, got %v", err)
	}
}

func TestWriteDefault(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDefault(&buf); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"requests_per_ip: 10", "poll_interval: 3s", "driver: none"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in default config:\n%s", want, out)
		}
	}
}
