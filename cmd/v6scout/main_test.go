package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/v6scout/internal/config"
	"github.com/FranksOps/v6scout/internal/storage"
	"github.com/FranksOps/v6scout/internal/storage/jsonbackend"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, err := newRootCmd()
	if err != nil {
		t.Fatalf("newRootCmd failed: %v", err)
	}
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigInit_WritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v6scout.yaml")
	if _, err := execute(t, "config", "init", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}

	v, err := config.NewViper()
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(v, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written defaults do not validate: %v", err)
	}
	if cfg.Proxy.RequestsPerIP != 10 {
		t.Errorf("expected requests_per_ip 10, got %d", cfg.Proxy.RequestsPerIP)
	}

	if _, err := execute(t, "config", "init", path); err == nil {
		t.Error("expected error when the file exists without --force")
	}
	if _, err := execute(t, "config", "init", "--force", path); err != nil {
		t.Errorf("config init --force failed: %v", err)
	}
}

func TestConfigInit_Stdout(t *testing.T) {
	out, err := execute(t, "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, "requests_per_ip: 10") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("query:\n  max_attempts: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "--config", path, "report")
	if err == nil || !strings.Contains(err.Error(), "max_attempts") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRun_RequiresInput(t *testing.T) {
	if _, err := execute(t, "run"); err == nil {
		t.Error("expected error without an input spreadsheet")
	}
}

func TestReport_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.ndjson")
	b, err := jsonbackend.New(path)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	records := []*storage.QueryRecord{
		{ID: "1", RunID: "r", Domain: "a.example", Outcome: "found", Addresses: []string{"2001:db8::1"}, Attempts: 1, Node: "hk-01", CreatedAt: now},
		{ID: "2", RunID: "r", Domain: "b.example", Outcome: "failed", Attempts: 3, CreatedAt: now, Error: "timeout"},
	}
	for _, r := range records {
		if err := b.Save(context.Background(), r); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "report", "--storage", "json", "--storage-dsn", path, "-f", "json")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	var got struct {
		TotalDomains  int
		Found         int
		Failed        int
		FailedDomains []string
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, out)
	}
	if got.TotalDomains != 2 || got.Found != 1 || got.Failed != 1 {
		t.Errorf("unexpected summary %+v", got)
	}
	if len(got.FailedDomains) != 1 || got.FailedDomains[0] != "b.example" {
		t.Errorf("expected b.example failed, got %v", got.FailedDomains)
	}

	out, err = execute(t, "report", "--storage", "json", "--storage-dsn", path, "--outcome", "found")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if !strings.Contains(out, "v6scout Lookup Summary") {
		t.Errorf("expected text report, got:\n%s", out)
	}
}

func TestReport_RequiresBackend(t *testing.T) {
	if _, err := execute(t, "report"); err == nil {
		t.Error("expected error without a query log")
	}
}

func TestReport_BadOutcome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.ndjson")
	if _, err := execute(t, "report", "--storage", "json", "--storage-dsn", path, "--outcome", "maybe"); err == nil {
		t.Error("expected error for unknown outcome")
	}
}
