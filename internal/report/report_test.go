package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/v6scout/internal/storage"
)

func TestGenerateSummary(t *testing.T) {
	now := time.Now()

	records := []*storage.QueryRecord{
		{
			Domain:    "a.example",
			Outcome:   "found",
			Addresses: []string{"240e::1", "240e::2"},
			Attempts:  1,
			Node:      "jp-01",
			Duration:  10 * time.Second,
			CreatedAt: now,
		},
		{
			Domain:    "b.example",
			Outcome:   "empty",
			Attempts:  2,
			Node:      "jp-01",
			Duration:  20 * time.Second,
			CreatedAt: now.Add(1 * time.Second),
		},
		{
			Domain:    "c.example",
			Outcome:   "failed",
			Attempts:  3,
			Duration:  30 * time.Second,
			CreatedAt: now.Add(2 * time.Second),
			Error:     "timeout",
		},
		{
			Domain:    "d.example",
			Outcome:   "unresolved",
			Attempts:  1,
			Node:      "sg-01",
			Duration:  120 * time.Second,
			CreatedAt: now.Add(500 * time.Millisecond),
		},
	}

	summary := GenerateSummary(records)

	if summary.TotalDomains != 4 {
		t.Errorf("expected 4 domains, got %d", summary.TotalDomains)
	}
	if summary.Found != 1 || summary.Empty != 1 || summary.Unresolved != 1 || summary.Failed != 1 {
		t.Errorf("unexpected outcome counts %+v", summary)
	}
	if summary.TotalAddresses != 2 {
		t.Errorf("expected 2 addresses, got %d", summary.TotalAddresses)
	}
	if summary.Retried != 2 {
		t.Errorf("expected 2 retried lookups, got %d", summary.Retried)
	}
	if summary.ByNode["jp-01"] != 2 || summary.ByNode["sg-01"] != 1 {
		t.Errorf("unexpected node counts %v", summary.ByNode)
	}
	if summary.AvgQuery != 45*time.Second {
		t.Errorf("expected 45s average, got %v", summary.AvgQuery)
	}
	if summary.Duration != 2*time.Second {
		t.Errorf("expected 2s duration, got %v", summary.Duration)
	}
	if len(summary.FailedDomains) != 1 || summary.FailedDomains[0] != "c.example" {
		t.Errorf("unexpected failed domains %v", summary.FailedDomains)
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	summary := GenerateSummary(nil)
	if summary.TotalDomains != 0 || summary.AvgQuery != 0 {
		t.Errorf("expected zero summary, got %+v", summary)
	}
}

func TestWriteJSON(t *testing.T) {
	summary := Summary{
		TotalDomains: 5,
	}
	var buf bytes.Buffer
	err := WriteJSON(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), `"TotalDomains": 5`) {
		t.Errorf("expected JSON to contain TotalDomains: 5")
	}
}

func TestWriteText(t *testing.T) {
	summary := Summary{
		TotalDomains:   5,
		Found:          4,
		TotalAddresses: 9,
		Failed:         1,
		ByNode:         map[string]int{"jp-01": 5},
		FailedDomains:  []string{"down.example"},
	}
	var buf bytes.Buffer
	err := WriteText(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Found:         4 (9 addresses)") {
		t.Errorf("expected text to contain found count, got:\n%s", out)
	}
	if !strings.Contains(out, "jp-01: 5") {
		t.Errorf("expected text to contain jp-01: 5")
	}
	if !strings.Contains(out, "down.example") {
		t.Errorf("expected text to list failed domain")
	}
}

func TestWriteHTML(t *testing.T) {
	summary := Summary{
		TotalDomains:  10,
		Failed:        2,
		FailedDomains: []string{"<script>.example"},
	}
	var buf bytes.Buffer
	err := WriteHTML(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>v6scout Lookup Report</title>") {
		t.Errorf("expected HTML title")
	}
	if strings.Contains(out, "<li><script>") {
		t.Errorf("expected domain names to be escaped")
	}
}
