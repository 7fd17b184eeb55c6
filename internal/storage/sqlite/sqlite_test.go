package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/v6scout/internal/storage"
)

func TestSQLiteBackend(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "v6scout.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := &storage.QueryRecord{
		ID:        "rec-1",
		RunID:     "run-1",
		Index:     7,
		Domain:    "www.example.cn",
		Outcome:   "found",
		Addresses: []string{"240e:6b0:ab0:11:1::1086", "2408:8756:c52:1aec:0:ff:b013:5a11"},
		Attempts:  2,
		Node:      "jp-01",
		Duration:  12500 * time.Millisecond,
		CreatedAt: now.Add(-time.Minute),
	}
	empty := &storage.QueryRecord{
		ID:        "rec-2",
		RunID:     "run-1",
		Index:     8,
		Domain:    "v4only.example",
		Outcome:   "empty",
		Addresses: []string{},
		Attempts:  1,
		Duration:  9 * time.Second,
		CreatedAt: now,
	}
	failed := &storage.QueryRecord{
		ID:        "rec-3",
		RunID:     "run-2",
		Index:     9,
		Domain:    "down.example",
		Outcome:   "failed",
		Attempts:  3,
		Duration:  30 * time.Second,
		CreatedAt: now.Add(time.Minute),
		Error:     "query: initialize page: navigation timeout",
	}
	for _, r := range []*storage.QueryRecord{rec, empty, failed} {
		if err := b.Save(ctx, r); err != nil {
			t.Fatalf("Failed to save record %s: %v", r.ID, err)
		}
	}

	results, err := b.Query(ctx, storage.Filter{Domain: "www.example.cn"})
	if err != nil {
		t.Fatalf("Failed to query records: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(results))
	}

	got := results[0]
	if got.ID != rec.ID || got.RunID != rec.RunID || got.Index != rec.Index {
		t.Errorf("Expected identity %s/%s/%d, got %s/%s/%d", rec.ID, rec.RunID, rec.Index, got.ID, got.RunID, got.Index)
	}
	if got.Outcome != rec.Outcome {
		t.Errorf("Expected Outcome %s, got %s", rec.Outcome, got.Outcome)
	}
	if len(got.Addresses) != 2 || got.Addresses[0] != rec.Addresses[0] || got.Addresses[1] != rec.Addresses[1] {
		t.Errorf("Expected Addresses %v, got %v", rec.Addresses, got.Addresses)
	}
	if got.Attempts != rec.Attempts {
		t.Errorf("Expected Attempts %d, got %d", rec.Attempts, got.Attempts)
	}
	if got.Node != rec.Node {
		t.Errorf("Expected Node %s, got %s", rec.Node, got.Node)
	}
	if got.Duration.Milliseconds() != rec.Duration.Milliseconds() {
		t.Errorf("Expected Duration %v, got %v", rec.Duration, got.Duration)
	}
	if got.CreatedAt.Unix() != rec.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", rec.CreatedAt, got.CreatedAt)
	}

	// Empty address lists come back empty, not nil-vs-missing
	emptyResults, err := b.Query(ctx, storage.Filter{Outcome: "empty"})
	if err != nil {
		t.Fatalf("Failed to query by outcome: %v", err)
	}
	if len(emptyResults) != 1 || len(emptyResults[0].Addresses) != 0 {
		t.Fatalf("Expected 1 empty record without addresses, got %+v", emptyResults)
	}

	failedResults, err := b.Query(ctx, storage.Filter{RunID: "run-2"})
	if err != nil {
		t.Fatalf("Failed to query by run: %v", err)
	}
	if len(failedResults) != 1 || failedResults[0].Error != failed.Error {
		t.Fatalf("Expected failed record with error text, got %+v", failedResults)
	}

	// Test Since filter
	since := now.Add(-time.Second)
	recent, err := b.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatalf("Failed to query with Since: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recent))
	}

	// Newest first, then paging
	page, err := b.Query(ctx, storage.Filter{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "rec-2" {
		t.Fatalf("Expected rec-2 on second page, got %+v", page)
	}
}
