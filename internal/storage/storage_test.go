package storage

import (
	"context"
	"testing"
	"time"
)

// Ensure Backend interface exists and is implementable
type mockBackend struct{}

func (m *mockBackend) Save(ctx context.Context, record *QueryRecord) error { return nil }
func (m *mockBackend) Query(ctx context.Context, filter Filter) ([]*QueryRecord, error) {
	return nil, nil
}
func (m *mockBackend) Close() error { return nil }

func TestBackendInterface(t *testing.T) {
	var b Backend = &mockBackend{}
	_ = b
}

func TestFilter_Match(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	r := &QueryRecord{Domain: "a.example", Outcome: "found", RunID: "run-1", CreatedAt: now}

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"domain match", Filter{Domain: "a.example"}, true},
		{"domain mismatch", Filter{Domain: "b.example"}, false},
		{"outcome mismatch", Filter{Outcome: "empty"}, false},
		{"run match", Filter{RunID: "run-1"}, true},
		{"since before", Filter{Since: &earlier}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(r); got != tc.want {
				t.Errorf("Match() = %v, want %v", got, tc.want)
			}
		})
	}

	later := now.Add(time.Hour)
	if (Filter{Since: &later}).Match(r) {
		t.Error("record older than Since should not match")
	}
}

func TestFilter_Page(t *testing.T) {
	mk := func() []*QueryRecord {
		return []*QueryRecord{{Domain: "1"}, {Domain: "2"}, {Domain: "3"}, {Domain: "4"}}
	}

	got := Filter{Offset: 1, Limit: 2}.Page(mk())
	if len(got) != 2 || got[0].Domain != "3" || got[1].Domain != "2" {
		t.Errorf("unexpected page %v", domains(got))
	}
	if got := (Filter{Offset: 10}).Page(mk()); len(got) != 0 {
		t.Errorf("expected empty page, got %v", domains(got))
	}
}

func domains(rs []*QueryRecord) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Domain
	}
	return out
}
