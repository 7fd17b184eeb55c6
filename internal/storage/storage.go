package storage

import (
	"context"
	"time"
)

// QueryRecord is the audit entry for one resolved domain.
type QueryRecord struct {
	ID        string
	RunID     string
	Index     int // position of the domain in the input
	Domain    string
	Outcome   string // found, empty, unresolved, failed
	Addresses []string
	Attempts  int
	Node      string // egress node in use, if known
	Duration  time.Duration
	CreatedAt time.Time
	Error     string // non-empty if every attempt failed
}

// Filter allows querying for specific QueryRecords.
type Filter struct {
	Domain  string
	Outcome string
	RunID   string
	Since   *time.Time
	Limit   int
	Offset  int
}

// Backend defines the interface for storing and querying lookup records.
type Backend interface {
	Save(ctx context.Context, record *QueryRecord) error
	Query(ctx context.Context, filter Filter) ([]*QueryRecord, error)
	Close() error
}

// Match reports whether r passes the non-paging parts of f.
func (f Filter) Match(r *QueryRecord) bool {
	if f.Domain != "" && r.Domain != f.Domain {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page reverses records (newest last to newest first) and applies Offset and Limit.
func (f Filter) Page(records []*QueryRecord) []*QueryRecord {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if f.Offset > 0 {
		if f.Offset >= len(records) {
			return []*QueryRecord{}
		}
		records = records[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(records) {
		records = records[:f.Limit]
	}
	return records
}
