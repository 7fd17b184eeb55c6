package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/v6scout/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS query_records (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	domain TEXT NOT NULL,
	outcome TEXT NOT NULL,
	addresses TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	node TEXT,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS query_records_domain ON query_records (domain);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, record *storage.QueryRecord) error {
	addrs := record.Addresses
	if addrs == nil {
		addrs = []string{}
	}
	addrsJSON, err := json.Marshal(addrs)
	if err != nil {
		return fmt.Errorf("sqlite: marshal addresses: %w", err)
	}

	query := `
	INSERT INTO query_records (
		id, run_id, idx, domain, outcome, addresses, attempts, node, duration_ms, created_at, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		record.ID,
		record.RunID,
		record.Index,
		record.Domain,
		record.Outcome,
		string(addrsJSON),
		record.Attempts,
		record.Node,
		record.Duration.Milliseconds(),
		record.CreatedAt,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.QueryRecord, error) {
	query := `SELECT id, run_id, idx, domain, outcome, addresses, attempts, node, duration_ms, created_at, error FROM query_records WHERE 1=1`
	args := []any{}

	if filter.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, filter.Domain)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, filter.Outcome)
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var records []*storage.QueryRecord
	for rows.Next() {
		var r storage.QueryRecord
		var addrsJSON string
		var node, errText sql.NullString
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.RunID, &r.Index, &r.Domain, &r.Outcome, &addrsJSON,
			&r.Attempts, &node, &durationMs, &r.CreatedAt, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}

		r.Node = node.String
		r.Error = errText.String
		r.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(addrsJSON), &r.Addresses); err != nil {
			return nil, fmt.Errorf("sqlite: decode addresses: %w", err)
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return records, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
