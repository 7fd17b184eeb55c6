package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/v6scout/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS query_records (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	domain TEXT NOT NULL,
	outcome TEXT NOT NULL,
	addresses JSONB NOT NULL,
	attempts INTEGER NOT NULL,
	node TEXT,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS query_records_domain ON query_records (domain);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, record *storage.QueryRecord) error {
	addrs := record.Addresses
	if addrs == nil {
		addrs = []string{}
	}
	addrsJSON, err := json.Marshal(addrs)
	if err != nil {
		return fmt.Errorf("postgres: marshal addresses: %w", err)
	}

	query := `
	INSERT INTO query_records (
		id, run_id, idx, domain, outcome, addresses, attempts, node, duration_ms, created_at, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = b.pool.Exec(ctx, query,
		record.ID,
		record.RunID,
		record.Index,
		record.Domain,
		record.Outcome,
		addrsJSON,
		record.Attempts,
		record.Node,
		record.Duration.Milliseconds(),
		record.CreatedAt,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.QueryRecord, error) {
	query := `SELECT id, run_id, idx, domain, outcome, addresses, attempts, node, duration_ms, created_at, error FROM query_records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Domain != "" {
		query += fmt.Sprintf(` AND domain = $%d`, paramCount)
		args = append(args, filter.Domain)
		paramCount++
	}
	if filter.Outcome != "" {
		query += fmt.Sprintf(` AND outcome = $%d`, paramCount)
		args = append(args, filter.Outcome)
		paramCount++
	}
	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var records []*storage.QueryRecord
	for rows.Next() {
		var r storage.QueryRecord
		var addrsJSON []byte
		var node, errText *string
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.RunID, &r.Index, &r.Domain, &r.Outcome, &addrsJSON,
			&r.Attempts, &node, &durationMs, &r.CreatedAt, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}

		if node != nil {
			r.Node = *node
		}
		if errText != nil {
			r.Error = *errText
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal(addrsJSON, &r.Addresses); err != nil {
			return nil, fmt.Errorf("postgres: decode addresses: %w", err)
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}
	return records, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
