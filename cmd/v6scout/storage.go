package main

import (
	"context"
	"fmt"

	"github.com/FranksOps/v6scout/internal/config"
	"github.com/FranksOps/v6scout/internal/storage"
	"github.com/FranksOps/v6scout/internal/storage/csvbackend"
	"github.com/FranksOps/v6scout/internal/storage/jsonbackend"
	"github.com/FranksOps/v6scout/internal/storage/postgres"
	"github.com/FranksOps/v6scout/internal/storage/sqlite"
)

// openBackend opens the configured query log. The "none" driver yields a
// nil backend.
func openBackend(ctx context.Context, sc config.StorageConfig) (storage.Backend, error) {
	switch sc.Driver {
	case "", "none":
		return nil, nil
	case "json":
		return jsonbackend.New(sc.DSN)
	case "csv":
		return csvbackend.New(sc.DSN)
	case "sqlite":
		return sqlite.New(sc.DSN)
	case "postgres":
		return postgres.New(ctx, sc.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

func closeBackend(b storage.Backend) error {
	if b == nil {
		return nil
	}
	return b.Close()
}
