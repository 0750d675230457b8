// Package backend holds the storage backends the harness loads bars into
// and benchmarks queries against. Each backend owns its own schema for the
// bars table and exposes the same batched-insert and timed-query surface.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/marketbench/marketbench/internal/config"
	"github.com/marketbench/marketbench/internal/ohlcv"
)

// QueryStats is the outcome of one timed read query.
type QueryStats struct {
	Rows    int
	Elapsed time.Duration
}

// Backend is one database under test.
type Backend interface {
	Name() string
	Kind() string

	// EnsureSchema creates the bars table (and any engine-specific setup)
	// if it does not exist yet.
	EnsureSchema(ctx context.Context) error

	// InsertBatch submits one ordered group of records as a single
	// insertion unit. Rows that collide on (instrument_id, day) are
	// ignored, not errors, where the engine supports a uniqueness
	// constraint.
	InsertBatch(ctx context.Context, recs []ohlcv.Record) error

	// RunQuery executes an arbitrary read query, drains the result set and
	// reports row count and elapsed wall-clock time.
	RunQuery(ctx context.Context, query string) (QueryStats, error)

	// CountBars returns the number of rows in the bars table.
	CountBars(ctx context.Context) (int64, error)

	// StorageBytes reports the on-disk footprint of the bars table,
	// including indexes where the engine has them.
	StorageBytes(ctx context.Context) (int64, error)

	// TruncateBars empties the bars table ahead of a fresh load.
	TruncateBars(ctx context.Context) error

	Close()
}

// Open connects the backend described by cfg.
func Open(ctx context.Context, cfg config.BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case config.KindPostgres, config.KindTimescale:
		return openPostgres(ctx, cfg)
	case config.KindClickHouse:
		return openClickHouse(ctx, cfg)
	default:
		return nil, fmt.Errorf("backend %s: unknown kind %q", cfg.Name, cfg.Kind)
	}
}

// OpenAll connects every configured backend, closing the ones already opened
// if a later one fails.
func OpenAll(ctx context.Context, cfgs []config.BackendConfig) ([]Backend, error) {
	backends := make([]Backend, 0, len(cfgs))
	for _, cfg := range cfgs {
		b, err := Open(ctx, cfg)
		if err != nil {
			for _, opened := range backends {
				opened.Close()
			}
			return nil, err
		}
		backends = append(backends, b)
	}
	return backends, nil
}
