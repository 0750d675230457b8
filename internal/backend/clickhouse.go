package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/marketbench/marketbench/internal/config"
	"github.com/marketbench/marketbench/internal/ohlcv"
)

// MergeTree has no uniqueness constraint, so the duplicate-ignore policy of
// the relational backends does not apply here; reloads should truncate
// first.
const chBarsDDL = `
CREATE TABLE IF NOT EXISTS bars (
    instrument_id Int32,
    day           Date,
    open          Float64,
    high          Float64,
    low           Float64,
    close         Float64,
    volume        Float64
) ENGINE = MergeTree()
ORDER BY (instrument_id, day)
`

const chInsert = `
INSERT INTO bars (instrument_id, day, open, high, low, close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

// ClickHouse is the columnar backend, driven through database/sql with the
// native-protocol driver.
type ClickHouse struct {
	name string
	db   *sql.DB
}

func openClickHouse(ctx context.Context, cfg config.BackendConfig) (*ClickHouse, error) {
	db, err := sql.Open("clickhouse", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("backend %s: open: %w", cfg.Name, err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(50)
	db.SetConnMaxLifetime(time.Hour)

	for i := 0; i < 5; i++ {
		if err = db.PingContext(ctx); err == nil {
			return &ClickHouse{name: cfg.Name, db: db}, nil
		}
		time.Sleep(3 * time.Second)
	}
	db.Close()
	return nil, fmt.Errorf("backend %s: ping after retries: %w", cfg.Name, err)
}

func (c *ClickHouse) Name() string { return c.name }
func (c *ClickHouse) Kind() string { return config.KindClickHouse }

func (c *ClickHouse) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, chBarsDDL); err != nil {
		return fmt.Errorf("backend %s: create bars table: %w", c.name, err)
	}
	return nil
}

// InsertBatch uses the driver's transaction batching: every Exec appends a
// row to the batch and Commit ships it as one insert block.
func (c *ClickHouse) InsertBatch(ctx context.Context, recs []ohlcv.Record) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("backend %s: begin: %w", c.name, err)
	}

	stmt, err := tx.PrepareContext(ctx, chInsert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("backend %s: prepare: %w", c.name, err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.InstrumentID, r.Date, r.Open, r.High, r.Low, r.Close, r.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("backend %s: append row: %w", c.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("backend %s: commit batch: %w", c.name, err)
	}
	return nil
}

func (c *ClickHouse) RunQuery(ctx context.Context, query string) (QueryStats, error) {
	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return QueryStats{}, fmt.Errorf("backend %s: query: %w", c.name, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return QueryStats{}, fmt.Errorf("backend %s: drain rows: %w", c.name, err)
	}
	return QueryStats{Rows: n, Elapsed: time.Since(start)}, nil
}

func (c *ClickHouse) CountBars(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT count() FROM bars`).Scan(&n); err != nil {
		return 0, fmt.Errorf("backend %s: count bars: %w", c.name, err)
	}
	return n, nil
}

func (c *ClickHouse) StorageBytes(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, `
		SELECT coalesce(sum(bytes_on_disk), 0)
		FROM system.parts
		WHERE active AND database = currentDatabase() AND table = 'bars'
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("backend %s: table size: %w", c.name, err)
	}
	return n, nil
}

func (c *ClickHouse) TruncateBars(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `TRUNCATE TABLE bars`); err != nil {
		return fmt.Errorf("backend %s: truncate bars: %w", c.name, err)
	}
	return nil
}

func (c *ClickHouse) Close() { c.db.Close() }
