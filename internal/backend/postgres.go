package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketbench/marketbench/internal/config"
	"github.com/marketbench/marketbench/internal/ohlcv"
)

const pgBarsDDL = `
CREATE TABLE IF NOT EXISTS bars (
    instrument_id INTEGER          NOT NULL,
    day           DATE             NOT NULL,
    open          DOUBLE PRECISION NOT NULL,
    high          DOUBLE PRECISION NOT NULL,
    low           DOUBLE PRECISION NOT NULL,
    close         DOUBLE PRECISION NOT NULL,
    volume        DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (instrument_id, day)
);
`

// create_hypertable needs the partitioning column in every unique index;
// the (instrument_id, day) primary key satisfies that.
const timescaleDDL = `
CREATE EXTENSION IF NOT EXISTS timescaledb;
SELECT create_hypertable('bars', 'day', if_not_exists => TRUE, migrate_data => TRUE);
`

var barColumns = []string{"instrument_id", "day", "open", "high", "low", "close", "volume"}

// Postgres covers both the plain row-store and the TimescaleDB variant;
// they differ only in DDL and in how table size is measured.
type Postgres struct {
	name      string
	kind      string
	pool      *pgxpool.Pool
	timescale bool
}

func openPostgres(ctx context.Context, cfg config.BackendConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("backend %s: parse dsn: %w", cfg.Name, err)
	}

	poolCfg.MaxConns = 50
	poolCfg.MinConns = 5
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("backend %s: create pool: %w", cfg.Name, err)
	}

	// The database may still be starting; give it a few chances.
	for i := 0; i < 5; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("backend %s: ping after retries: %w", cfg.Name, err)
	}

	return &Postgres{
		name:      cfg.Name,
		kind:      cfg.Kind,
		pool:      pool,
		timescale: cfg.Kind == config.KindTimescale,
	}, nil
}

func (p *Postgres) Name() string { return p.name }
func (p *Postgres) Kind() string { return p.kind }

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, pgBarsDDL); err != nil {
		return fmt.Errorf("backend %s: create bars table: %w", p.name, err)
	}
	if p.timescale {
		if _, err := p.pool.Exec(ctx, timescaleDDL); err != nil {
			return fmt.Errorf("backend %s: create hypertable: %w", p.name, err)
		}
	}
	return nil
}

// InsertBatch copies the batch into a transaction-scoped staging table and
// merges it with ON CONFLICT DO NOTHING, so duplicate (instrument_id, day)
// rows are dropped instead of failing the whole batch.
func (p *Postgres) InsertBatch(ctx context.Context, recs []ohlcv.Record) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("backend %s: begin: %w", p.name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`CREATE TEMP TABLE bars_stage (LIKE bars) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("backend %s: create staging table: %w", p.name, err)
	}

	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{r.InstrumentID, r.Date, r.Open, r.High, r.Low, r.Close, r.Volume}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"bars_stage"}, barColumns,
		pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("backend %s: copy batch: %w", p.name, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO bars SELECT * FROM bars_stage
		 ON CONFLICT (instrument_id, day) DO NOTHING`); err != nil {
		return fmt.Errorf("backend %s: merge batch: %w", p.name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("backend %s: commit: %w", p.name, err)
	}
	return nil
}

func (p *Postgres) RunQuery(ctx context.Context, query string) (QueryStats, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return QueryStats{}, fmt.Errorf("backend %s: query: %w", p.name, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return QueryStats{}, fmt.Errorf("backend %s: drain rows: %w", p.name, err)
	}
	return QueryStats{Rows: n, Elapsed: time.Since(start)}, nil
}

func (p *Postgres) CountBars(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM bars`).Scan(&n); err != nil {
		return 0, fmt.Errorf("backend %s: count bars: %w", p.name, err)
	}
	return n, nil
}

func (p *Postgres) StorageBytes(ctx context.Context) (int64, error) {
	// hypertable_size covers the chunks; pg_total_relation_size on the
	// parent hypertable would miss them.
	q := `SELECT pg_total_relation_size('bars')`
	if p.timescale {
		q = `SELECT hypertable_size('bars')`
	}
	var n int64
	if err := p.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("backend %s: table size: %w", p.name, err)
	}
	return n, nil
}

func (p *Postgres) TruncateBars(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `TRUNCATE bars`); err != nil {
		return fmt.Errorf("backend %s: truncate bars: %w", p.name, err)
	}
	return nil
}

func (p *Postgres) Close() { p.pool.Close() }
