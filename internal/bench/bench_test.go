package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketbench/marketbench/internal/backend"
	"github.com/marketbench/marketbench/internal/config"
	"github.com/marketbench/marketbench/internal/ohlcv"
)

// fakeBackend answers every query with a canned result and remembers the SQL
// it was asked to run.
type fakeBackend struct {
	name     string
	kind     string
	failWith error
	queries  []string
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Kind() string { return f.kind }
func (f *fakeBackend) EnsureSchema(context.Context) error { return nil }
func (f *fakeBackend) InsertBatch(context.Context, []ohlcv.Record) error { return nil }
func (f *fakeBackend) CountBars(context.Context) (int64, error) { return 1234, nil }
func (f *fakeBackend) StorageBytes(context.Context) (int64, error) { return 1 << 20, nil }
func (f *fakeBackend) TruncateBars(context.Context) error { return nil }
func (f *fakeBackend) Close() {}

func (f *fakeBackend) RunQuery(_ context.Context, sql string) (backend.QueryStats, error) {
	f.queries = append(f.queries, sql)
	if f.failWith != nil {
		return backend.QueryStats{}, f.failWith
	}
	return backend.QueryStats{Rows: 7, Elapsed: 42 * time.Millisecond}, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRunProducesFullReport(t *testing.T) {
	fb := &fakeBackend{name: "pg", kind: config.KindPostgres}
	report := Run(context.Background(), []backend.Backend{fb}, quietLogger())

	require.Len(t, report.Backends, 1)
	br := report.Backends[0]
	assert.Equal(t, "pg", br.Name)
	assert.Equal(t, int64(1234), br.RowCount)
	assert.Equal(t, int64(1<<20), br.StorageBytes)
	require.Len(t, br.Queries, len(Suite()))
	for _, q := range br.Queries {
		assert.Empty(t, q.Error)
		assert.Equal(t, 7, q.Rows)
		assert.Equal(t, int64(42), q.DurationMs)
	}
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestRunRecordsQueryFailures(t *testing.T) {
	fb := &fakeBackend{name: "pg", kind: config.KindPostgres, failWith: errors.New("boom")}
	report := Run(context.Background(), []backend.Backend{fb}, quietLogger())

	require.Len(t, report.Backends, 1)
	for _, q := range report.Backends[0].Queries {
		assert.Contains(t, q.Error, "boom")
		assert.Zero(t, q.Rows)
	}
}

func TestDialectSelection(t *testing.T) {
	pg := &fakeBackend{name: "pg", kind: config.KindPostgres}
	ch := &fakeBackend{name: "ch", kind: config.KindClickHouse}
	Run(context.Background(), []backend.Backend{pg, ch}, quietLogger())

	joinPG := strings.Join(pg.queries, "\n")
	joinCH := strings.Join(ch.queries, "\n")
	assert.Contains(t, joinPG, "date_trunc")
	assert.NotContains(t, joinPG, "toStartOfMonth")
	assert.Contains(t, joinCH, "toStartOfMonth")
	assert.NotContains(t, joinCH, "date_trunc")
}

func TestSuiteIDsAreUniqueAndOrdered(t *testing.T) {
	prev := 0
	for _, q := range Suite() {
		assert.Greater(t, q.ID, prev)
		assert.NotEmpty(t, q.Name)
		assert.NotEmpty(t, q.SQL)
		prev = q.ID
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	fb := &fakeBackend{name: "pg", kind: config.KindPostgres}
	report := Run(context.Background(), []backend.Backend{fb}, quietLogger())
	require.NoError(t, WriteFile(path, report))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, report.Backends, decoded.Backends)
}

func TestPrintIncludesEveryQuery(t *testing.T) {
	fb := &fakeBackend{name: "pg", kind: config.KindPostgres}
	report := Run(context.Background(), []backend.Backend{fb}, quietLogger())

	var buf bytes.Buffer
	Print(&buf, report)
	out := buf.String()
	for _, q := range Suite() {
		assert.Contains(t, out, q.Name)
	}
	assert.Contains(t, out, "pg (postgres)")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512B", formatBytes(512))
	assert.Equal(t, "1.0KB", formatBytes(1024))
	assert.Equal(t, "1.0MB", formatBytes(1<<20))
	assert.Equal(t, "1.5GB", formatBytes(3<<29))
}
