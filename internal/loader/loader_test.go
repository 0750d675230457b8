package loader

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketbench/marketbench/internal/backend"
	"github.com/marketbench/marketbench/internal/ohlcv"
)

// fakeBackend records every batch it receives and can be told to fail.
type fakeBackend struct {
	name    string
	failAll bool

	mu      sync.Mutex
	batches [][]ohlcv.Record
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Kind() string { return "fake" }
func (f *fakeBackend) EnsureSchema(context.Context) error { return nil }
func (f *fakeBackend) TruncateBars(context.Context) error { return nil }
func (f *fakeBackend) StorageBytes(context.Context) (int64, error) { return 0, nil }
func (f *fakeBackend) Close() {}

func (f *fakeBackend) InsertBatch(_ context.Context, recs []ohlcv.Record) error {
	if f.failAll {
		return errors.New("backend down")
	}
	batch := make([]ohlcv.Record, len(recs))
	copy(batch, recs)
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) RunQuery(context.Context, string) (backend.QueryStats, error) {
	return backend.QueryStats{}, nil
}

func (f *fakeBackend) CountBars(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.batches {
		n += int64(len(b))
	}
	return n, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newGen(t *testing.T) *ohlcv.Generator {
	t.Helper()
	start, _ := time.Parse(ohlcv.DateLayout, "2014-01-01")
	end, _ := time.Parse(ohlcv.DateLayout, "2014-01-31")
	gen, err := ohlcv.NewGenerator(start, end)
	require.NoError(t, err)
	return gen
}

func TestRunLoadsAllRows(t *testing.T) {
	gen := newGen(t) // 23 trading days in Jan 2014
	fb := &fakeBackend{name: "fake"}
	l := New(gen, []backend.Backend{fb}, 10, 3, quietLogger())

	summary := l.Run(context.Background(), 1, 5)

	wantRows := uint64(gen.Calendar().Len() * 5)
	assert.Equal(t, wantRows, summary.RowsGenerated)
	require.Len(t, summary.Backends, 1)
	assert.Equal(t, wantRows, summary.Backends[0].RowsInserted)
	assert.Zero(t, summary.Backends[0].RowsFailed)

	n, _ := fb.CountBars(context.Background())
	assert.Equal(t, int64(wantRows), n)
}

func TestRunBatchSizes(t *testing.T) {
	gen := newGen(t)
	days := gen.Calendar().Len()
	fb := &fakeBackend{name: "fake"}
	l := New(gen, []backend.Backend{fb}, 10, 1, quietLogger())

	l.Run(context.Background(), 1, 1)

	// One instrument: full batches of 10 plus one remainder.
	wantBatches := days / 10
	remainder := days % 10
	if remainder > 0 {
		wantBatches++
	}
	require.Len(t, fb.batches, wantBatches)
	for i, b := range fb.batches[:wantBatches-1] {
		assert.Len(t, b, 10, "batch %d", i)
	}
	if remainder > 0 {
		assert.Len(t, fb.batches[wantBatches-1], remainder)
	}
}

func TestRunKeepsDateOrderPerInstrument(t *testing.T) {
	gen := newGen(t)
	fb := &fakeBackend{name: "fake"}
	l := New(gen, []backend.Backend{fb}, 7, 4, quietLogger())

	l.Run(context.Background(), 1, 8)

	last := map[int32]time.Time{}
	for _, batch := range fb.batches {
		for _, rec := range batch {
			if prev, ok := last[rec.InstrumentID]; ok {
				assert.True(t, rec.Date.After(prev),
					"instrument %d: %s not after %s", rec.InstrumentID, rec.Date, prev)
			}
			last[rec.InstrumentID] = rec.Date
		}
	}
	assert.Len(t, last, 8)
}

func TestRunCountsFailedBatches(t *testing.T) {
	gen := newGen(t)
	good := &fakeBackend{name: "good"}
	bad := &fakeBackend{name: "bad", failAll: true}
	l := New(gen, []backend.Backend{good, bad}, 10, 2, quietLogger())

	summary := l.Run(context.Background(), 1, 3)

	wantRows := uint64(gen.Calendar().Len() * 3)
	byName := map[string]BackendSummary{}
	for _, bs := range summary.Backends {
		byName[bs.Name] = bs
	}

	assert.Equal(t, wantRows, byName["good"].RowsInserted)
	assert.Zero(t, byName["good"].BatchesFailed)

	// The failing backend drops every batch but the run still completes.
	assert.Zero(t, byName["bad"].RowsInserted)
	assert.Equal(t, wantRows, byName["bad"].RowsFailed)
	assert.Equal(t, byName["bad"].Batches, byName["bad"].BatchesFailed)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := newGen(t)
	fb := &fakeBackend{name: "fake"}
	l := New(gen, []backend.Backend{fb}, 10, 2, quietLogger())

	summary := l.Run(ctx, 1, 1000)
	assert.Less(t, summary.RowsGenerated, uint64(1000*gen.Calendar().Len()))
}
