// Package loader drives the generator and fans generated batches out to the
// storage backends. Instruments are distributed over a worker pool; within
// one instrument, days are generated strictly in date order because each
// day's price depends on the previous close.
package loader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketbench/marketbench/internal/backend"
	"github.com/marketbench/marketbench/internal/ohlcv"
)

// Loader buffers generated records into fixed-size batches and submits each
// batch to every backend.
type Loader struct {
	gen      *ohlcv.Generator
	backends []backend.Backend
	batch    int
	workers  int
	log      *logrus.Logger
}

// BackendSummary is the per-backend outcome of a load run.
type BackendSummary struct {
	Name          string `json:"name"`
	RowsInserted  uint64 `json:"rows_inserted"`
	RowsFailed    uint64 `json:"rows_failed"`
	Batches       uint64 `json:"batches"`
	BatchesFailed uint64 `json:"batches_failed"`
}

// Summary is the outcome of a full load run.
type Summary struct {
	Duration      time.Duration    `json:"duration"`
	RowsGenerated uint64           `json:"rows_generated"`
	Backends      []BackendSummary `json:"backends"`
}

type counters struct {
	rowsInserted  atomic.Uint64
	rowsFailed    atomic.Uint64
	batches       atomic.Uint64
	batchesFailed atomic.Uint64
}

func New(gen *ohlcv.Generator, backends []backend.Backend, batchSize, workers int, log *logrus.Logger) *Loader {
	if batchSize < 1 {
		batchSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Loader{gen: gen, backends: backends, batch: batchSize, workers: workers, log: log}
}

// Run generates bars for instrument ids [firstID, firstID+count) and loads
// them into every backend. Insert failures are logged, counted and dropped;
// they do not stop the run. Run returns early only when ctx is cancelled.
func (l *Loader) Run(ctx context.Context, firstID int32, count int) Summary {
	start := time.Now()

	stats := make([]*counters, len(l.backends))
	for i := range stats {
		stats[i] = &counters{}
	}
	var rowsGenerated atomic.Uint64

	ids := make(chan int32)
	var wg sync.WaitGroup
	wg.Add(l.workers)
	for w := 0; w < l.workers; w++ {
		go func() {
			defer wg.Done()
			for id := range ids {
				rowsGenerated.Add(l.loadInstrument(ctx, id, stats))
			}
		}()
	}

dispatch:
	for i := 0; i < count; i++ {
		select {
		case ids <- firstID + int32(i):
		case <-ctx.Done():
			break dispatch
		}
	}
	close(ids)
	wg.Wait()

	summary := Summary{
		Duration:      time.Since(start),
		RowsGenerated: rowsGenerated.Load(),
	}
	for i, b := range l.backends {
		summary.Backends = append(summary.Backends, BackendSummary{
			Name:          b.Name(),
			RowsInserted:  stats[i].rowsInserted.Load(),
			RowsFailed:    stats[i].rowsFailed.Load(),
			Batches:       stats[i].batches.Load(),
			BatchesFailed: stats[i].batchesFailed.Load(),
		})
	}
	return summary
}

// loadInstrument walks one instrument's series in date order, cutting
// batches of l.batch records. It returns the number of records generated.
func (l *Loader) loadInstrument(ctx context.Context, id int32, stats []*counters) uint64 {
	var generated uint64
	buf := make([]ohlcv.Record, 0, l.batch)

	for rec := range l.gen.Series(id) {
		if ctx.Err() != nil {
			return generated
		}
		generated++
		buf = append(buf, rec)
		if len(buf) == l.batch {
			l.flush(ctx, buf, stats)
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		l.flush(ctx, buf, stats)
	}
	return generated
}

// flush submits one batch to all backends concurrently and waits for all of
// them, so each backend still sees an instrument's batches in date order.
// A failed insert is logged and the batch dropped for that backend: the
// documented policy is non-fatal, non-retried, at the cost of silent gaps in
// that backend's data (the failure counters make the gaps visible).
func (l *Loader) flush(ctx context.Context, batch []ohlcv.Record, stats []*counters) {
	var wg sync.WaitGroup
	wg.Add(len(l.backends))
	for i, b := range l.backends {
		go func(i int, b backend.Backend) {
			defer wg.Done()
			stats[i].batches.Add(1)
			if err := b.InsertBatch(ctx, batch); err != nil {
				stats[i].batchesFailed.Add(1)
				stats[i].rowsFailed.Add(uint64(len(batch)))
				l.log.WithFields(logrus.Fields{
					"backend": b.Name(),
					"rows":    len(batch),
				}).WithError(err).Warn("dropping failed batch")
				return
			}
			stats[i].rowsInserted.Add(uint64(len(batch)))
		}(i, b)
	}
	wg.Wait()
}
