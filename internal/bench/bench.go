// Package bench runs the fixed query suite against each backend, measures
// wall-clock latency and storage footprint, and writes a JSON report.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketbench/marketbench/internal/backend"
)

// QueryResult is one timed query on one backend.
type QueryResult struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Rows       int    `json:"rows"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// BackendReport is the benchmark outcome for one backend.
type BackendReport struct {
	Name         string        `json:"name"`
	Kind         string        `json:"kind"`
	RowCount     int64         `json:"row_count"`
	StorageBytes int64         `json:"storage_bytes"`
	Queries      []QueryResult `json:"queries"`
}

// Report is the full benchmark result set, as written to the JSON file.
type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Backends    []BackendReport `json:"backends"`
}

// Run executes the suite against every backend in turn. A failed query is
// recorded in the report and the run continues; only the surrounding
// context's cancellation stops it early.
func Run(ctx context.Context, backends []backend.Backend, log *logrus.Logger) Report {
	report := Report{GeneratedAt: time.Now().UTC()}

	for _, b := range backends {
		blog := log.WithField("backend", b.Name())
		br := BackendReport{Name: b.Name(), Kind: b.Kind()}

		if n, err := b.CountBars(ctx); err != nil {
			blog.WithError(err).Warn("failed to count bars")
		} else {
			br.RowCount = n
		}
		if n, err := b.StorageBytes(ctx); err != nil {
			blog.WithError(err).Warn("failed to measure storage")
		} else {
			br.StorageBytes = n
		}

		for _, q := range Suite() {
			res := QueryResult{ID: q.ID, Name: q.Name}
			stats, err := b.RunQuery(ctx, q.sqlFor(b.Kind()))
			if err != nil {
				res.Error = err.Error()
				blog.WithField("query", q.Name).WithError(err).Warn("query failed")
			} else {
				res.Rows = stats.Rows
				res.DurationMs = stats.Elapsed.Milliseconds()
				blog.WithFields(logrus.Fields{
					"query":       q.Name,
					"rows":        stats.Rows,
					"duration_ms": stats.Elapsed.Milliseconds(),
				}).Info("query done")
			}
			br.Queries = append(br.Queries, res)

			if ctx.Err() != nil {
				report.Backends = append(report.Backends, br)
				return report
			}
		}
		report.Backends = append(report.Backends, br)
	}
	return report
}

// WriteFile marshals the report to path as indented JSON.
func WriteFile(path string, report Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// Print renders the report as a human-readable table.
func Print(w io.Writer, report Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, b := range report.Backends {
		fmt.Fprintf(tw, "\n%s (%s)\trows=%d\tstorage=%s\n", b.Name, b.Kind, b.RowCount, formatBytes(b.StorageBytes))
		fmt.Fprintf(tw, "ID\tQUERY\tROWS\tTIME\n")
		for _, q := range b.Queries {
			if q.Error != "" {
				fmt.Fprintf(tw, "%d\t%s\t-\tFAILED: %s\n", q.ID, q.Name, q.Error)
				continue
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%dms\n", q.ID, q.Name, q.Rows, q.DurationMs)
		}
	}
	tw.Flush()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}
