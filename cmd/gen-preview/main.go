// gen-preview prints a sample of generated bars as JSON lines. It touches no
// database; it exists to eyeball the deterministic output and to diff runs.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/marketbench/marketbench/internal/ohlcv"
)

func main() {
	var (
		startStr   = flag.String("start", "2014-01-01", "First calendar date (YYYY-MM-DD)")
		endStr     = flag.String("end", "2014-12-31", "Last calendar date (YYYY-MM-DD)")
		instrument = flag.Int("instrument", 1, "Instrument id to generate")
		limit      = flag.Int("limit", 10, "Maximum number of bars to print (0 = all)")
	)
	flag.Parse()

	start, err := time.Parse(ohlcv.DateLayout, *startStr)
	if err != nil {
		log.Fatalf("Bad -start: %v", err)
	}
	end, err := time.Parse(ohlcv.DateLayout, *endStr)
	if err != nil {
		log.Fatalf("Bad -end: %v", err)
	}
	if *instrument < 1 {
		log.Fatalf("Instrument id must be >= 1, got %d", *instrument)
	}

	gen, err := ohlcv.NewGenerator(start, end)
	if err != nil {
		log.Fatalf("Failed to build generator: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	n := 0
	for rec := range gen.Series(int32(*instrument)) {
		out := struct {
			InstrumentID int32   `json:"instrument_id"`
			Date         string  `json:"date"`
			Open         float64 `json:"open"`
			High         float64 `json:"high"`
			Low          float64 `json:"low"`
			Close        float64 `json:"close"`
			Volume       float64 `json:"volume"`
		}{
			InstrumentID: rec.InstrumentID,
			Date:         rec.Date.Format(ohlcv.DateLayout),
			Open:         rec.Open,
			High:         rec.High,
			Low:          rec.Low,
			Close:        rec.Close,
			Volume:       rec.Volume,
		}
		if err := enc.Encode(out); err != nil {
			log.Fatalf("Failed to encode record: %v", err)
		}
		n++
		if *limit > 0 && n == *limit {
			break
		}
	}
}
