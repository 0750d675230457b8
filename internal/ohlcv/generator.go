// Package ohlcv generates deterministic synthetic daily OHLCV bars for the
// benchmark harness. Every bar is a pure function of (instrument id, date,
// previous close): re-running a load with the same calendar reproduces the
// exact same rows, which is what makes insert and query timings comparable
// across databases and across runs.
package ohlcv

import (
	"iter"
	"math"
	"strconv"
	"time"
)

// Lehmer-style LCG constants. These are part of the reproducibility
// contract: changing them changes every generated row.
const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// Record is one synthetic daily bar for one instrument.
type Record struct {
	InstrumentID int32     `json:"instrument_id"`
	Date         time.Time `json:"date"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
}

// Generator produces OHLCV bars over a fixed trading calendar. It holds no
// mutable state: all per-instrument state (the running previous close) lives
// in the caller or inside a single Series iteration, so instruments can be
// generated concurrently.
type Generator struct {
	cal *TradingCalendar
}

// NewGenerator builds the trading calendar for [start, end] and returns a
// generator over it. Fails only when start is after end.
func NewGenerator(start, end time.Time) (*Generator, error) {
	cal, err := NewTradingCalendar(start, end)
	if err != nil {
		return nil, err
	}
	return &Generator{cal: cal}, nil
}

// Calendar returns the generator's trading calendar.
func (g *Generator) Calendar() *TradingCalendar { return g.cal }

// Bar computes the bar for one instrument on one trading day. prevClose is
// the previous trading day's close; pass 0 when there is none, in which case
// the day starts from the instrument's anchor price. Generated closes are
// always positive, so 0 is unambiguous as "no previous close".
//
// For a fixed (id, date, prevClose) the result is bit-for-bit deterministic.
func (g *Generator) Bar(id int32, date time.Time, prevClose float64) Record {
	rng := newLCG(daySeed(id, date))

	anchor := 50 + float64(id%1000)*0.1
	start := anchor
	if prevClose > 0 {
		start = prevClose
	}

	// Draw order is fixed: volatility, open, high, low, close, volume.
	volatility := 0.005 + rng.next()*0.045

	open := start + start*volatility*(rng.next()*2-1)
	if open < 0.01 {
		open = 0.01
	}

	high := open + math.Abs(open*(volatility/2)*(rng.next()*2-1))
	low := open - math.Abs(open*(volatility/2)*(rng.next()*2-1))

	closePrice := low + (high-low)*rng.next()

	baseVolume := 100000 + float64(id%10000)*10
	volume := baseVolume * (1 + 5*math.Abs((closePrice-open)/open)) * (0.5 + rng.next())

	return Record{
		InstrumentID: id,
		Date:         date,
		Open:         round4(open),
		High:         round4(high),
		Low:          round4(low),
		Close:        round4(closePrice),
		Volume:       round2(volume),
	}
}

// Series returns the instrument's bars across the whole calendar in date
// order, threading each day's close forward as the next day's previous
// close. The sequence is lazy, finite and restartable: ranging over it twice
// yields identical records.
//
// Days within one instrument must stay sequential (day N+1 depends on day
// N's close); distinct instruments are independent and may run on separate
// goroutines.
func (g *Generator) Series(id int32) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		prevClose := 0.0
		for _, day := range g.cal.days {
			rec := g.Bar(id, day, prevClose)
			if !yield(rec) {
				return
			}
			prevClose = rec.Close
		}
	}
}

// daySeed derives the per-(instrument, date) seed: a multiply-by-31 rolling
// hash over the decimal instrument id concatenated with the ISO date, folded
// to 32 bits with wraparound, absolute value.
func daySeed(id int32, date time.Time) int32 {
	key := strconv.FormatInt(int64(id), 10) + date.Format(DateLayout)
	var h int32
	for i := 0; i < len(key); i++ {
		h = h*31 + int32(key[i])
	}
	if h == math.MinInt32 {
		// -MinInt32 overflows back to itself; pin the one unrepresentable case.
		return 0
	}
	if h < 0 {
		return -h
	}
	return h
}

// lcg is the x = (9301·x + 49297) mod 233280 generator. State is kept in an
// int64 because 233279·9301 overflows int32.
type lcg struct {
	state int64
}

func newLCG(seed int32) *lcg {
	return &lcg{state: int64(seed) % lcgModulus}
}

// next advances the state and returns a value in [0, 1).
func (l *lcg) next() float64 {
	l.state = (l.state*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(l.state) / lcgModulus
}

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }

func round2(x float64) float64 { return math.Round(x*100) / 100 }
