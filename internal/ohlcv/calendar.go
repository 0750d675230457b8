package ohlcv

import (
	"fmt"
	"time"
)

// DateLayout is the ISO-8601 date form used everywhere a trading day is
// rendered as text, including the per-day seed derivation.
const DateLayout = "2006-01-02"

// TradingCalendar is the ordered sequence of trading days between a start
// and end date, inclusive. Weekends are excluded; holiday calendars are not
// modeled. It is built once and never mutated.
type TradingCalendar struct {
	days []time.Time
}

// NewTradingCalendar walks every calendar day in [start, end] and keeps the
// weekdays. The only invalid input is start after end; an empty calendar
// (e.g. a weekend-only range) is degenerate but valid.
func NewTradingCalendar(start, end time.Time) (*TradingCalendar, error) {
	start = midnightUTC(start)
	end = midnightUTC(end)
	if start.After(end) {
		return nil, fmt.Errorf("trading calendar: start date %s is after end date %s",
			start.Format(DateLayout), end.Format(DateLayout))
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return &TradingCalendar{days: days}, nil
}

// Len returns the number of trading days in the calendar.
func (c *TradingCalendar) Len() int { return len(c.days) }

// Days returns the trading days in date order. The returned slice is a copy;
// callers cannot mutate the calendar through it.
func (c *TradingCalendar) Days() []time.Time {
	out := make([]time.Time, len(c.days))
	copy(out, c.days)
	return out
}

// midnightUTC drops the time-of-day and zone so that two inputs naming the
// same calendar date always compare equal.
func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
