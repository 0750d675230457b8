package bench

import "github.com/marketbench/marketbench/internal/config"

// Query is one entry of the fixed benchmark suite. SQL is the portable form;
// Dialect overrides it per backend kind where the engines disagree.
type Query struct {
	ID      int
	Name    string
	SQL     string
	Dialect map[string]string
}

func (q Query) sqlFor(kind string) string {
	if s, ok := q.Dialect[kind]; ok {
		return s
	}
	return q.SQL
}

// Suite is the query list run against every backend. The queries are fixed
// on purpose: together with the deterministic generator they make timings
// comparable across engines and across runs.
func Suite() []Query {
	return []Query{
		{
			ID:   1,
			Name: "count all bars",
			SQL:  `SELECT count(*) FROM bars`,
		},
		{
			ID:   2,
			Name: "date bounds",
			SQL:  `SELECT min(day), max(day) FROM bars`,
		},
		{
			ID:   3,
			Name: "full history of one instrument",
			SQL: `SELECT day, open, high, low, close, volume
			      FROM bars WHERE instrument_id = 42 ORDER BY day`,
		},
		{
			ID:   4,
			Name: "trailing 90 day range scan",
			SQL: `SELECT count(*) FROM bars
			      WHERE day >= (SELECT max(day) FROM bars) - 90`,
		},
		{
			ID:   5,
			Name: "average close per instrument",
			SQL: `SELECT instrument_id, avg(close) AS avg_close
			      FROM bars GROUP BY instrument_id
			      ORDER BY avg_close DESC LIMIT 10`,
		},
		{
			ID:   6,
			Name: "total volume per day",
			SQL: `SELECT day, sum(volume) AS total_volume
			      FROM bars GROUP BY day ORDER BY day`,
		},
		{
			ID:   7,
			Name: "top daily movers",
			SQL: `SELECT instrument_id, day, (close - open) / open AS move
			      FROM bars ORDER BY abs((close - open) / open) DESC LIMIT 20`,
		},
		{
			ID:   8,
			Name: "monthly OHLCV rollup for one instrument",
			SQL: `SELECT date_trunc('month', day) AS month,
			             min(low) AS low, max(high) AS high, sum(volume) AS volume
			      FROM bars WHERE instrument_id = 42
			      GROUP BY month ORDER BY month`,
			Dialect: map[string]string{
				config.KindClickHouse: `SELECT toStartOfMonth(day) AS month,
				       min(low) AS low, max(high) AS high, sum(volume) AS volume
				FROM bars WHERE instrument_id = 42
				GROUP BY month ORDER BY month`,
			},
		},
		{
			ID:   9,
			Name: "average intraday range per instrument",
			SQL: `SELECT instrument_id, avg((high - low) / low) AS avg_range
			      FROM bars GROUP BY instrument_id
			      ORDER BY avg_range DESC LIMIT 10`,
		},
	}
}
