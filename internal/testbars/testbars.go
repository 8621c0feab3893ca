// Package testbars builds deterministic synthetic bar series for tests and replays.
package testbars

import (
	"math"

	"github.com/jwtly10/tradegate/internal/types"
)

const (
	// Start is 2024-01-02T14:30:00Z, a regular US session open.
	Start int64 = 1704205800000

	cycle = 8
	wick  = 0.5
)

// ZigZag returns n bars following price = start + drift*i + a triangle wave of the given
// slope with an 8 bar cycle. With |drift| < slope every cycle prints a strict pivot high and
// pivot low, so a positive drift produces HH/HL structure and a negative drift LH/LL.
// Bars close every stepMs starting at startTS + stepMs - 1.
func ZigZag(n int, start, drift, slope float64, startTS, stepMs int64) []types.Bar {
	prices := make([]float64, n+1)
	for i := range prices {
		k := i % cycle
		tri := float64(k)
		if k > cycle/2 {
			tri = float64(cycle - k)
		}
		prices[i] = start + drift*float64(i) + slope*tri
	}
	return fromPath(prices, startTS, stepMs)
}

// Closes turns a close path into bars. Each bar opens halfway between the previous close and
// its own close so neighbouring highs and lows never tie.
func Closes(closes []float64, startTS, stepMs int64) []types.Bar {
	if len(closes) == 0 {
		return nil
	}
	prices := append([]float64{closes[0]}, closes...)
	return fromPath(prices, startTS, stepMs)
}

func fromPath(prices []float64, startTS, stepMs int64) []types.Bar {
	bars := make([]types.Bar, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		c := prices[i]
		o := (prices[i-1] + c) / 2
		bars = append(bars, types.Bar{
			TS:     startTS + int64(i)*stepMs - 1,
			Open:   o,
			High:   math.Max(o, c) + wick,
			Low:    math.Min(o, c) - wick,
			Close:  c,
			Volume: 1000,
		})
	}
	return bars
}

// Next builds a single bar closing at c after prev, stepMs later.
func Next(prev types.Bar, c float64, stepMs int64) types.Bar {
	o := (prev.Close + c) / 2
	return types.Bar{
		TS:     prev.TS + stepMs,
		Open:   o,
		High:   math.Max(o, c) + wick,
		Low:    math.Min(o, c) - wick,
		Close:  c,
		Volume: 1000,
	}
}
