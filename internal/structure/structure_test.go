package structure

import (
	"testing"

	"github.com/jwtly10/tradegate/internal/testbars"
	"github.com/jwtly10/tradegate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fiveMin = int64(5 * 60 * 1000)

func TestDetect_BullishOnRisingZigZag(t *testing.T) {
	bars := testbars.ZigZag(40, 100, 0.1, 0.3, testbars.Start, fiveMin)

	res := Detect(bars, DefaultConfig())

	assert.Equal(t, BULLISH, res.Structure)
	require.GreaterOrEqual(t, len(res.PivotHighs), 2)
	require.GreaterOrEqual(t, len(res.PivotLows), 2)
	assert.Empty(t, res.Reason)
}

func TestDetect_BearishOnFallingZigZag(t *testing.T) {
	bars := testbars.ZigZag(40, 100, -0.1, 0.3, testbars.Start, fiveMin)

	res := Detect(bars, DefaultConfig())

	assert.Equal(t, BEARISH, res.Structure)
}

func TestDetect_MixedWithoutEnoughPivots(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i) // monotonic: no pivot highs at all
	}
	res := Detect(testbars.Closes(closes, testbars.Start, fiveMin), DefaultConfig())

	assert.Equal(t, MIXED, res.Structure)
	assert.Contains(t, res.Reason, "insufficient pivots")
}

func TestDetect_MixedWhenPivotsDisagree(t *testing.T) {
	// Higher highs with lower lows: an expanding range.
	bars := []types.Bar{}
	shape := []struct{ h, l float64 }{
		{10, 9}, {11, 9.5}, {15, 9.6}, {11, 9.5}, {10, 8}, {10.5, 6}, {10.6, 8}, {11, 9}, {17, 9.2}, {11, 9}, {10.8, 8.5},
		{10.5, 5}, {10.6, 8}, {10.7, 9},
	}
	for i, s := range shape {
		bars = append(bars, types.Bar{TS: int64(i), Open: s.l, High: s.h, Low: s.l, Close: s.l, Volume: 1})
	}

	res := Detect(bars, DefaultConfig())

	require.Len(t, res.PivotHighs, 2)
	require.Len(t, res.PivotLows, 2)
	assert.Equal(t, MIXED, res.Structure)
	assert.Equal(t, "pivots disagree", res.Reason)
}

func TestFindPivotHighs_StrictInequality(t *testing.T) {
	bars := []types.Bar{
		{High: 1}, {High: 2}, {High: 3}, {High: 3}, {High: 2}, {High: 1},
	}
	assert.Empty(t, FindPivotHighs(bars, 2), "equal neighbouring highs are not pivots")

	bars[3].High = 2.5
	pivots := FindPivotHighs(bars, 2)
	require.Len(t, pivots, 1)
	assert.Equal(t, 2, pivots[0].Index)
	assert.Equal(t, 3.0, pivots[0].Price)
}

func TestDetect_OnlyLooksAtLookbackWindow(t *testing.T) {
	bearishHistory := testbars.ZigZag(60, 130, -0.5, 0.8, testbars.Start, fiveMin)
	last := bearishHistory[len(bearishHistory)-1]
	bullishTail := testbars.ZigZag(24, last.Close, 0.1, 0.3, last.TS+1, fiveMin)

	res := Detect(append(bearishHistory, bullishTail...), Config{Lookback: 22, PivotWidth: 2})

	assert.Equal(t, BULLISH, res.Structure)
}
