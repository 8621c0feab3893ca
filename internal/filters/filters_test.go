package filters

import (
	"testing"
	"time"

	"github.com/jwtly10/tradegate/internal/indicators"
	"github.com/jwtly10/tradegate/internal/testbars"
	"github.com/jwtly10/tradegate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 09:30 New York in January.
var sessionOpen = testbars.Start

func known(v float64) indicators.Value { return indicators.Value{V: v, OK: true} }

func mustNew(t *testing.T) *Filters {
	f, err := New(DefaultConfig())
	require.NoError(t, err)
	return f
}

func checkNamed(res Result, name string) Check {
	for _, c := range res.Checks {
		if c.Name == name {
			return c
		}
	}
	return Check{}
}

func TestNew_RejectsLateCutoff(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Cutoff = "15:45"
	_, err := New(cfg)
	assert.NoError(t, err, "15:45 is the latest allowed cutoff")

	cfg.Cutoff = "15:46"
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidCutoff)

	cfg.Cutoff = "3pm"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidCutoff)

	cfg = DefaultConfig()
	cfg.Timezone = "Mars/Olympus_Mons"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidTimezone)
}

func TestEvaluate_TimeCutoff(t *testing.T) {
	f := mustNew(t)
	bars := []types.Bar{{Open: 100, High: 101, Low: 99, Close: 100}}

	res := f.Evaluate(Input{Bars: bars, Direction: types.LONG, Now: sessionOpen})
	assert.True(t, checkNamed(res, TimeCutoff).Passed)

	atCutoff := sessionOpen + (6 * time.Hour).Milliseconds()
	res = f.Evaluate(Input{Bars: bars, Direction: types.LONG, Now: atCutoff})
	assert.False(t, checkNamed(res, TimeCutoff).Passed, "15:30 itself is past the cutoff")
	assert.True(t, res.Allowed, "filters never block")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], TimeCutoff)
}

func TestEvaluate_ExtendedFromMeanOnTradeSideOnly(t *testing.T) {
	f := mustNew(t)
	bars := []types.Bar{{Open: 109, High: 110.5, Low: 108.5, Close: 110}}
	ind := indicators.Snapshot{ATR: known(2), VWAP: known(100)}

	long := f.Evaluate(Input{Bars: bars, Direction: types.LONG, Indicators: ind, Now: sessionOpen})
	assert.False(t, checkNamed(long, ExtendedMean).Passed)
	assert.Contains(t, checkNamed(long, ExtendedMean).Reason, "vwap")

	short := f.Evaluate(Input{Bars: bars, Direction: types.SHORT, Indicators: ind, Now: sessionOpen})
	assert.True(t, checkNamed(short, ExtendedMean).Passed, "price above the mean does not extend a short")
}

func TestEvaluate_ImpulseThenPullback(t *testing.T) {
	f := mustNew(t)
	bars := []types.Bar{
		{Open: 100, High: 101, Low: 99.5, Close: 100.8},
		{Open: 100.8, High: 103, Low: 100.5, Close: 102.8},
		{Open: 102.8, High: 105, Low: 102.5, Close: 104.8},
		{Open: 104.8, High: 104.9, Low: 104.2, Close: 104.4},
		{Open: 104.4, High: 104.6, Low: 104, Close: 104.3},
		{Open: 104.3, High: 104.7, Low: 104.1, Close: 104.5},
	}

	ind := indicators.Snapshot{ATR: known(2), EMA9: known(103)}
	res := f.Evaluate(Input{Bars: bars, Direction: types.LONG, Indicators: ind, Now: sessionOpen})
	assert.True(t, checkNamed(res, ImpulsePull).Passed, "1.0 pullback on a 2.0 ATR with a reclaim")

	ind.ATR = known(4)
	res = f.Evaluate(Input{Bars: bars, Direction: types.LONG, Indicators: ind, Now: sessionOpen})
	assert.Contains(t, checkNamed(res, ImpulsePull).Reason, "shallower")

	ind = indicators.Snapshot{ATR: known(2), EMA20: known(104.6)}
	res = f.Evaluate(Input{Bars: bars, Direction: types.LONG, Indicators: ind, Now: sessionOpen})
	assert.Contains(t, checkNamed(res, ImpulsePull).Reason, "reclaimed", "falls back to ema20 when ema9 is missing")
}

func TestEvaluate_RSIExhaustionLongOnly(t *testing.T) {
	f := mustNew(t)
	bars := []types.Bar{{Open: 102, High: 103.5, Low: 101.5, Close: 103}}
	ind := indicators.Snapshot{ATR: known(2), VWAP: known(100), RSI: known(75)}

	long := f.Evaluate(Input{Bars: bars, Direction: types.LONG, Indicators: ind, Now: sessionOpen})
	assert.False(t, checkNamed(long, RSIExhaustion).Passed)

	short := f.Evaluate(Input{Bars: bars, Direction: types.SHORT, Indicators: ind, Now: sessionOpen})
	assert.True(t, checkNamed(short, RSIExhaustion).Skipped)
}

func TestEvaluate_MissingInputsSkip(t *testing.T) {
	f := mustNew(t)
	bars := []types.Bar{{Open: 100, High: 101, Low: 99, Close: 100}}

	res := f.Evaluate(Input{Bars: bars, Direction: types.LONG, Now: sessionOpen})

	assert.True(t, res.Allowed)
	assert.Empty(t, res.Warnings)
	for _, name := range []string{ExtendedMean, ImpulsePull, RSIExhaustion} {
		c := checkNamed(res, name)
		assert.True(t, c.Skipped, name)
		assert.True(t, c.Passed, name)
	}
}
