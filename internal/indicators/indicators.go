// Package indicators computes EMA, ATR, VWAP and RSI over bounded bar windows.
//
// Every function returns (value, ok). ok == false means the window is insufficient and the
// value must be treated as missing, never as zero.
package indicators

import (
	"math"

	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/types"
)

const (
	DefaultATRPeriod  = 14
	DefaultVWAPPeriod = 30
	DefaultRSIPeriod  = 14
	FastEMAPeriod     = 9
	SlowEMAPeriod     = 20
)

var (
	atrLog  = logging.New("atr")
	emaLog  = logging.New("ema")
	vwapLog = logging.New("vwap")
	rsiLog  = logging.New("rsi")
)

// EMA seeds with the first close and smooths with k = 2/(period+1).
func EMA(closes []float64, period int) (float64, bool) {
	if period <= 1 || len(closes) == 0 {
		return 0, false
	}

	k := 2.0 / float64(period+1)
	value := closes[0]
	for _, c := range closes[1:] {
		value = c*k + value*(1-k)
	}

	emaLog.Debug("EMA computed", "period", period, "samples", len(closes), "value", value)
	return value, true
}

// TrueRange = max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(bar types.Bar, prevClose float64) float64 {
	tr1 := bar.High - bar.Low
	tr2 := math.Abs(bar.High - prevClose)
	tr3 := math.Abs(bar.Low - prevClose)
	return math.Max(tr1, math.Max(tr2, tr3))
}

// ATR averages the most recent `period` true ranges taken from a period+1 bar window.
func ATR(bars []types.Bar, period int) (float64, bool) {
	if period < 1 || len(bars) < 2 {
		return 0, false
	}

	window := tail(bars, period+1)
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += TrueRange(window[i], window[i-1].Close)
	}
	value := sum / float64(len(window)-1)

	atrLog.Debug("ATR computed", "period", period, "trueRanges", len(window)-1, "value", value)
	return value, true
}

// VWAP is the volume weighted typical price (H+L+C)/3 over the most recent `period` bars.
func VWAP(bars []types.Bar, period int) (float64, bool) {
	if period < 1 || len(bars) == 0 {
		return 0, false
	}

	var pv, vol float64
	for _, b := range tail(bars, period) {
		typical := (b.High + b.Low + b.Close) / 3.0
		pv += typical * b.Volume
		vol += b.Volume
	}
	if vol <= 0 {
		vwapLog.Debug("VWAP undefined, no volume", "period", period)
		return 0, false
	}

	value := pv / vol
	vwapLog.Debug("VWAP computed", "period", period, "value", value)
	return value, true
}

// RSI uses the simple average gain and loss over the last `period` close-to-close deltas.
func RSI(closes []float64, period int) (float64, bool) {
	if period < 1 || len(closes) < period+1 {
		return 0, false
	}

	window := closes[len(closes)-period-1:]
	var gain, loss float64
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	if avgLoss == 0 {
		return 100, true
	}
	value := 100 - (100 / (1 + avgGain/avgLoss))
	rsiLog.Debug("RSI computed", "period", period, "avgGain", avgGain, "avgLoss", avgLoss, "value", value)
	return value, true
}

// Closes extracts the close series.
func Closes(bars []types.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func tail(bars []types.Bar, n int) []types.Bar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}
