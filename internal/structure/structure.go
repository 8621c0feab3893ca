package structure

import (
	"fmt"

	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/types"
)

const (
	BULLISH Kind = "BULLISH"
	BEARISH Kind = "BEARISH"
	MIXED   Kind = "MIXED"
)

var structureLog = logging.New("structure")

type Kind string

type Pivot struct {
	Index int     `json:"index"` // index within the lookback window
	TS    int64   `json:"ts"`
	Price float64 `json:"price"`
}

type Result struct {
	Structure  Kind    `json:"structure"`
	PivotHighs []Pivot `json:"pivotHighs"`
	PivotLows  []Pivot `json:"pivotLows"`
	Reason     string  `json:"reason,omitempty"`
}

type Config struct {
	Lookback   int `yaml:"lookback" default:"22" validate:"gte=5"`
	PivotWidth int `yaml:"pivot_width" default:"2" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{Lookback: 22, PivotWidth: 2}
}

// Detect classifies the last two pivot highs and lows of the lookback window.
func Detect(bars []types.Bar, cfg Config) Result {
	window := bars
	if len(window) > cfg.Lookback {
		window = window[len(window)-cfg.Lookback:]
	}

	res := Result{
		Structure:  MIXED,
		PivotHighs: FindPivotHighs(window, cfg.PivotWidth),
		PivotLows:  FindPivotLows(window, cfg.PivotWidth),
	}

	if len(res.PivotHighs) < 2 || len(res.PivotLows) < 2 {
		res.Reason = fmt.Sprintf("insufficient pivots: highs=%d lows=%d", len(res.PivotHighs), len(res.PivotLows))
		structureLog.Debug("Structure mixed", "reason", res.Reason, "bars", len(window))
		return res
	}

	lastHigh, prevHigh := res.PivotHighs[len(res.PivotHighs)-1], res.PivotHighs[len(res.PivotHighs)-2]
	lastLow, prevLow := res.PivotLows[len(res.PivotLows)-1], res.PivotLows[len(res.PivotLows)-2]

	higherHigh := lastHigh.Price > prevHigh.Price
	higherLow := lastLow.Price > prevLow.Price
	lowerHigh := lastHigh.Price < prevHigh.Price
	lowerLow := lastLow.Price < prevLow.Price

	switch {
	case higherHigh && higherLow:
		res.Structure = BULLISH
	case lowerHigh && lowerLow:
		res.Structure = BEARISH
	default:
		res.Reason = "pivots disagree"
	}

	structureLog.Debug("Structure classified",
		"structure", res.Structure,
		"lastHigh", lastHigh.Price,
		"prevHigh", prevHigh.Price,
		"lastLow", lastLow.Price,
		"prevLow", prevLow.Price)

	return res
}

// FindPivotHighs returns bars whose high strictly exceeds every high within width on both sides.
func FindPivotHighs(bars []types.Bar, width int) []Pivot {
	var pivots []Pivot
	for i := width; i < len(bars)-width; i++ {
		current := bars[i].High
		isPivot := true
		for j := 1; j <= width; j++ {
			if bars[i-j].High >= current || bars[i+j].High >= current {
				isPivot = false
				break
			}
		}
		if isPivot {
			pivots = append(pivots, Pivot{Index: i, TS: bars[i].TS, Price: current})
		}
	}
	return pivots
}

// FindPivotLows returns bars whose low is strictly below every low within width on both sides.
func FindPivotLows(bars []types.Bar, width int) []Pivot {
	var pivots []Pivot
	for i := width; i < len(bars)-width; i++ {
		current := bars[i].Low
		isPivot := true
		for j := 1; j <= width; j++ {
			if bars[i-j].Low <= current || bars[i+j].Low <= current {
				isPivot = false
				break
			}
		}
		if isPivot {
			pivots = append(pivots, Pivot{Index: i, TS: bars[i].TS, Price: current})
		}
	}
	return pivots
}

// LastPivotLow returns the most recent pivot low, if any.
func (r Result) LastPivotLow() (Pivot, bool) {
	if len(r.PivotLows) == 0 {
		return Pivot{}, false
	}
	return r.PivotLows[len(r.PivotLows)-1], true
}

// LastPivotHigh returns the most recent pivot high, if any.
func (r Result) LastPivotHigh() (Pivot, bool) {
	if len(r.PivotHighs) == 0 {
		return Pivot{}, false
	}
	return r.PivotHighs[len(r.PivotHighs)-1], true
}
