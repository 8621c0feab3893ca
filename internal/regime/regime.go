// Package regime classifies market condition from VWAP slope, ATR expansion and pivot
// structure, and derives the higher-timeframe macro bias.
package regime

import (
	"fmt"
	"math"

	"github.com/jwtly10/tradegate/internal/indicators"
	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/structure"
	"github.com/jwtly10/tradegate/internal/types"
)

const (
	TREND_UP   Regime = "TREND_UP"
	TREND_DOWN Regime = "TREND_DOWN"
	CHOP       Regime = "CHOP"
	TRANSITION Regime = "TRANSITION"
	UNKNOWN    Regime = "UNKNOWN"

	UP   Slope = "UP"
	DOWN Slope = "DOWN"
	FLAT Slope = "FLAT"

	BiasLong    Bias = "LONG"
	BiasShort   Bias = "SHORT"
	BiasNeutral Bias = "NEUTRAL"
)

var regimeLog = logging.New("regime")

type Regime string

type Slope string

type Bias string

// Direction maps a directional bias onto a trade side. NEUTRAL has none.
func (b Bias) Direction() (types.Direction, bool) {
	switch b {
	case BiasLong:
		return types.LONG, true
	case BiasShort:
		return types.SHORT, true
	}
	return "", false
}

type Config struct {
	MinBars           int     `yaml:"min_bars" default:"40" validate:"gte=12"`
	VWAPPeriod        int     `yaml:"vwap_period" default:"30" validate:"gte=2"`
	ATRPeriod         int     `yaml:"atr_period" default:"14" validate:"gte=2"`
	SlopeLookback     int     `yaml:"slope_lookback" default:"10" validate:"gte=1"`
	SlopeThresholdPct float64 `yaml:"slope_threshold_pct" default:"0.02" validate:"gt=0"`
	MildSlopeMaxPct   float64 `yaml:"mild_slope_max_pct" default:"0.08" validate:"gtfield=SlopeThresholdPct"`
	ATRRisingPct      float64 `yaml:"atr_rising_pct" default:"8" validate:"gt=0"`
	ImpulseATRMult    float64 `yaml:"impulse_atr_mult" default:"0.8" validate:"gt=0"`

	Structure structure.Config `yaml:"structure"`
}

func DefaultConfig() Config {
	return Config{
		MinBars:           40,
		VWAPPeriod:        indicators.DefaultVWAPPeriod,
		ATRPeriod:         indicators.DefaultATRPeriod,
		SlopeLookback:     10,
		SlopeThresholdPct: 0.02,
		MildSlopeMaxPct:   0.08,
		ATRRisingPct:      8,
		ImpulseATRMult:    0.8,
		Structure:         structure.DefaultConfig(),
	}
}

type Result struct {
	Regime       Regime         `json:"regime"`
	BullScore    int            `json:"bullScore"`
	BearScore    int            `json:"bearScore"`
	VWAP         float64        `json:"vwap"`
	VWAPSlope    Slope          `json:"vwapSlope"`
	VWAPSlopePct float64        `json:"vwapSlopePct"`
	ATR          float64        `json:"atr"`
	ATRSlopePct  float64        `json:"atrSlopePct"`
	ATRRising    bool           `json:"atrRising"`
	ImpulseFlip  bool           `json:"impulseFlip"`
	Structure    structure.Kind `json:"structure"`
	Reasons      []string       `json:"reasons,omitempty"`
}

// evidence is the three-vote layer shared by Classify and MacroBias.
type evidence struct {
	bull, bear int
	vwap       float64
	vwapOK     bool
	slope      Slope
	slopePct   float64
	structure  structure.Result
	reasons    []string
}

func collect(bars []types.Bar, cfg Config) evidence {
	ev := evidence{slope: FLAT}
	last := bars[len(bars)-1]

	ev.vwap, ev.vwapOK = indicators.VWAP(bars, cfg.VWAPPeriod)
	if !ev.vwapOK {
		ev.reasons = append(ev.reasons, "vwap unavailable")
	} else {
		switch {
		case last.Close > ev.vwap:
			ev.bull++
		case last.Close < ev.vwap:
			ev.bear++
		}
	}

	if len(bars) > cfg.SlopeLookback {
		prev, ok := indicators.VWAP(bars[:len(bars)-cfg.SlopeLookback], cfg.VWAPPeriod)
		if ok && ev.vwapOK && prev != 0 {
			ev.slopePct = (ev.vwap - prev) / prev * 100
			switch {
			case ev.slopePct > cfg.SlopeThresholdPct:
				ev.slope = UP
				ev.bull++
			case ev.slopePct < -cfg.SlopeThresholdPct:
				ev.slope = DOWN
				ev.bear++
			}
		} else {
			ev.reasons = append(ev.reasons, "vwap slope unavailable")
		}
	}

	ev.structure = structure.Detect(bars, cfg.Structure)
	switch ev.structure.Structure {
	case structure.BULLISH:
		ev.bull++
	case structure.BEARISH:
		ev.bear++
	default:
		if ev.structure.Reason != "" {
			ev.reasons = append(ev.reasons, "structure: "+ev.structure.Reason)
		}
	}

	return ev
}

// Classify returns the regime of the most recent bar. Below MinBars the regime is UNKNOWN.
func Classify(bars []types.Bar, cfg Config) Result {
	if len(bars) < cfg.MinBars {
		return Result{
			Regime:    UNKNOWN,
			VWAPSlope: FLAT,
			Structure: structure.MIXED,
			Reasons:   []string{fmt.Sprintf("insufficient bars: have %d need %d", len(bars), cfg.MinBars)},
		}
	}

	ev := collect(bars, cfg)
	res := Result{
		BullScore:    ev.bull,
		BearScore:    ev.bear,
		VWAP:         ev.vwap,
		VWAPSlope:    ev.slope,
		VWAPSlopePct: ev.slopePct,
		Structure:    ev.structure.Structure,
		Reasons:      ev.reasons,
	}

	atr, atrOK := indicators.ATR(bars, cfg.ATRPeriod)
	if atrOK {
		res.ATR = atr
		if len(bars) > cfg.SlopeLookback {
			if prevATR, ok := indicators.ATR(bars[:len(bars)-cfg.SlopeLookback], cfg.ATRPeriod); ok && prevATR > 0 {
				res.ATRSlopePct = (atr - prevATR) / prevATR * 100
				res.ATRRising = res.ATRSlopePct >= cfg.ATRRisingPct
			}
		}
		res.ImpulseFlip = impulseFlip(bars, atr, cfg.ImpulseATRMult)
	} else {
		res.Reasons = append(res.Reasons, "atr unavailable")
	}

	absSlope := math.Abs(res.VWAPSlopePct)
	mildMixed := res.Structure == structure.MIXED && absSlope >= cfg.SlopeThresholdPct && absSlope <= cfg.MildSlopeMaxPct

	switch {
	case res.ATRRising && (res.ImpulseFlip || mildMixed):
		res.Regime = TRANSITION
		if res.ImpulseFlip {
			res.Reasons = append(res.Reasons, "atr expanding with impulse flip")
		} else {
			res.Reasons = append(res.Reasons, "atr expanding with mixed structure and mild slope")
		}
	case res.BearScore >= 2 && res.BearScore > res.BullScore:
		res.Regime = TREND_DOWN
	case res.BullScore >= 2 && res.BullScore > res.BearScore:
		res.Regime = TREND_UP
	default:
		res.Regime = CHOP
	}

	regimeLog.Debug("Regime classified",
		"regime", res.Regime,
		"bull", res.BullScore,
		"bear", res.BearScore,
		"vwapSlopePct", res.VWAPSlopePct,
		"atrSlopePct", res.ATRSlopePct,
		"impulseFlip", res.ImpulseFlip,
		"structure", res.Structure)

	return res
}

// impulseFlip reports two consecutive close-to-close moves of opposite sign over the last three
// bars, each larger than mult x ATR.
func impulseFlip(bars []types.Bar, atr, mult float64) bool {
	if len(bars) < 3 || atr <= 0 {
		return false
	}
	n := len(bars)
	first := bars[n-2].Close - bars[n-3].Close
	second := bars[n-1].Close - bars[n-2].Close
	limit := mult * atr
	return first*second < 0 && math.Abs(first) > limit && math.Abs(second) > limit
}

// MacroBias is the three-vote evidence without the volatility layer.
func MacroBias(bars []types.Bar, cfg Config) Bias {
	if len(bars) < cfg.MinBars {
		return BiasNeutral
	}
	ev := collect(bars, cfg)
	switch {
	case ev.bull >= 2 && ev.bull > ev.bear:
		return BiasLong
	case ev.bear >= 2 && ev.bear > ev.bull:
		return BiasShort
	}
	return BiasNeutral
}

// AllowsDirection vetoes new setups against the regime. CHOP vetoes both sides.
func AllowsDirection(r Regime, dir types.Direction) bool {
	switch r {
	case CHOP:
		return false
	case TREND_UP:
		return dir != types.SHORT
	case TREND_DOWN:
		return dir != types.LONG
	}
	return true
}
