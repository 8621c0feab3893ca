// Package timing scores how cleanly price is resolving a setup: break and acceptance, retest,
// VWAP reaction and volatility contraction, 25 points each.
package timing

import (
	"fmt"
	"math"

	"github.com/jwtly10/tradegate/internal/indicators"
	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/types"
)

const (
	ENTRY_WINDOW_OPEN    State = "ENTRY_WINDOW_OPEN"
	IMPULSE_DETECTED     State = "IMPULSE_DETECTED"
	PULLBACK_IN_PROGRESS State = "PULLBACK_IN_PROGRESS"
	WAITING              State = "WAITING"

	MinBars = 6

	full    = 25
	partial = 12
)

var timingLog = logging.New("timing")

type State string

type Config struct {
	ImpulseBarATR    float64 `yaml:"impulse_bar_atr" default:"0.6" validate:"gt=0"`
	ImpulseTwoBarATR float64 `yaml:"impulse_two_bar_atr" default:"0.9" validate:"gt=0"`
	// MinScore is the score below which the engine raises a timing blocker.
	MinScore int `yaml:"min_score" default:"40" validate:"gte=0,lte=100"`
}

func DefaultConfig() Config {
	return Config{ImpulseBarATR: 0.6, ImpulseTwoBarATR: 0.9, MinScore: 40}
}

type Input struct {
	Bars      []types.Bar
	Direction types.Direction
	Zone      *types.Zone
	VWAP      indicators.Value
	ATR       indicators.Value
}

type Components struct {
	Break        int `json:"break"`
	Retest       int `json:"retest"`
	VWAPReaction int `json:"vwapReaction"`
	Volatility   int `json:"volatility"`
}

type Signal struct {
	Score      int        `json:"score"`
	State      State      `json:"state"`
	Components Components `json:"components"`
	Reasons    []string   `json:"reasons,omitempty"`
}

func beyond(price, level float64, dir types.Direction) bool {
	if dir == types.SHORT {
		return price < level
	}
	return price > level
}

// acceptance scores 25 when the prior and current close are both through level, 12 when only
// the current close is.
func acceptance(prev, cur types.Bar, level float64, dir types.Direction) int {
	if !beyond(cur.Close, level, dir) {
		return 0
	}
	if beyond(prev.Close, level, dir) {
		return full
	}
	return partial
}

func retest(bars []types.Bar, level float64, dir types.Direction) int {
	cur := bars[len(bars)-1]
	if !beyond(cur.Close, level, dir) {
		return 0
	}
	for _, b := range bars[len(bars)-3:] {
		if b.Low <= level && b.High >= level {
			return full
		}
	}
	return 0
}

func avgRange(bars []types.Bar) float64 {
	sum := 0.0
	for _, b := range bars {
		sum += b.Range()
	}
	return sum / float64(len(bars))
}

func Evaluate(in Input, cfg Config) Signal {
	if len(in.Bars) < MinBars {
		return Signal{
			State:   WAITING,
			Reasons: []string{fmt.Sprintf("insufficient bars: have %d need %d", len(in.Bars), MinBars)},
		}
	}

	var sig Signal
	n := len(in.Bars)
	cur, prev := in.Bars[n-1], in.Bars[n-2]

	level, haveLevel := 0.0, false
	switch {
	case in.Zone != nil:
		level, haveLevel = in.Zone.Edge(in.Direction), true
	case in.VWAP.OK:
		level, haveLevel = in.VWAP.V, true
	default:
		sig.Reasons = append(sig.Reasons, "no reference level")
	}

	if haveLevel {
		sig.Components.Break = acceptance(prev, cur, level, in.Direction)
		sig.Components.Retest = retest(in.Bars, level, in.Direction)
	}

	if in.VWAP.OK {
		sig.Components.VWAPReaction = acceptance(prev, cur, in.VWAP.V, in.Direction)
	} else {
		sig.Reasons = append(sig.Reasons, "vwap unavailable")
	}

	recent, prior := avgRange(in.Bars[n-3:]), avgRange(in.Bars[n-6:n-3])
	switch {
	case prior <= 0:
		sig.Reasons = append(sig.Reasons, "no prior range")
	case recent <= 0.9*prior:
		sig.Components.Volatility = full
	case recent <= 1.1*prior:
		sig.Components.Volatility = partial
	}

	c := sig.Components
	sig.Score = c.Break + c.Retest + c.VWAPReaction + c.Volatility

	switch {
	case in.Zone != nil && in.Zone.Contains(cur.Close):
		sig.State = ENTRY_WINDOW_OPEN
	case in.ATR.OK && impulse(prev, cur, in.ATR.V, cfg):
		sig.State = IMPULSE_DETECTED
	case c.Break > 0 || c.Retest > 0:
		sig.State = PULLBACK_IN_PROGRESS
	default:
		sig.State = WAITING
	}

	timingLog.Debug("Timing evaluated",
		"score", sig.Score,
		"state", sig.State,
		"break", c.Break,
		"retest", c.Retest,
		"vwap", c.VWAPReaction,
		"volatility", c.Volatility)

	return sig
}

func impulse(prev, cur types.Bar, atr float64, cfg Config) bool {
	if atr <= 0 {
		return false
	}
	if cur.Range() >= cfg.ImpulseBarATR*atr {
		return true
	}
	twoBar := math.Max(prev.High, cur.High) - math.Min(prev.Low, cur.Low)
	return twoBar >= cfg.ImpulseTwoBarATR*atr
}
