// Package filters runs the advisory entry checks. Nothing here blocks a play: failed checks
// become warnings that the verifier weighs.
package filters

import (
	"errors"
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/jwtly10/tradegate/internal/indicators"
	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/types"
)

const (
	TimeCutoff     = "time_cutoff"
	ExtendedMean   = "extended_from_mean"
	ImpulsePull    = "impulse_pullback"
	RSIExhaustion  = "rsi_exhaustion"
	latestCutoffHM = 15*60 + 45
)

var (
	ErrInvalidCutoff   = errors.New("invalid entry cutoff")
	ErrInvalidTimezone = errors.New("invalid timezone")

	filterLog = logging.New("filters")
)

type Config struct {
	Cutoff           string  `yaml:"cutoff" default:"15:30" validate:"required"`
	Timezone         string  `yaml:"timezone" default:"America/New_York" validate:"required"`
	ExtendedATR      float64 `yaml:"extended_atr" default:"1.5" validate:"gt=0"`
	PullbackMinATR   float64 `yaml:"pullback_min_atr" default:"0.5" validate:"gt=0"`
	PullbackMaxATR   float64 `yaml:"pullback_max_atr" default:"1.0" validate:"gtfield=PullbackMinATR"`
	PullbackLookback int     `yaml:"pullback_lookback" default:"6" validate:"gte=5"`
	RSIMax           float64 `yaml:"rsi_max" default:"70" validate:"gt=0,lte=100"`
	RSIExtensionATR  float64 `yaml:"rsi_extension_atr" default:"1.0" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		Cutoff:           "15:30",
		Timezone:         "America/New_York",
		ExtendedATR:      1.5,
		PullbackMinATR:   0.5,
		PullbackMaxATR:   1.0,
		PullbackLookback: 6,
		RSIMax:           70,
		RSIExtensionATR:  1.0,
	}
}

type Input struct {
	Bars       []types.Bar
	Direction  types.Direction
	Indicators indicators.Snapshot
	Now        int64
}

type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type Result struct {
	// Allowed is always true. It is kept on the result so consumers never infer a block.
	Allowed  bool     `json:"allowed"`
	Warnings []string `json:"warnings,omitempty"`
	Checks   []Check  `json:"checks"`
}

type Filters struct {
	cfg          Config
	cutoffMinute int
	loc          *time.Location
}

// New validates the cutoff and timezone up front so misconfiguration fails at startup.
func New(cfg Config) (*Filters, error) {
	minute, err := parseCutoff(cfg.Cutoff)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidTimezone, cfg.Timezone, err)
	}
	return &Filters{cfg: cfg, cutoffMinute: minute, loc: loc}, nil
}

func parseCutoff(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidCutoff, s, err)
	}
	minute := t.Hour()*60 + t.Minute()
	if minute > latestCutoffHM {
		return 0, fmt.Errorf("%w %q: must not be later than 15:45", ErrInvalidCutoff, s)
	}
	return minute, nil
}

// Validate checks the config without keeping the parsed result.
func (c Config) Validate() error {
	_, err := New(c)
	return err
}

func (f *Filters) Evaluate(in Input) Result {
	res := Result{Allowed: true}
	if len(in.Bars) == 0 {
		res.Checks = append(res.Checks, Check{Name: "input", Passed: true, Skipped: true, Reason: "no bars"})
		return res
	}

	for _, c := range []Check{
		f.timeCutoff(in),
		f.extended(in),
		f.pullback(in),
		f.rsiExhaustion(in),
	} {
		res.Checks = append(res.Checks, c)
		if !c.Passed {
			res.Warnings = append(res.Warnings, c.Name+": "+c.Reason)
		}
	}

	filterLog.Debug("Entry filters evaluated", "direction", in.Direction, "warnings", len(res.Warnings))
	return res
}

func skipped(name, reason string) Check {
	return Check{Name: name, Passed: true, Skipped: true, Reason: reason}
}

func (f *Filters) timeCutoff(in Input) Check {
	local := time.UnixMilli(in.Now).In(f.loc)
	minute := local.Hour()*60 + local.Minute()
	if minute >= f.cutoffMinute {
		return Check{Name: TimeCutoff, Reason: fmt.Sprintf("%s is at or after the %s cutoff", local.Format("15:04"), f.cfg.Cutoff)}
	}
	return Check{Name: TimeCutoff, Passed: true}
}

func (f *Filters) extended(in Input) Check {
	atr := in.Indicators.ATR
	if !atr.OK || atr.V <= 0 {
		return skipped(ExtendedMean, "atr unavailable")
	}
	price := in.Bars[len(in.Bars)-1].Close
	limit := f.cfg.ExtendedATR * atr.V

	refs := []struct {
		name string
		v    indicators.Value
	}{
		{"vwap", in.Indicators.VWAP},
		{"ema20", in.Indicators.EMA20},
		{"ema9", in.Indicators.EMA9},
	}
	checked := 0
	for _, ref := range refs {
		if !ref.v.OK {
			continue
		}
		checked++
		dist := price - ref.v.V
		if in.Direction == types.SHORT {
			dist = -dist
		}
		if dist > limit {
			return Check{Name: ExtendedMean, Reason: fmt.Sprintf("%.2f ATR from %s", dist/atr.V, ref.name)}
		}
	}
	if checked == 0 {
		return skipped(ExtendedMean, "no mean available")
	}
	return Check{Name: ExtendedMean, Passed: true}
}

// pullback measures the retrace off the extreme of the lookback window and requires the close
// to have reclaimed the fast EMA (slow EMA when the fast one is missing).
func (f *Filters) pullback(in Input) Check {
	atr := in.Indicators.ATR
	if !atr.OK || atr.V <= 0 {
		return skipped(ImpulsePull, "atr unavailable")
	}
	window := in.Bars
	if len(window) > f.cfg.PullbackLookback {
		window = window[len(window)-f.cfg.PullbackLookback:]
	}

	extremeIdx := 0
	for i, b := range window {
		if in.Direction == types.SHORT && b.Low < window[extremeIdx].Low {
			extremeIdx = i
		}
		if in.Direction != types.SHORT && b.High > window[extremeIdx].High {
			extremeIdx = i
		}
	}

	depth := 0.0
	for _, b := range window[extremeIdx+1:] {
		if in.Direction == types.SHORT {
			depth = math.Max(depth, b.High-window[extremeIdx].Low)
		} else {
			depth = math.Max(depth, window[extremeIdx].High-b.Low)
		}
	}
	depthATR := depth / atr.V

	if depthATR < f.cfg.PullbackMinATR {
		return Check{Name: ImpulsePull, Reason: fmt.Sprintf("pullback %.2f ATR shallower than %.2f", depthATR, f.cfg.PullbackMinATR)}
	}

	ema := in.Indicators.EMA9
	if !ema.OK {
		ema = in.Indicators.EMA20
	}
	if !ema.OK {
		return skipped(ImpulsePull, "ema unavailable for reclaim")
	}

	price := in.Bars[len(in.Bars)-1].Close
	reclaimed := price > ema.V
	if in.Direction == types.SHORT {
		reclaimed = price < ema.V
	}
	if !reclaimed {
		return Check{Name: ImpulsePull, Reason: "close has not reclaimed the ema"}
	}
	if depthATR > f.cfg.PullbackMaxATR {
		return Check{Name: ImpulsePull, Reason: fmt.Sprintf("pullback %.2f ATR deeper than %.2f", depthATR, f.cfg.PullbackMaxATR)}
	}
	return Check{Name: ImpulsePull, Passed: true}
}

func (f *Filters) rsiExhaustion(in Input) Check {
	if in.Direction != types.LONG {
		return skipped(RSIExhaustion, "long only")
	}
	ind := in.Indicators
	if !ind.RSI.OK || !ind.VWAP.OK || !ind.ATR.OK {
		return skipped(RSIExhaustion, "rsi, vwap or atr unavailable")
	}
	price := in.Bars[len(in.Bars)-1].Close
	if ind.RSI.V > f.cfg.RSIMax && price-ind.VWAP.V > f.cfg.RSIExtensionATR*ind.ATR.V {
		return Check{Name: RSIExhaustion, Reason: fmt.Sprintf("rsi %.1f with price %.2f ATR above vwap", ind.RSI.V, (price-ind.VWAP.V)/ind.ATR.V)}
	}
	return Check{Name: RSIExhaustion, Passed: true}
}
