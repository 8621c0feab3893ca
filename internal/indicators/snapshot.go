package indicators

import "github.com/jwtly10/tradegate/internal/types"

// Value is an optional indicator reading.
type Value struct {
	V  float64 `json:"v"`
	OK bool    `json:"ok"`
}

func value(v float64, ok bool) Value {
	return Value{V: v, OK: ok}
}

// Snapshot holds the default-period readings the pipeline consumes on every bar.
type Snapshot struct {
	ATR   Value `json:"atr"`
	VWAP  Value `json:"vwap"`
	RSI   Value `json:"rsi"`
	EMA9  Value `json:"ema9"`
	EMA20 Value `json:"ema20"`
}

// Compute derives a Snapshot from the given window. Nothing is cached.
func Compute(bars []types.Bar) Snapshot {
	closes := Closes(bars)
	return Snapshot{
		ATR:   value(ATR(bars, DefaultATRPeriod)),
		VWAP:  value(VWAP(bars, DefaultVWAPPeriod)),
		RSI:   value(RSI(closes, DefaultRSIPeriod)),
		EMA9:  value(EMA(closes, FastEMAPeriod)),
		EMA20: value(EMA(closes, SlowEMAPeriod)),
	}
}
