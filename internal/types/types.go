package types

import (
	"fmt"
	"math"
	"time"
)

const (
	LONG  Direction = "LONG"
	SHORT Direction = "SHORT"

	M1  Timeframe = "1m"
	M5  Timeframe = "5m"
	M15 Timeframe = "15m"
)

// Bar is a closed OHLCV bar. TS is the bar close time in unix milliseconds.
type Bar struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Valid reports whether every price and the volume are finite, the volume is not negative and
// high >= max(open, close), low <= min(open, close).
func (b Bar) Valid() bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Volume >= 0 && b.High >= math.Max(b.Open, b.Close) && b.Low <= math.Min(b.Open, b.Close)
}

// Range returns high - low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Time returns the close time as a UTC time.Time.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.TS).UTC()
}

type Direction string

type Timeframe string

var timeframeToDuration = map[Timeframe]time.Duration{
	M1:  1 * time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
}

func (tf Timeframe) ToDuration() (time.Duration, error) {
	d, ok := timeframeToDuration[tf]
	if !ok {
		return 0, fmt.Errorf("invalid timeframe: %s", tf)
	}
	return d, nil
}

func (tf Timeframe) MustToDuration() time.Duration {
	d, err := tf.ToDuration()
	if err != nil {
		panic(err)
	}
	return d
}

// Millis returns the timeframe length in milliseconds, 0 for unknown timeframes.
func (tf Timeframe) Millis() int64 {
	return timeframeToDuration[tf].Milliseconds()
}

// Finer reports whether tf is a strictly shorter granularity than other.
func (tf Timeframe) Finer(other Timeframe) bool {
	return tf.Millis() < other.Millis()
}

func (tf Timeframe) String() string {
	return string(tf)
}

// Zone is a price band with Low < High.
type Zone struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether price is inside the zone, edges included.
func (z Zone) Contains(price float64) bool {
	return price >= z.Low && price <= z.High
}

func (z Zone) Mid() float64 {
	return (z.Low + z.High) / 2
}

// Edge returns the boundary a move in dir has to clear: the top for LONG, the bottom for SHORT.
func (z Zone) Edge(dir Direction) float64 {
	if dir == SHORT {
		return z.Low
	}
	return z.High
}
