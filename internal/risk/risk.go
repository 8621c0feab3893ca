// Package risk evaluates an armed play against a bar close. Wicks never count.
package risk

import (
	"math"

	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/types"
)

// ThreatFraction of the initial risk marks the band above (LONG) or below (SHORT) the stop in
// which a close is flagged as threatening.
const ThreatFraction = 0.25

var riskLog = logging.New("risk")

type Evaluation struct {
	StopHit         bool       `json:"stopHit"`
	StopThreatened  bool       `json:"stopThreatened"`
	InEntryZone     bool       `json:"inEntryZone"`
	Risk            float64    `json:"risk"`
	DistanceDollars float64    `json:"distanceDollars"`
	DistancePct     float64    `json:"distancePct"`
	RMultiples      [3]float64 `json:"rMultiples"`
	TargetsReached  int        `json:"targetsReached"`
}

// RMultipleT1 is the reward to the first target in units of risk.
func (e Evaluation) RMultipleT1() float64 {
	return e.RMultiples[0]
}

func Evaluate(p decision.Play, price float64) Evaluation {
	ev := Evaluation{
		Risk:        p.Risk(),
		InEntryZone: p.EntryZone.Contains(price),
	}

	if p.Direction == types.SHORT {
		ev.StopHit = price >= p.Stop
		ev.DistanceDollars = p.Stop - price
	} else {
		ev.StopHit = price <= p.Stop
		ev.DistanceDollars = price - p.Stop
	}
	if price != 0 {
		ev.DistancePct = 100 * ev.DistanceDollars / price
	}
	ev.StopThreatened = !ev.StopHit && ev.Risk > 0 && ev.DistanceDollars <= ThreatFraction*ev.Risk

	for i, t := range p.Targets.List() {
		ev.RMultiples[i] = RMultiple(p.Direction, p.EntryPrice, t, ev.Risk)
	}
	ev.TargetsReached = TargetsReached(p, price)

	riskLog.Debug("Play evaluated",
		"play", p.ID,
		"close", price,
		"stop", p.Stop,
		"hit", ev.StopHit,
		"threatened", ev.StopThreatened,
		"distance", ev.DistanceDollars,
		"targets", ev.TargetsReached)

	return ev
}

// RMultiple is (target - entry)/risk for LONG and (entry - target)/risk for SHORT. Zero risk
// yields 0.
func RMultiple(dir types.Direction, entry, target, risk float64) float64 {
	if risk <= 0 || math.IsNaN(risk) {
		return 0
	}
	if dir == types.SHORT {
		return (entry - target) / risk
	}
	return (target - entry) / risk
}

// TargetsReached counts targets at or beyond the close, in order. A later target never counts
// without the earlier ones.
func TargetsReached(p decision.Play, price float64) int {
	n := 0
	for _, t := range p.Targets.List() {
		reached := price >= t
		if p.Direction == types.SHORT {
			reached = price <= t
		}
		if !reached {
			break
		}
		n++
	}
	return n
}
