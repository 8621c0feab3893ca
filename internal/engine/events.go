package engine

import (
	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/gate"
	"github.com/jwtly10/tradegate/internal/regime"
	"github.com/jwtly10/tradegate/internal/risk"
	"github.com/jwtly10/tradegate/internal/types"
)

// Event payloads. Each holds copies so an event stays valid after the engine moves on.

type RegimeChange struct {
	From      regime.Regime `json:"from"`
	To        regime.Regime `json:"to"`
	BullScore int           `json:"bullScore"`
	BearScore int           `json:"bearScore"`
}

type LatchUpdate struct {
	Latch gate.Latch `json:"latch"`
}

type GateUpdate struct {
	Latch gate.Latch          `json:"latch"`
	Gate  gate.ResolutionGate `json:"gate"`
}

type EntryBlock struct {
	Decision decision.Decision `json:"decision"`
	Chase    gate.Chase        `json:"chase"`
}

type PlayUpdate struct {
	Play decision.Play `json:"play"`
}

type StopUpdate struct {
	Play       decision.Play   `json:"play"`
	Evaluation risk.Evaluation `json:"evaluation"`
}

type TargetUpdate struct {
	PlayID    string          `json:"playId"`
	Direction types.Direction `json:"direction"`
	Target    int             `json:"target"`
	Price     float64         `json:"price"`
	Close     float64         `json:"close"`
	RMultiple float64         `json:"rMultiple"`
}

// emitter collects the events of one decision bar, all stamped with the bar's TS.
type emitter struct {
	symbol  string
	ts      int64
	events  []types.Event
	metrics Metrics
}

func (em *emitter) emit(t types.EventType, data any) {
	em.events = append(em.events, types.Event{Type: t, Symbol: em.symbol, Timestamp: em.ts, Data: data})
	em.metrics.EventEmitted(em.symbol, string(t))
}
