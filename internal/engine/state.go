package engine

import (
	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/gate"
)

const (
	WAITING_FOR_THESIS   Phase = "WAITING_FOR_THESIS"
	BIAS_ESTABLISHED     Phase = "BIAS_ESTABLISHED"
	EXTENSION            Phase = "EXTENSION"
	WAITING_FOR_PULLBACK Phase = "WAITING_FOR_PULLBACK"
	WAITING_FOR_ENTRY    Phase = "WAITING_FOR_ENTRY"
	IN_TRADE             Phase = "IN_TRADE"
)

type Phase string

// State is the per-symbol execution state. Each phase is its own type and carries only the
// fields that are valid in it.
type State interface {
	Phase() Phase
}

type WaitingForThesis struct{}

// BiasEstablished holds an ARMED latch waiting for its trigger.
type BiasEstablished struct {
	Latch *gate.Latch
}

// Extension follows a trigger: the gate is TRIGGERED and its impulse window is running.
type Extension struct {
	Latch *gate.Latch
	Gate  *gate.ResolutionGate
}

// WaitingForPullback is Extension with entry refused by chase protection.
type WaitingForPullback struct {
	Latch *gate.Latch
	Gate  *gate.ResolutionGate
}

type WaitingForEntry struct {
	Play *decision.Play
}

type InTrade struct {
	Play *decision.Play
}

func (WaitingForThesis) Phase() Phase   { return WAITING_FOR_THESIS }
func (BiasEstablished) Phase() Phase    { return BIAS_ESTABLISHED }
func (Extension) Phase() Phase          { return EXTENSION }
func (WaitingForPullback) Phase() Phase { return WAITING_FOR_PULLBACK }
func (WaitingForEntry) Phase() Phase    { return WAITING_FOR_ENTRY }
func (InTrade) Phase() Phase            { return IN_TRADE }

// parts exposes the optional pieces of a state for checkpointing.
func parts(s State) (*gate.Latch, *gate.ResolutionGate, *decision.Play) {
	switch st := s.(type) {
	case BiasEstablished:
		return st.Latch, nil, nil
	case Extension:
		return st.Latch, st.Gate, nil
	case WaitingForPullback:
		return st.Latch, st.Gate, nil
	case WaitingForEntry:
		return nil, nil, st.Play
	case InTrade:
		return nil, nil, st.Play
	}
	return nil, nil, nil
}

// fromParts rebuilds a state from a checkpoint. A phase whose required pieces are missing
// falls back to WaitingForThesis.
func fromParts(phase Phase, l *gate.Latch, g *gate.ResolutionGate, p *decision.Play) (State, bool) {
	switch phase {
	case WAITING_FOR_THESIS:
		return WaitingForThesis{}, true
	case BIAS_ESTABLISHED:
		if l != nil {
			return BiasEstablished{Latch: l}, true
		}
	case EXTENSION:
		if l != nil && g != nil {
			return Extension{Latch: l, Gate: g}, true
		}
	case WAITING_FOR_PULLBACK:
		if l != nil && g != nil {
			return WaitingForPullback{Latch: l, Gate: g}, true
		}
	case WAITING_FOR_ENTRY:
		if p != nil {
			return WaitingForEntry{Play: p}, true
		}
	case IN_TRADE:
		if p != nil {
			return InTrade{Play: p}, true
		}
	}
	return WaitingForThesis{}, false
}
