package engine

import (
	"fmt"
	"log/slog"

	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/filters"
	"github.com/jwtly10/tradegate/internal/gate"
	"github.com/jwtly10/tradegate/internal/indicators"
	"github.com/jwtly10/tradegate/internal/regime"
	"github.com/jwtly10/tradegate/internal/risk"
	"github.com/jwtly10/tradegate/internal/structure"
	"github.com/jwtly10/tradegate/internal/timing"
	"github.com/jwtly10/tradegate/internal/types"
)

// analysis is everything recomputed from history on a decision bar.
type analysis struct {
	bar        types.Bar
	ind        indicators.Snapshot
	structure  structure.Result
	regime     regime.Result
	bias       regime.Bias
	sufficient bool
}

func (e *Engine) macroBars(s *symbolState) []types.Bar {
	if e.cfg.MacroTimeframe == e.cfg.DecisionTimeframe || len(s.macro) < e.cfg.Regime.MinBars {
		return s.history
	}
	return s.macro
}

func (e *Engine) analyze(s *symbolState) analysis {
	a := analysis{
		ind:       indicators.Compute(s.history),
		structure: structure.Detect(s.history, e.cfg.Regime.Structure),
		regime:    regime.Classify(s.history, e.cfg.Regime),
		bias:      regime.MacroBias(e.macroBars(s), e.cfg.Regime),
	}
	if n := len(s.history); n > 0 {
		a.bar = s.history[n-1]
	}
	a.sufficient = len(s.history) >= e.cfg.Regime.MinBars && a.ind.ATR.OK
	return a
}

// refresh recomputes analysis and resets the diagnostics for the latest bar.
func (e *Engine) refresh(s *symbolState) analysis {
	a := e.analyze(s)
	s.diag = Diagnostics{
		Symbol:         s.name,
		TS:             a.bar.TS,
		Bars:           len(s.history),
		MacroBars:      len(s.macro),
		SufficientData: a.sufficient,
		Regime:         a.regime,
		Structure:      a.structure,
		MacroBias:      a.bias,
		Indicators:     a.ind,
		Phase:          s.state.Phase(),
	}
	if !a.sufficient {
		s.diag.Reason = INSUFFICIENT_DATA
	}
	if len(a.regime.Reasons) > 0 {
		s.diag.stage(stageRegime, a.regime.Reasons[0])
	}
	return a
}

func (e *Engine) onDecisionBar(s *symbolState, bar types.Bar, now int64) []types.Event {
	if !s.addHistory(bar, e.cfg.MaxHistory) {
		e.stale(s, e.cfg.DecisionTimeframe, bar.TS, s.history[len(s.history)-1].TS)
		return nil
	}
	if e.cfg.MacroTimeframe != e.cfg.DecisionTimeframe {
		if completed, ok := s.macroAgg.Add(bar); ok {
			s.addMacro(completed, e.cfg.MaxHistory)
		}
	}

	a := e.refresh(s)
	em := &emitter{symbol: s.name, ts: bar.TS, metrics: e.metrics}

	if r := a.regime.Regime; r != s.lastRegime {
		if s.lastRegime != "" {
			em.emit(types.RegimeChanged, RegimeChange{From: s.lastRegime, To: r, BullScore: a.regime.BullScore, BearScore: a.regime.BearScore})
			engineLog.Debug("Regime changed", "symbol", s.name, "from", s.lastRegime, "to", r)
		}
		s.lastRegime = r
		e.metrics.RegimeChanged(s.name, string(r))
	}

	s.state = e.step(s, a, now, em)
	s.diag.Phase = s.state.Phase()
	return em.events
}

// step advances the state machine by one decision bar. An active play is evaluated before
// anything else; without one the latch and gate move.
func (e *Engine) step(s *symbolState, a analysis, now int64, em *emitter) State {
	switch st := s.state.(type) {
	case WaitingForEntry:
		return e.stepWaitingForEntry(s, st.Play, a, now, em)
	case InTrade:
		return e.stepInTrade(s, st.Play, a, em)
	case BiasEstablished:
		return e.stepLatch(s, st.Latch, a, now, em)
	case Extension:
		return e.stepGate(s, st.Latch, st.Gate, false, a, now, em)
	case WaitingForPullback:
		return e.stepGate(s, st.Latch, st.Gate, true, a, now, em)
	default:
		return e.stepThesis(s, a, now, em)
	}
}

func (e *Engine) stepThesis(s *symbolState, a analysis, now int64, em *emitter) State {
	if !a.sufficient {
		s.diag.stage(stageLatch, "insufficient data")
		return WaitingForThesis{}
	}
	dir, ok := a.bias.Direction()
	if !ok {
		s.diag.stage(stageLatch, "no macro bias")
		return WaitingForThesis{}
	}
	if !regime.AllowsDirection(a.regime.Regime, dir) {
		s.diag.stage(stageLatch, fmt.Sprintf("regime %s does not allow %s", a.regime.Regime, dir))
		return WaitingForThesis{}
	}

	l, err := gate.Propose(dir, s.history, a.ind.ATR.V, a.structure, e.barMs, now, e.cfg.Gate)
	if err != nil {
		s.diag.stage(stageLatch, err.Error())
		return WaitingForThesis{}
	}

	slog.Info("Latch armed", "symbol", s.name, "side", l.Side, "trigger", l.Trigger.Price, "stop", l.Stop.Price, "expires", l.ExpiresAtTS)
	s.diag.stage(stageLatch, "armed")
	em.emit(types.OpportunityLatch, LatchUpdate{Latch: *l})
	return BiasEstablished{Latch: l}
}

func (e *Engine) stepLatch(s *symbolState, l *gate.Latch, a analysis, now int64, em *emitter) State {
	switch {
	case !regime.AllowsDirection(a.regime.Regime, l.Side) && a.regime.Regime != regime.UNKNOWN:
		l.Invalidate("regime_veto")
	case a.bias != regime.BiasNeutral:
		if dir, _ := a.bias.Direction(); dir != l.Side {
			l.Invalidate("macro bias flipped")
		}
	}
	if l.Status == gate.INVALIDATED {
		s.diag.stage(stageLatch, l.Reason)
		em.emit(types.LatchInvalidated, LatchUpdate{Latch: *l})
		return WaitingForThesis{}
	}

	switch l.Observe(a.bar.Close, now) {
	case gate.EXPIRED:
		s.diag.stage(stageLatch, l.Reason)
		em.emit(types.LatchExpired, LatchUpdate{Latch: *l})
		return WaitingForThesis{}
	case gate.INVALIDATED:
		s.diag.stage(stageLatch, l.Reason)
		em.emit(types.LatchInvalidated, LatchUpdate{Latch: *l})
		return WaitingForThesis{}
	case gate.TRIGGERED:
	default:
		s.diag.stage(stageLatch, "waiting for trigger")
		return BiasEstablished{Latch: l}
	}

	g, err := gate.ArmGate(l.Side, l.Trigger.Price, l.Stop.Price, a.bar.TS, int64(e.cfg.Gate.WindowBars)*e.barMs)
	if err == nil {
		err = g.Trigger()
	}
	if err != nil {
		s.diag.stage(stageGate, err.Error())
		em.emit(types.LatchInvalidated, LatchUpdate{Latch: *l})
		return WaitingForThesis{}
	}

	slog.Info("Gate triggered", "symbol", s.name, "side", l.Side, "trigger", l.Trigger.Price, "close", a.bar.Close)
	s.diag.stage(stageLatch, "triggered")
	em.emit(types.BreakoutTriggered, GateUpdate{Latch: *l, Gate: *g})
	return e.stepGate(s, l, g, false, a, now, em)
}

// stepGate handles the impulse window after a trigger. blocked reports whether the previous
// bar was refused by chase protection so the block is only announced once.
func (e *Engine) stepGate(s *symbolState, l *gate.Latch, g *gate.ResolutionGate, blocked bool, a analysis, now int64, em *emitter) State {
	if g.Expire(now) {
		s.diag.stage(stageGate, g.Reason)
		em.emit(types.GateExpired, GateUpdate{Latch: *l, Gate: *g})
		return WaitingForThesis{}
	}
	if stopThrough(g.Direction, a.bar.Close, g.StopPrice) {
		g.Invalidate("close through stop after trigger")
		s.diag.stage(stageGate, g.Reason)
		em.emit(types.GateInvalidated, GateUpdate{Latch: *l, Gate: *g})
		return WaitingForThesis{}
	}
	if !g.ImpulseEligible(now) {
		s.diag.stage(stageGate, "outside impulse window")
		return Extension{Latch: l, Gate: g}
	}

	chase := gate.CheckChase(g.Direction, g.TriggerPrice, a.bar.Close, a.ind.ATR, e.cfg.Gate.ChaseATR)
	if !chase.Allowed {
		s.diag.stage(stageGate, chase.Reason)
		if !blocked {
			d := decision.NoEntry(a.bar.TS, chase.Reason)
			d.Symbol = s.name
			em.emit(types.EntryBlocked, EntryBlock{Decision: d, Chase: chase})
		}
		return WaitingForPullback{Latch: l, Gate: g}
	}
	s.diag.stage(stageGate, "entry permitted")

	if play := e.attemptEntry(s, l, chase, a, now, em); play != nil {
		return WaitingForEntry{Play: play}
	}
	return Extension{Latch: l, Gate: g}
}

func stopThrough(dir types.Direction, price, stop float64) bool {
	if dir == types.SHORT {
		return price >= stop
	}
	return price <= stop
}

// attemptEntry builds the candidate, collects rule blockers and runs the decision gate. It
// returns the play when the decision is ARMED.
func (e *Engine) attemptEntry(s *symbolState, l *gate.Latch, chase gate.Chase, a analysis, now int64, em *emitter) *decision.Play {
	dir := l.Side
	zone := l.Zone

	sig := timing.Evaluate(timing.Input{
		Bars:      s.history,
		Direction: dir,
		Zone:      &zone,
		VWAP:      a.ind.VWAP,
		ATR:       a.ind.ATR,
	}, e.cfg.Timing)
	s.diag.Timing = &sig

	fr := e.filters.Evaluate(filters.Input{Bars: s.history, Direction: dir, Indicators: a.ind, Now: now})
	if len(fr.Warnings) > 0 {
		s.diag.stage(stageFilters, fr.Warnings[0])
	}

	var blockers []string
	if !regime.AllowsDirection(a.regime.Regime, dir) {
		blockers = append(blockers, "regime_veto")
	}
	if sig.Score < e.cfg.Timing.MinScore {
		blockers = append(blockers, "timing_below_min")
	}

	aligned := a.regime.BullScore
	if dir == types.SHORT {
		aligned = a.regime.BearScore
	}
	candidate := decision.NewCandidate(s.name, dir, zone, l.Stop.Price, l.Trigger.Price, sig, aligned, fr.Warnings)
	evidence := decision.RuleEvidence{
		Regime:    a.regime.Regime,
		MacroBias: a.bias,
		Structure: a.structure.Structure,
		BullScore: a.regime.BullScore,
		BearScore: a.regime.BearScore,
		Timing:    sig.State,
		ChaseATR:  chaseATR(chase, a.ind.ATR),
		Warnings:  fr.Warnings,
		Side:      dir,
	}

	var verification *decision.Verification
	if e.verifier != nil {
		verification = e.verifier.Verify(candidate, evidence)
	}

	d := decision.Decide(decision.Input{
		Symbol:       s.name,
		Candidate:    &candidate,
		Evidence:     &evidence,
		Verification: verification,
		Blockers:     blockers,
		TS:           a.bar.TS,
		Validity:     e.cfg.PlayValidity,
	})
	s.diag.stage(stageDecision, string(d.Status))
	e.metrics.DecisionMade(s.name, string(d.Status))
	em.emit(types.DecisionMade, d)

	if d.Status != decision.ARMED || d.Play == nil {
		return nil
	}

	play := *d.Play
	slog.Info("Play armed",
		"symbol", s.name,
		"play", play.ID,
		"direction", play.Direction,
		"entry", play.EntryPrice,
		"stop", play.Stop,
		"t1", play.Targets.T1,
		"mode", play.Mode,
		"grade", play.Grade)
	em.emit(types.PlayArmed, PlayUpdate{Play: play})
	return &play
}

func chaseATR(c gate.Chase, atr indicators.Value) float64 {
	if !atr.OK || atr.V <= 0 {
		return 0
	}
	return c.Distance / atr.V
}

func (e *Engine) stepWaitingForEntry(s *symbolState, p *decision.Play, a analysis, now int64, em *emitter) State {
	price := a.bar.Close
	ev := risk.Evaluate(*p, price)
	p.InEntryZone = ev.InEntryZone

	switch {
	case now > p.ExpiresTS:
		closePlay(p, a.bar.TS, price, "EXPIRED")
		s.diag.stage(stagePlay, "expired before entry")
		em.emit(types.PlayExpired, PlayUpdate{Play: *p})
		return WaitingForThesis{}
	case ev.StopHit:
		p.StopHit = true
		closePlay(p, a.bar.TS, price, "INVALIDATED")
		s.diag.stage(stagePlay, "stop hit before entry")
		em.emit(types.PlayInvalidated, PlayUpdate{Play: *p})
		return WaitingForThesis{}
	case ev.InEntryZone:
		p.Status = decision.PlayEntered
		p.EnteredTS = a.bar.TS
		slog.Info("Play entered", "symbol", s.name, "play", p.ID, "close", price)
		s.diag.stage(stagePlay, "entered")
		em.emit(types.PlayEntered, PlayUpdate{Play: *p})
		return InTrade{Play: p}
	}

	s.diag.stage(stagePlay, "waiting for entry zone")
	return WaitingForEntry{Play: p}
}

func (e *Engine) stepInTrade(s *symbolState, p *decision.Play, a analysis, em *emitter) State {
	price := a.bar.Close
	ev := risk.Evaluate(*p, price)
	p.InEntryZone = ev.InEntryZone

	if ev.StopHit {
		p.StopHit = true
		closePlay(p, a.bar.TS, price, "STOP_HIT")
		slog.Info("Stop hit", "symbol", s.name, "play", p.ID, "close", price, "stop", p.Stop)
		s.diag.stage(stagePlay, "stop hit")
		em.emit(types.StopHit, StopUpdate{Play: *p, Evaluation: ev})
		em.emit(types.PlayClosed, PlayUpdate{Play: *p})
		return WaitingForThesis{}
	}

	if ev.StopThreatened && !p.StopThreatened {
		s.diag.stage(stagePlay, "stop threatened")
		p.StopThreatened = true
		em.emit(types.StopThreatened, StopUpdate{Play: *p, Evaluation: ev})
	} else if !ev.StopThreatened {
		p.StopThreatened = false
	}

	targets := p.Targets.List()
	for i := p.TargetsHit; i < ev.TargetsReached; i++ {
		em.emit(types.TargetHit, TargetUpdate{
			PlayID:    p.ID,
			Direction: p.Direction,
			Target:    i + 1,
			Price:     targets[i],
			Close:     price,
			RMultiple: ev.RMultiples[i],
		})
	}
	if ev.TargetsReached > p.TargetsHit {
		p.TargetsHit = ev.TargetsReached
		s.diag.stage(stagePlay, fmt.Sprintf("targets hit %d", p.TargetsHit))
	}

	if p.TargetsHit == len(targets) {
		closePlay(p, a.bar.TS, targets[len(targets)-1], "TARGETS_COMPLETE")
		slog.Info("Play closed", "symbol", s.name, "play", p.ID, "reason", p.ExitReason)
		em.emit(types.PlayClosed, PlayUpdate{Play: *p})
		return WaitingForThesis{}
	}
	return InTrade{Play: p}
}

func closePlay(p *decision.Play, ts int64, price float64, reason string) {
	p.Status = decision.PlayClosed
	p.ClosedTS = ts
	p.ExitPrice = price
	p.ExitReason = reason
}
