package engine

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/jwtly10/tradegate/internal/regime"
	"github.com/jwtly10/tradegate/internal/snapshot"
	"github.com/jwtly10/tradegate/internal/types"
)

// macroPendingKey names the open macro bucket in a snapshot's pending map. Fine-timeframe
// buckets use the timeframe string.
const macroPendingKey = "macro"

// WarmupBundle carries historical closed bars for one symbol, keyed by timeframe.
type WarmupBundle struct {
	Symbol string
	Source string
	Bars   map[types.Timeframe][]types.Bar
}

// WarmupHistory seeds history without emitting events. Decision bars are used as given, finer
// bars are aggregated and macro bars go straight into the macro history. Bars that overlap
// what is already held are skipped.
func (e *Engine) WarmupHistory(b WarmupBundle) error {
	for tf := range b.Bars {
		if _, err := tf.ToDuration(); err != nil {
			return fmt.Errorf("%w: warm-up %s bars", ErrUnsupportedTimeframe, tf)
		}
		if e.cfg.DecisionTimeframe.Finer(tf) && tf != e.cfg.MacroTimeframe {
			return fmt.Errorf("%w: warm-up %s bars with decision timeframe %s", ErrUnsupportedTimeframe, tf, e.cfg.DecisionTimeframe)
		}
	}

	s := e.symbol(b.Symbol)
	bars := e.validWarmupBars(s, b.Bars)

	// macro first so the rolled-up decision bars do not shadow provided coarse bars
	if e.cfg.MacroTimeframe != e.cfg.DecisionTimeframe {
		for _, bar := range sorted(bars[e.cfg.MacroTimeframe]) {
			s.addMacro(bar, e.cfg.MaxHistory)
		}
	}

	feed := func(bar types.Bar) {
		if !s.addHistory(bar, e.cfg.MaxHistory) {
			return
		}
		if e.cfg.MacroTimeframe != e.cfg.DecisionTimeframe {
			if completed, ok := s.macroAgg.Add(bar); ok {
				s.addMacro(completed, e.cfg.MaxHistory)
			}
		}
	}

	for _, bar := range sorted(bars[e.cfg.DecisionTimeframe]) {
		feed(bar)
	}
	// coarsest first: a bucket already filled from coarser bars is not rebuilt from finer ones
	for _, tf := range e.fineTimeframes(bars) {
		agg := s.fineAggregator(tf, e.cfg.DecisionTimeframe)
		for _, bar := range sorted(bars[tf]) {
			if completed, ok := agg.Add(bar); ok && completed.Valid() {
				feed(completed)
			}
		}
	}

	for tf, tfBars := range bars {
		if len(tfBars) > 0 {
			last := slices.MaxFunc(tfBars, func(x, y types.Bar) int { return cmpTS(x.TS, y.TS) }).TS
			if last > s.lastTS[tf] {
				s.lastTS[tf] = last
			}
		}
	}
	if n := len(s.history); n > 0 && s.history[n-1].TS > s.lastTS[e.cfg.DecisionTimeframe] {
		s.lastTS[e.cfg.DecisionTimeframe] = s.history[n-1].TS
	}

	a := e.refresh(s)
	s.lastRegime = a.regime.Regime

	slog.Info("Warm-up complete",
		"symbol", b.Symbol,
		"source", b.Source,
		"bars", len(s.history),
		"macroBars", len(s.macro),
		"regime", a.regime.Regime,
		"sufficient", a.sufficient)
	return nil
}

// validWarmupBars drops bars that fail types.Bar.Valid, counting each as an invalid bar.
func (e *Engine) validWarmupBars(s *symbolState, in map[types.Timeframe][]types.Bar) map[types.Timeframe][]types.Bar {
	out := make(map[types.Timeframe][]types.Bar, len(in))
	for tf, bars := range in {
		valid := make([]types.Bar, 0, len(bars))
		for _, bar := range bars {
			if !bar.Valid() {
				e.metrics.InvalidBar(s.name, string(tf))
				continue
			}
			valid = append(valid, bar)
		}
		if dropped := len(bars) - len(valid); dropped > 0 {
			slog.Warn("Dropped invalid warm-up bars", "symbol", s.name, "timeframe", tf, "dropped", dropped)
		}
		out[tf] = valid
	}
	return out
}

// fineTimeframes lists the bundle's timeframes finer than the decision timeframe, coarsest
// first.
func (e *Engine) fineTimeframes(bars map[types.Timeframe][]types.Bar) []types.Timeframe {
	var tfs []types.Timeframe
	for tf := range bars {
		if tf.Finer(e.cfg.DecisionTimeframe) {
			tfs = append(tfs, tf)
		}
	}
	slices.SortFunc(tfs, func(a, b types.Timeframe) int { return cmp.Compare(b.Millis(), a.Millis()) })
	return tfs
}

func sorted(bars []types.Bar) []types.Bar {
	out := slices.Clone(bars)
	slices.SortStableFunc(out, func(x, y types.Bar) int { return cmpTS(x.TS, y.TS) })
	return out
}

func cmpTS(a, b int64) int {
	return cmp.Compare(a, b)
}

func addPending(st *snapshot.SymbolState, key string, bar types.Bar) {
	if st.Pending == nil {
		st.Pending = make(map[string]types.Bar)
	}
	st.Pending[key] = bar
}

// Export captures every symbol's state. The most recently armed live play is also exposed as
// the snapshot's ActivePlay.
func (e *Engine) Export(now int64) snapshot.Snapshot {
	snap := snapshot.Snapshot{
		Version:    snapshot.CurrentVersion,
		InstanceID: e.instanceID,
		SavedAt:    now,
		Symbols:    make(map[string]snapshot.SymbolState, len(e.symbols)),
	}

	names := e.Symbols()
	sort.Strings(names)
	for _, name := range names {
		s := e.symbols[name]
		l, g, p := parts(s.state)
		st := snapshot.SymbolState{
			Phase:      string(s.state.Phase()),
			Latch:      cloneOf(l),
			Gate:       cloneOf(g),
			Play:       cloneOf(p),
			History:    slices.Clone(s.history),
			Macro:      slices.Clone(s.macro),
			LastTS:     make(map[types.Timeframe]int64, len(s.lastTS)),
			LastRegime: string(s.lastRegime),
		}
		for tf, ts := range s.lastTS {
			st.LastTS[tf] = ts
		}
		for tf, agg := range s.fine {
			if bar, ok := agg.Pending(); ok {
				addPending(&st, string(tf), bar)
			}
		}
		if bar, ok := s.macroAgg.Pending(); ok {
			addPending(&st, macroPendingKey, bar)
		}
		snap.Symbols[name] = st

		if st.Play != nil && (snap.ActivePlay == nil || st.Play.ArmedTS > snap.ActivePlay.ArmedTS) {
			snap.ActivePlay = cloneOf(p)
		}
	}
	return snap
}

func cloneOf[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Restore replaces the engine's state with the snapshot. Symbols not in the snapshot are
// dropped. A phase whose pieces are missing resumes as WAITING_FOR_THESIS.
func (e *Engine) Restore(snap snapshot.Snapshot) error {
	if snap.Version != snapshot.CurrentVersion {
		return fmt.Errorf("restore snapshot: version %d, want %d", snap.Version, snapshot.CurrentVersion)
	}
	if snap.InstanceID != "" {
		e.instanceID = snap.InstanceID
	}
	e.symbols = make(map[string]*symbolState, len(snap.Symbols))

	for name, st := range snap.Symbols {
		s := e.symbol(name)
		s.history = sorted(st.History)
		s.macro = sorted(st.Macro)
		for tf, ts := range st.LastTS {
			s.lastTS[tf] = ts
		}
		for key, bar := range st.Pending {
			if key == macroPendingKey {
				s.macroAgg.Add(bar)
				continue
			}
			tf := types.Timeframe(key)
			if !tf.Finer(e.cfg.DecisionTimeframe) {
				slog.Warn("Dropping pending bucket", "symbol", name, "key", key)
				continue
			}
			s.fineAggregator(tf, e.cfg.DecisionTimeframe).Add(bar)
		}

		state, ok := fromParts(Phase(st.Phase), cloneOf(st.Latch), cloneOf(st.Gate), cloneOf(st.Play))
		if !ok {
			slog.Warn("Snapshot phase incomplete, resuming without thesis", "symbol", name, "phase", st.Phase)
		}
		s.state = state

		e.refresh(s)
		s.lastRegime = regime.Regime(st.LastRegime)
		if s.lastRegime == "" {
			s.lastRegime = s.diag.Regime.Regime
		}
	}

	slog.Info("Engine restored", "instance", e.instanceID, "symbols", len(e.symbols), "savedAt", snap.SavedAt)
	return nil
}
