// Package engine drives the per-symbol pipeline: bars in, domain events out.
//
// An Engine is not safe for concurrent use. Callers serialise ProcessTick, WarmupHistory,
// Export and Restore; no goroutines are started and the clock is never sampled, every window is
// measured against the now passed in by the caller.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jwtly10/tradegate/internal/aggregate"
	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/filters"
	"github.com/jwtly10/tradegate/internal/gate"
	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/regime"
	"github.com/jwtly10/tradegate/internal/timing"
	"github.com/jwtly10/tradegate/internal/types"
)

var (
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

	engineLog = logging.New("engine")
)

type Config struct {
	DecisionTimeframe types.Timeframe `yaml:"decision_timeframe" default:"5m" validate:"oneof=1m 5m 15m"`
	MacroTimeframe    types.Timeframe `yaml:"macro_timeframe" default:"15m" validate:"oneof=5m 15m"`
	// MaxHistory bounds the decision and macro histories per symbol.
	MaxHistory   int           `yaml:"max_history" default:"500" validate:"gte=60"`
	PlayValidity time.Duration `yaml:"play_validity" default:"30m" validate:"gt=0"`

	Regime  regime.Config  `yaml:"regime"`
	Gate    gate.Config    `yaml:"gate"`
	Timing  timing.Config  `yaml:"timing"`
	Filters filters.Config `yaml:"filters"`
}

func DefaultConfig() Config {
	return Config{
		DecisionTimeframe: types.M5,
		MacroTimeframe:    types.M15,
		MaxHistory:        500,
		PlayValidity:      30 * time.Minute,
		Regime:            regime.DefaultConfig(),
		Gate:              gate.DefaultConfig(),
		Timing:            timing.DefaultConfig(),
		Filters:           filters.DefaultConfig(),
	}
}

// Metrics receives counters from the pipeline. metrics.Recorder implements it.
type Metrics interface {
	TickProcessed(symbol, timeframe string)
	StaleBar(symbol, timeframe string)
	InvalidBar(symbol, timeframe string)
	EventEmitted(symbol, eventType string)
	DecisionMade(symbol, status string)
	RegimeChanged(symbol, regime string)
}

type nopMetrics struct{}

func (nopMetrics) TickProcessed(string, string) {}
func (nopMetrics) StaleBar(string, string)      {}
func (nopMetrics) InvalidBar(string, string)    {}
func (nopMetrics) EventEmitted(string, string)  {}
func (nopMetrics) DecisionMade(string, string)  {}
func (nopMetrics) RegimeChanged(string, string) {}

type Option func(*Engine)

// WithVerifier sets the oracle consulted before a candidate can be armed. Without one every
// candidate is BLOCKED.
func WithVerifier(v decision.Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithInstanceID(id string) Option {
	return func(e *Engine) { e.instanceID = id }
}

type Engine struct {
	cfg        Config
	barMs      int64
	filters    *filters.Filters
	verifier   decision.Verifier
	metrics    Metrics
	instanceID string
	symbols    map[string]*symbolState
}

type symbolState struct {
	name     string
	state    State
	history  []types.Bar
	macro    []types.Bar
	fine     map[types.Timeframe]*aggregate.Aggregator
	macroAgg *aggregate.Aggregator
	// lastTS is the last accepted bar per input timeframe.
	lastTS     map[types.Timeframe]int64
	lastRegime regime.Regime
	diag       Diagnostics
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	if _, err := cfg.DecisionTimeframe.ToDuration(); err != nil {
		return nil, fmt.Errorf("%w: decision timeframe %q", ErrUnsupportedTimeframe, cfg.DecisionTimeframe)
	}
	if _, err := cfg.MacroTimeframe.ToDuration(); err != nil || cfg.MacroTimeframe.Finer(cfg.DecisionTimeframe) {
		return nil, fmt.Errorf("%w: macro timeframe %q", ErrUnsupportedTimeframe, cfg.MacroTimeframe)
	}
	f, err := filters.New(cfg.Filters)
	if err != nil {
		return nil, fmt.Errorf("entry filters: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		barMs:   cfg.DecisionTimeframe.Millis(),
		filters: f,
		metrics: nopMetrics{},
		symbols: make(map[string]*symbolState),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.instanceID == "" {
		e.instanceID = uuid.NewString()
	}
	return e, nil
}

func (e *Engine) InstanceID() string {
	return e.instanceID
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Symbols returns the symbols the engine holds state for.
func (e *Engine) Symbols() []string {
	out := make([]string, 0, len(e.symbols))
	for s := range e.symbols {
		out = append(out, s)
	}
	return out
}

// Phase reports the current execution phase of symbol.
func (e *Engine) Phase(symbol string) (Phase, bool) {
	s, ok := e.symbols[symbol]
	if !ok {
		return "", false
	}
	return s.state.Phase(), true
}

func (e *Engine) symbol(name string) *symbolState {
	if s, ok := e.symbols[name]; ok {
		return s
	}
	s := &symbolState{
		name:     name,
		state:    WaitingForThesis{},
		fine:     make(map[types.Timeframe]*aggregate.Aggregator),
		macroAgg: aggregate.New(e.cfg.MacroTimeframe.MustToDuration()),
		lastTS:   make(map[types.Timeframe]int64),
		diag:     Diagnostics{Symbol: name, Phase: WAITING_FOR_THESIS},
	}
	e.symbols[name] = s
	return s
}

func (s *symbolState) fineAggregator(tf, target types.Timeframe) *aggregate.Aggregator {
	a, ok := s.fine[tf]
	if !ok {
		a = aggregate.New(target.MustToDuration())
		s.fine[tf] = a
	}
	return a
}

// ProcessTick feeds one closed bar. Bars finer than the decision timeframe are aggregated and
// only completed decision bars move the pipeline. A bar at or before the last accepted bar for
// the same symbol and timeframe is ignored, and so is a bar that fails types.Bar.Valid. An
// ignored bar leaves the last accepted timestamp untouched.
func (e *Engine) ProcessTick(symbol string, tf types.Timeframe, bar types.Bar, now int64) ([]types.Event, error) {
	if _, err := tf.ToDuration(); err != nil || e.cfg.DecisionTimeframe.Finer(tf) {
		return nil, fmt.Errorf("%w: %s bars with decision timeframe %s", ErrUnsupportedTimeframe, tf, e.cfg.DecisionTimeframe)
	}

	s := e.symbol(symbol)
	if !bar.Valid() {
		e.invalid(s, tf, bar)
		return nil, nil
	}
	if last, ok := s.lastTS[tf]; ok && bar.TS <= last {
		e.stale(s, tf, bar.TS, last)
		return nil, nil
	}
	s.lastTS[tf] = bar.TS
	e.metrics.TickProcessed(symbol, string(tf))

	if tf != e.cfg.DecisionTimeframe {
		completed, ok := s.fineAggregator(tf, e.cfg.DecisionTimeframe).Add(bar)
		if !ok {
			return nil, nil
		}
		bar = completed
		if !bar.Valid() {
			e.invalid(s, e.cfg.DecisionTimeframe, bar)
			return nil, nil
		}
		if last, ok := s.lastTS[e.cfg.DecisionTimeframe]; ok && bar.TS <= last {
			e.stale(s, e.cfg.DecisionTimeframe, bar.TS, last)
			return nil, nil
		}
		s.lastTS[e.cfg.DecisionTimeframe] = bar.TS
	}

	return e.onDecisionBar(s, bar, now), nil
}

func (e *Engine) stale(s *symbolState, tf types.Timeframe, ts, last int64) {
	engineLog.Debug("Stale bar ignored", "symbol", s.name, "timeframe", tf, "ts", ts, "last", last)
	s.diag.Reason = STALE_BAR_IGNORED
	e.metrics.StaleBar(s.name, string(tf))
}

func (e *Engine) invalid(s *symbolState, tf types.Timeframe, bar types.Bar) {
	engineLog.Debug("Invalid bar ignored", "symbol", s.name, "timeframe", tf, "ts", bar.TS, "bar", bar)
	s.diag.Reason = INVALID_BAR_IGNORED
	e.metrics.InvalidBar(s.name, string(tf))
}

// LastDiagnostics returns a copy of the most recent diagnostics for symbol.
func (e *Engine) LastDiagnostics(symbol string) (Diagnostics, bool) {
	s, ok := e.symbols[symbol]
	if !ok {
		return Diagnostics{}, false
	}
	return s.diag.clone(), true
}

func appendBounded(bars []types.Bar, bar types.Bar, limit int) []types.Bar {
	bars = append(bars, bar)
	if len(bars) > limit {
		bars = append(bars[:0:0], bars[len(bars)-limit:]...)
	}
	return bars
}

func (s *symbolState) addHistory(bar types.Bar, limit int) bool {
	if n := len(s.history); n > 0 && bar.TS <= s.history[n-1].TS {
		return false
	}
	s.history = appendBounded(s.history, bar, limit)
	return true
}

func (s *symbolState) addMacro(bar types.Bar, limit int) {
	if n := len(s.macro); n > 0 && bar.TS <= s.macro[n-1].TS {
		return
	}
	s.macro = appendBounded(s.macro, bar, limit)
}
