// Package backtest replays historical bars through the signal pipeline and books every entered
// play on a paper account.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwtly10/tradegate/internal/account"
	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/engine"
	"github.com/jwtly10/tradegate/internal/publish"
	"github.com/jwtly10/tradegate/internal/types"
)

const DefaultRiskPercent = 1.0

// Driver is the pipeline under test. *engine.Engine implements it.
type Driver interface {
	ProcessTick(symbol string, tf types.Timeframe, bar types.Bar, now int64) ([]types.Event, error)
}

type Engine struct {
	Symbol    string
	Timeframe types.Timeframe
	Bars      []types.Bar

	initialBalance float64
	riskPercent    float64
	sink           publish.Sink
	observe        func(symbol string, d time.Duration)

	checkpointEvery int64
	checkpoint      func(ctx context.Context, now int64) error
}

type Option func(*Engine)

// WithSink publishes the events of every bar as the replay runs.
func WithSink(s publish.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

func WithRiskPercent(p float64) Option {
	return func(e *Engine) { e.riskPercent = p }
}

// WithTickObserver receives the time the driver spent on each bar.
func WithTickObserver(f func(symbol string, d time.Duration)) Option {
	return func(e *Engine) { e.observe = f }
}

// WithCheckpoint calls fn whenever at least every of bar time has passed since the last call,
// and once more after the last bar. Failures are logged and the replay carries on.
func WithCheckpoint(every time.Duration, fn func(ctx context.Context, now int64) error) Option {
	return func(e *Engine) {
		e.checkpointEvery = every.Milliseconds()
		e.checkpoint = fn
	}
}

func NewEngine(symbol string, tf types.Timeframe, bars []types.Bar, initialBalance float64, opts ...Option) *Engine {
	e := &Engine{
		Symbol:         symbol,
		Timeframe:      tf,
		Bars:           bars,
		initialBalance: initialBalance,
		riskPercent:    DefaultRiskPercent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run feeds every bar to the driver with now set to the bar's close. Positions still open at
// the end are closed at the last close. A failed publish is logged and counted, never retried.
func (e *Engine) Run(ctx context.Context, driver Driver) (*Results, error) {
	acc := account.NewAccount(e.initialBalance, e.riskPercent)
	results := &Results{
		Symbol:         e.Symbol,
		InitialBalance: e.initialBalance,
		Trades:         []account.Trade{},
		Events:         make(map[types.EventType]int),
		Decisions:      make(map[decision.Status]int),
	}

	slog.Debug("Starting replay", "symbol", e.Symbol, "timeframe", e.Timeframe, "initial_balance", e.initialBalance, "total_bars", len(e.Bars))

	var lastCheckpoint int64
	for i, bar := range e.Bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		events, err := driver.ProcessTick(e.Symbol, e.Timeframe, bar, bar.TS)
		if err != nil {
			return nil, fmt.Errorf("bar %d at %d: %w", i, bar.TS, err)
		}
		if e.observe != nil {
			e.observe(e.Symbol, time.Since(start))
		}
		results.Bars++

		for _, ev := range events {
			results.record(ev, acc)
		}

		if e.sink != nil && len(events) > 0 {
			if err := e.sink.Publish(ctx, events); err != nil {
				slog.Warn("Failed to publish events", "symbol", e.Symbol, "count", len(events), "error", err)
				results.PublishFailures++
			}
		}

		if e.checkpoint != nil && e.checkpointEvery > 0 {
			if lastCheckpoint == 0 {
				lastCheckpoint = bar.TS
			} else if bar.TS-lastCheckpoint >= e.checkpointEvery {
				e.save(ctx, results, bar.TS)
				lastCheckpoint = bar.TS
			}
		}
	}

	if len(e.Bars) > 0 {
		lastBar := e.Bars[len(e.Bars)-1]
		if e.checkpoint != nil && lastCheckpoint != lastBar.TS {
			e.save(ctx, results, lastBar.TS)
		}
		results.Trades = append(results.Trades, acc.CloseAll(lastBar)...)
	}

	results.FinalBalance = acc.Balance

	return results, nil
}

func (e *Engine) save(ctx context.Context, results *Results, now int64) {
	if err := e.checkpoint(ctx, now); err != nil {
		slog.Warn("Checkpoint failed", "symbol", e.Symbol, "ts", now, "error", err)
		return
	}
	results.Checkpoints++
}

func (r *Results) record(ev types.Event, acc *account.Account) {
	r.Events[ev.Type]++

	switch data := ev.Data.(type) {
	case decision.Decision:
		r.Decisions[data.Status]++
	case engine.PlayUpdate:
		switch ev.Type {
		case types.PlayEntered:
			acc.Open(data.Play, time.UnixMilli(ev.Timestamp).UTC())
		case types.PlayClosed:
			if t, ok := acc.Close(data.Play); ok {
				r.Trades = append(r.Trades, t)
			}
		}
	}
}
