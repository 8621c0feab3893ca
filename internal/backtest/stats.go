package backtest

import (
	"fmt"
	"time"

	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/types"
)

type Statistics struct {
	// Basic
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	// P&L
	TotalPnL        float64
	TotalPnLPercent float64
	GrossProfit     float64
	GrossLoss       float64
	ProfitFactor    float64

	// Averages
	AvgWin        float64
	AvgLoss       float64
	ExpectedValue float64

	// R-multiples
	TotalR float64
	AvgR   float64
	BestR  float64
	WorstR float64

	// Risk
	MaxDrawdown        float64
	MaxDrawdownPercent float64

	// Duration
	AvgTradeDuration time.Duration

	// Pipeline
	Latches       int
	Breakouts     int
	EntryBlocks   int
	PlaysArmed    int
	PlaysExpired  int
	PlaysEntered  int
	DecisionsPass int
}

func (r *Results) Calculate() *Statistics {
	// Return cached if already calculated
	if r.stats != nil {
		return r.stats
	}

	stats := &Statistics{
		TotalTrades:   len(r.Trades),
		Latches:       r.Events[types.OpportunityLatch],
		Breakouts:     r.Events[types.BreakoutTriggered],
		EntryBlocks:   r.Events[types.EntryBlocked],
		PlaysArmed:    r.Events[types.PlayArmed],
		PlaysExpired:  r.Events[types.PlayExpired],
		PlaysEntered:  r.Events[types.PlayEntered],
		DecisionsPass: r.Decisions[decision.LLM_PASS],
	}

	if len(r.Trades) == 0 {
		r.stats = stats
		return stats
	}

	var totalWin, totalLoss float64
	var totalDuration time.Duration
	var peak float64 = r.InitialBalance
	var maxDD float64
	runningBalance := r.InitialBalance
	stats.BestR = r.Trades[0].RMultiple
	stats.WorstR = r.Trades[0].RMultiple

	for _, trade := range r.Trades {
		// Win/Loss counting
		if trade.PnL > 0 {
			stats.WinningTrades++
			totalWin += trade.PnL
		} else if trade.PnL < 0 {
			stats.LosingTrades++
			totalLoss += trade.PnL // Already negative
		}

		stats.TotalR += trade.RMultiple
		stats.BestR = max(stats.BestR, trade.RMultiple)
		stats.WorstR = min(stats.WorstR, trade.RMultiple)

		// Drawdown calculation
		runningBalance += trade.PnL
		if runningBalance > peak {
			peak = runningBalance
		}
		dd := peak - runningBalance
		if dd > maxDD {
			maxDD = dd
		}

		// Duration
		duration := trade.ExitTime.Sub(trade.EntryTime)
		totalDuration += duration
	}

	// Win Rate
	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100

	// P&L Stats
	stats.GrossProfit = totalWin
	stats.GrossLoss = totalLoss
	stats.TotalPnL = r.FinalBalance - r.InitialBalance
	stats.TotalPnLPercent = (stats.TotalPnL / r.InitialBalance) * 100

	// Profit Factor
	if totalLoss != 0 {
		stats.ProfitFactor = totalWin / -totalLoss
	}

	// Averages
	if stats.WinningTrades > 0 {
		stats.AvgWin = totalWin / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = totalLoss / float64(stats.LosingTrades)
	}
	stats.ExpectedValue = stats.TotalPnL / float64(stats.TotalTrades)
	stats.AvgR = stats.TotalR / float64(stats.TotalTrades)

	// Drawdown
	stats.MaxDrawdown = maxDD
	if peak > 0 {
		stats.MaxDrawdownPercent = (maxDD / peak) * 100
	}

	// Duration
	stats.AvgTradeDuration = totalDuration / time.Duration(stats.TotalTrades)

	r.stats = stats
	return stats
}

func (s *Statistics) Print() {
	fmt.Println("\n=== Replay Results ===")
	fmt.Printf("Latches:          %d\n", s.Latches)
	fmt.Printf("Breakouts:        %d\n", s.Breakouts)
	fmt.Printf("Entry Blocks:     %d\n", s.EntryBlocks)
	fmt.Printf("Plays Armed:      %d (%d expired, %d entered)\n", s.PlaysArmed, s.PlaysExpired, s.PlaysEntered)
	fmt.Printf("Verifier Passes:  %d\n\n", s.DecisionsPass)

	fmt.Printf("Total Trades:     %d\n", s.TotalTrades)
	fmt.Printf("Winning Trades:   %d (%.2f%%)\n", s.WinningTrades, s.WinRate)
	fmt.Printf("Losing Trades:    %d\n\n", s.LosingTrades)

	fmt.Printf("Total P&L:        £%.2f (%.2f%%)\n", s.TotalPnL, s.TotalPnLPercent)
	fmt.Printf("Gross Profit:     £%.2f\n", s.GrossProfit)
	fmt.Printf("Gross Loss:       £%.2f\n", s.GrossLoss)
	fmt.Printf("Profit Factor:    %.2f\n\n", s.ProfitFactor)

	fmt.Printf("Avg Win:          £%.2f\n", s.AvgWin)
	fmt.Printf("Avg Loss:         £%.2f\n", s.AvgLoss)
	fmt.Printf("Expected Value:   £%.2f per trade\n\n", s.ExpectedValue)

	fmt.Printf("Total R:          %.2fR (avg %.2fR, best %.2fR, worst %.2fR)\n\n", s.TotalR, s.AvgR, s.BestR, s.WorstR)

	fmt.Printf("Max Drawdown:     £%.2f (%.2f%%)\n", s.MaxDrawdown, s.MaxDrawdownPercent)
	fmt.Printf("Avg Duration:     %s\n", s.AvgTradeDuration.Round(time.Minute))
}
