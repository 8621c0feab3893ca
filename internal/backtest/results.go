package backtest

import (
	"fmt"

	"github.com/jwtly10/tradegate/internal/account"
	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/types"
)

type Results struct {
	Symbol         string
	InitialBalance float64
	FinalBalance   float64
	Trades         []account.Trade

	Bars            int
	Events          map[types.EventType]int
	Decisions       map[decision.Status]int
	PublishFailures int
	Checkpoints     int

	stats *Statistics
}

func (r *Results) PrintTrades() {
	r.PrintTradesBetween(0, len(r.Trades))
}

// PrintTradesBetween prints trades[from:to], clamped to the trade list.
func (r *Results) PrintTradesBetween(from, to int) {
	from = max(from, 0)
	to = min(to, len(r.Trades))

	fmt.Println("\n=== Trade List ===")
	for i := from; i < to; i++ {
		r.Trades[i].Print()
	}
}
