package account

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/types"
)

const (
	END_OF_REPLAY = "END_OF_REPLAY"

	// scout plays risk half of a full position
	scoutFactor = 0.5
)

// Account is a paper ledger of entered plays. Fills are assumed at the play's planned entry
// and exits at the close the engine reports.
type Account struct {
	Balance     float64
	RiskPercent float64

	openPositions  []*Position
	nextPositionID int
}

type Position struct {
	ID         int
	PlayID     string
	Symbol     string
	OpenTime   time.Time
	Direction  types.Direction
	Mode       decision.Mode
	Grade      decision.Grade
	EntryPrice float64
	Size       float64
	StopLoss   float64
	Targets    decision.Targets
}

type Trade struct {
	ID         int
	PlayID     string
	Symbol     string
	EntryTime  time.Time
	ExitTime   time.Time
	Direction  types.Direction
	Mode       decision.Mode
	Grade      decision.Grade
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	StopLoss   float64
	TakeProfit float64
	PnL        float64
	PnLPercent float64
	// RMultiple is the realised move in units of the initial risk.
	RMultiple  float64
	ExitReason string
}

func (t Trade) Print() {
	fmt.Printf("#%d | %s %s %s | Entry: %.5f @ %s | Exit: %.5f @ %s | P&L: £%.2f (%.2fR) | %s\n",
		t.ID,
		t.Symbol,
		t.Direction,
		t.Mode,
		t.EntryPrice,
		t.EntryTime.Format("2006-01-02 15:04"),
		t.ExitPrice,
		t.ExitTime.Format("2006-01-02 15:04"),
		t.PnL,
		t.RMultiple,
		t.ExitReason,
	)
}

func NewAccount(initialBalance, riskPercent float64) *Account {
	return &Account{
		Balance:        initialBalance,
		RiskPercent:    riskPercent,
		openPositions:  []*Position{},
		nextPositionID: 1,
	}
}

// Open sizes a position so that a stop-out loses RiskPercent of the balance, half that for a
// scout. A play with no risk or one already open is ignored.
func (a *Account) Open(p decision.Play, timestamp time.Time) *Position {
	if a.find(p.ID) >= 0 {
		return nil
	}
	risk := p.Risk()
	if risk <= 0 {
		slog.Warn("Skipping play with no risk", "play", p.ID, "entry", p.EntryPrice, "stop", p.Stop)
		return nil
	}

	size := a.Balance * a.RiskPercent / 100 / risk
	if p.Mode == decision.SCOUT {
		size *= scoutFactor
	}

	pos := &Position{
		ID:         a.nextPositionID,
		PlayID:     p.ID,
		Symbol:     p.Symbol,
		OpenTime:   timestamp,
		Direction:  p.Direction,
		Mode:       p.Mode,
		Grade:      p.Grade,
		EntryPrice: p.EntryPrice,
		Size:       size,
		StopLoss:   p.Stop,
		Targets:    p.Targets,
	}
	slog.Info("Opening position", "id", pos.ID, "play", p.ID, "symbol", p.Symbol, "direction", p.Direction, "price", p.EntryPrice, "size", size, "sl", p.Stop, "timestamp", timestamp)

	a.nextPositionID++
	a.openPositions = append(a.openPositions, pos)

	return pos
}

// Close settles the position opened for a closed play.
func (a *Account) Close(p decision.Play) (Trade, bool) {
	i := a.find(p.ID)
	if i < 0 {
		return Trade{}, false
	}
	pos := a.openPositions[i]
	a.openPositions = append(a.openPositions[:i], a.openPositions[i+1:]...)
	return a.closePosition(pos, p.ExitPrice, time.UnixMilli(p.ClosedTS).UTC(), p.ExitReason), true
}

func (a *Account) find(playID string) int {
	for i, pos := range a.openPositions {
		if pos.PlayID == playID {
			return i
		}
	}
	return -1
}

func (a *Account) closePosition(pos *Position, exitPrice float64, exitTime time.Time, reason string) Trade {
	var move float64
	if pos.Direction == types.SHORT {
		move = pos.EntryPrice - exitPrice
	} else {
		move = exitPrice - pos.EntryPrice
	}
	pnl := move * pos.Size
	slog.Debug("Calculating PnL", "direction", pos.Direction, "exit_price", exitPrice, "entry_price", pos.EntryPrice, "size", pos.Size, "pnl", pnl)

	a.Balance += pnl

	var r float64
	if risk := pos.EntryPrice - pos.StopLoss; risk != 0 {
		if risk < 0 {
			risk = -risk
		}
		r = move / risk
	}

	slog.Info("Closed position", "id", pos.ID, "play", pos.PlayID, "exit_price", exitPrice, "stop_loss", pos.StopLoss, "pnl", pnl, "r", r, "reason", reason, "timestamp", exitTime)

	return Trade{
		ID:         pos.ID,
		PlayID:     pos.PlayID,
		Symbol:     pos.Symbol,
		EntryTime:  pos.OpenTime,
		ExitTime:   exitTime,
		Direction:  pos.Direction,
		Mode:       pos.Mode,
		Grade:      pos.Grade,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Size:       pos.Size,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.Targets.T3,
		PnL:        pnl,
		PnLPercent: (pnl / pos.EntryPrice) * 100,
		RMultiple:  r,
		ExitReason: reason,
	}
}

// CloseAll settles every open position at the last bar's close.
func (a *Account) CloseAll(lastBar types.Bar) []Trade {
	var trades []Trade

	for _, pos := range a.openPositions {
		trade := a.closePosition(pos, lastBar.Close, lastBar.Time(), END_OF_REPLAY)
		trades = append(trades, trade)
	}

	a.openPositions = []*Position{}
	return trades
}

func (a *Account) OpenPositions() []*Position {
	return a.openPositions
}

func (a *Account) PositionCount() int {
	return len(a.openPositions)
}
