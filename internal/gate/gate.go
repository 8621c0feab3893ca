package gate

import (
	"fmt"

	"github.com/jwtly10/tradegate/internal/indicators"
	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/types"
)

var gateLog = logging.New("gate")

// ResolutionGate is the time-boxed entry permission that follows a triggered latch. Its impulse
// window belongs to the gate itself, so eligibility does not depend on the engine phase.
type ResolutionGate struct {
	Status       Status          `json:"status"`
	Direction    types.Direction `json:"direction"`
	TriggerPrice float64         `json:"triggerPrice"`
	StopPrice    float64         `json:"stopPrice"`
	ArmedTS      int64           `json:"armedTs"`
	ExpiryTS     int64           `json:"expiryTs"`
	WindowMs     int64           `json:"windowMs"`
	Reason       string          `json:"reason,omitempty"`
}

// ArmGate opens a gate at armedTS with an impulse window of windowMs.
func ArmGate(dir types.Direction, trigger, stop float64, armedTS, windowMs int64) (*ResolutionGate, error) {
	if windowMs <= 0 {
		return nil, fmt.Errorf("%w: window %dms", ErrInvalidExpiry, windowMs)
	}
	return &ResolutionGate{
		Status:       ARMED,
		Direction:    dir,
		TriggerPrice: trigger,
		StopPrice:    stop,
		ArmedTS:      armedTS,
		ExpiryTS:     armedTS + windowMs,
		WindowMs:     windowMs,
	}, nil
}

func (g *ResolutionGate) Trigger() error {
	if g.Status != ARMED {
		return fmt.Errorf("%w: trigger from %s", ErrInvalidTransition, g.Status)
	}
	g.Status = TRIGGERED
	return nil
}

// ImpulseEligible reports whether entry is still permitted at now.
func (g *ResolutionGate) ImpulseEligible(now int64) bool {
	return g.Status == TRIGGERED && now-g.ArmedTS <= g.WindowMs
}

// Expire closes the gate for good once now is past the window. It reports whether it changed
// anything.
func (g *ResolutionGate) Expire(now int64) bool {
	if g.Status.Terminal() || now-g.ArmedTS <= g.WindowMs {
		return false
	}
	g.Status = EXPIRED
	g.Reason = "impulse window elapsed"
	gateLog.Debug("Gate expired", "direction", g.Direction, "armedTs", g.ArmedTS, "now", now)
	return true
}

func (g *ResolutionGate) Invalidate(reason string) {
	if g.Status.Terminal() {
		return
	}
	g.Status = INVALIDATED
	g.Reason = reason
}

type Chase struct {
	Allowed  bool    `json:"allowed"`
	Distance float64 `json:"distance"`
	Limit    float64 `json:"limit"`
	Reason   string  `json:"reason,omitempty"`
}

// CheckChase blocks entry when the close has run more than k x ATR past the trigger in the trade
// direction. Without an ATR the check is skipped.
func CheckChase(dir types.Direction, trigger, price float64, atr indicators.Value, k float64) Chase {
	distance := price - trigger
	if dir == types.SHORT {
		distance = trigger - price
	}
	if !atr.OK || atr.V <= 0 {
		return Chase{Allowed: true, Distance: distance, Reason: "chase_skipped_no_atr"}
	}

	limit := k * atr.V
	if distance > limit {
		return Chase{
			Distance: distance,
			Limit:    limit,
			Reason:   fmt.Sprintf("chase_limit: %.2f past trigger exceeds %.2f (%.2f ATR)", distance, limit, k),
		}
	}
	return Chase{Allowed: true, Distance: distance, Limit: limit}
}
