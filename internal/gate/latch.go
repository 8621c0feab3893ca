// Package gate holds the breakout state machine: the opportunity latch that waits for a trigger,
// the resolution gate that time-boxes entry after it fires, and chase protection.
package gate

import (
	"errors"
	"fmt"
	"math"

	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/structure"
	"github.com/jwtly10/tradegate/internal/types"
)

const (
	PENDING     Status = "PENDING"
	ARMED       Status = "ARMED"
	TRIGGERED   Status = "TRIGGERED"
	EXPIRED     Status = "EXPIRED"
	INVALIDATED Status = "INVALIDATED"

	Breakout  TriggerType = "BREAKOUT"
	Breakdown TriggerType = "BREAKDOWN"
)

var (
	ErrInvalidZone       = errors.New("invalid latch zone")
	ErrInvalidExpiry     = errors.New("invalid expiry")
	ErrInvalidTransition = errors.New("invalid state transition")

	latchLog = logging.New("latch")
)

type Status string

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == EXPIRED || s == INVALIDATED
}

type TriggerType string

type Trigger struct {
	Type  TriggerType `json:"type"`
	Price float64     `json:"price"`
}

type Stop struct {
	Price  float64 `json:"price"`
	Reason string  `json:"reason"`
}

// Latch is a directional thesis waiting for a close through its trigger.
type Latch struct {
	Status       Status          `json:"status"`
	Side         types.Direction `json:"side"`
	Zone         types.Zone      `json:"zone"`
	Trigger      Trigger         `json:"trigger"`
	Stop         Stop            `json:"stop"`
	ArmedAtPrice float64         `json:"armedAtPrice"`
	LatchedAtTS  int64           `json:"latchedAtTs"`
	ExpiresAtTS  int64           `json:"expiresAtTs"`
	Reason       string          `json:"reason,omitempty"`
}

// NewLatch returns a PENDING latch. The zone must be non-empty and the expiry after the latch
// time.
func NewLatch(side types.Direction, zone types.Zone, stop Stop, latchedAt, expiresAt int64) (*Latch, error) {
	if !(zone.Low < zone.High) {
		return nil, fmt.Errorf("%w: low %.4f must be below high %.4f", ErrInvalidZone, zone.Low, zone.High)
	}
	if expiresAt <= latchedAt {
		return nil, fmt.Errorf("%w: expires %d not after latched %d", ErrInvalidExpiry, expiresAt, latchedAt)
	}
	return &Latch{
		Status:      PENDING,
		Side:        side,
		Zone:        zone,
		Stop:        stop,
		LatchedAtTS: latchedAt,
		ExpiresAtTS: expiresAt,
	}, nil
}

// Arm sets the trigger and moves PENDING to ARMED.
func (l *Latch) Arm(trigger Trigger, price float64) error {
	if l.Status != PENDING {
		return fmt.Errorf("%w: arm from %s", ErrInvalidTransition, l.Status)
	}
	l.Trigger = trigger
	l.ArmedAtPrice = price
	l.Status = ARMED
	return nil
}

// Observe advances an ARMED latch on a bar close. Expiry is checked before the trigger, and
// a close through the stop invalidates the thesis before it ever fires.
func (l *Latch) Observe(price float64, now int64) Status {
	if l.Status != ARMED {
		return l.Status
	}

	switch {
	case now > l.ExpiresAtTS:
		l.Status = EXPIRED
		l.Reason = "latch window elapsed without trigger"
	case stopBreached(l.Side, price, l.Stop.Price):
		l.Invalidate("close through stop before trigger")
	case crossed(l.Side, price, l.Trigger.Price):
		l.Status = TRIGGERED
	}

	latchLog.Debug("Latch observed", "side", l.Side, "close", price, "trigger", l.Trigger.Price, "status", l.Status)
	return l.Status
}

// Invalidate moves a live latch to INVALIDATED. Terminal latches are left alone.
func (l *Latch) Invalidate(reason string) {
	if l.Status.Terminal() {
		return
	}
	l.Status = INVALIDATED
	l.Reason = reason
}

func crossed(side types.Direction, price, trigger float64) bool {
	if side == types.SHORT {
		return price < trigger
	}
	return price > trigger
}

func stopBreached(side types.Direction, price, stop float64) bool {
	if side == types.SHORT {
		return price >= stop
	}
	return price <= stop
}

type Config struct {
	// RangeBars is how many completed bars before the current one define the trigger level.
	RangeBars    int     `yaml:"range_bars" default:"12" validate:"gte=2"`
	ZoneATR      float64 `yaml:"zone_atr" default:"0.25" validate:"gt=0"`
	StopATR      float64 `yaml:"stop_atr" default:"1.0" validate:"gt=0"`
	LatchTTLBars int     `yaml:"latch_ttl_bars" default:"6" validate:"gte=1"`
	// WindowBars sizes the impulse window in decision bars.
	WindowBars int     `yaml:"window_bars" default:"2" validate:"gte=1"`
	ChaseATR   float64 `yaml:"chase_atr" default:"0.8" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		RangeBars:    12,
		ZoneATR:      0.25,
		StopATR:      1.0,
		LatchTTLBars: 6,
		WindowBars:   2,
		ChaseATR:     0.8,
	}
}

// Propose builds an ARMED latch for side from the range of the bars before the last one. The
// trigger is the range extreme, the zone straddles it by ZoneATR and the stop sits StopATR beyond
// it, or at the last opposing pivot when that is closer to the trigger than twice the ATR stop.
func Propose(side types.Direction, bars []types.Bar, atr float64, pivots structure.Result, barMs, now int64, cfg Config) (*Latch, error) {
	if len(bars) < cfg.RangeBars+1 {
		return nil, fmt.Errorf("%w: need %d bars for the range, have %d", ErrInvalidZone, cfg.RangeBars+1, len(bars))
	}
	if atr <= 0 {
		return nil, fmt.Errorf("%w: atr %.4f", ErrInvalidZone, atr)
	}

	last := bars[len(bars)-1]
	rng := bars[len(bars)-1-cfg.RangeBars : len(bars)-1]

	level := rng[0].High
	if side == types.SHORT {
		level = rng[0].Low
	}
	for _, b := range rng[1:] {
		if side == types.SHORT {
			level = math.Min(level, b.Low)
		} else {
			level = math.Max(level, b.High)
		}
	}

	half := cfg.ZoneATR * atr
	zone := types.Zone{Low: level - half, High: level + half}

	stop := Stop{Price: level - cfg.StopATR*atr, Reason: "atr_stop"}
	trigger := Trigger{Type: Breakout, Price: level}
	if side == types.SHORT {
		stop.Price = level + cfg.StopATR*atr
		trigger.Type = Breakdown
	}
	if p, ok := opposingPivot(side, pivots); ok {
		risk := math.Abs(level - p.Price)
		outside := (side == types.LONG && p.Price < zone.Low) || (side == types.SHORT && p.Price > zone.High)
		if outside && risk <= 2*cfg.StopATR*atr {
			stop = Stop{Price: p.Price, Reason: "pivot"}
		}
	}

	l, err := NewLatch(side, zone, stop, now, now+int64(cfg.LatchTTLBars)*barMs)
	if err != nil {
		return nil, err
	}
	if err := l.Arm(trigger, last.Close); err != nil {
		return nil, err
	}
	return l, nil
}

func opposingPivot(side types.Direction, pivots structure.Result) (structure.Pivot, bool) {
	if side == types.SHORT {
		return pivots.LastPivotHigh()
	}
	return pivots.LastPivotLow()
}
