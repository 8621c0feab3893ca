package risk

import (
	"testing"

	"github.com/jwtly10/tradegate/internal/decision"
	"github.com/jwtly10/tradegate/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate_LongThreatenedNotHit(t *testing.T) {
	p := decision.Play{
		Direction:  types.LONG,
		EntryZone:  types.Zone{Low: 100.25, High: 100.75},
		EntryPrice: 100.50,
		Stop:       100,
		Targets:    decision.Targets{T1: 101.5, T2: 102, T3: 102.5},
	}

	ev := Evaluate(p, 100.05)

	assert.False(t, ev.StopHit)
	assert.True(t, ev.StopThreatened, "100.05 is inside stop + 0.25R = 100.125")
	assert.InDelta(t, 0.05, ev.DistanceDollars, 1e-9)
	assert.InDelta(t, 100*0.05/100.05, ev.DistancePct, 1e-9)
	assert.InDelta(t, 0.5, ev.Risk, 1e-9)
	assert.InDelta(t, (101.5-100.5)/0.5, ev.RMultipleT1(), 1e-9)
	assert.False(t, ev.InEntryZone)
	assert.Equal(t, 0, ev.TargetsReached)
}

func TestEvaluate_ShortHitOnClose(t *testing.T) {
	p := decision.Play{
		Direction:  types.SHORT,
		EntryPrice: 101,
		Stop:       102,
		Targets:    decision.Targets{T1: 99, T2: 98, T3: 97},
	}

	ev := Evaluate(p, 102.01)

	assert.True(t, ev.StopHit)
	assert.False(t, ev.StopThreatened, "a hit stop is not merely threatened")
	assert.InDelta(t, 1.0, ev.Risk, 1e-9)
	assert.InDelta(t, 2.0, ev.RMultipleT1(), 1e-9)
	assert.InDelta(t, -0.01, ev.DistanceDollars, 1e-9, "negative distance means the close is past the stop")
}

func TestEvaluate_StopExactlyOnClose(t *testing.T) {
	p := decision.Play{Direction: types.LONG, EntryPrice: 10, Stop: 9}
	assert.True(t, Evaluate(p, 9).StopHit)
	assert.False(t, Evaluate(p, 9.01).StopHit)
}

func TestTargetsReached(t *testing.T) {
	long := decision.Play{Direction: types.LONG, EntryPrice: 100, Stop: 99, Targets: decision.Targets{T1: 101, T2: 102, T3: 103}}
	assert.Equal(t, 0, TargetsReached(long, 100.9))
	assert.Equal(t, 1, TargetsReached(long, 101))
	assert.Equal(t, 3, TargetsReached(long, 104))

	short := decision.Play{Direction: types.SHORT, EntryPrice: 100, Stop: 101, Targets: decision.Targets{T1: 99, T2: 98, T3: 97}}
	assert.Equal(t, 2, TargetsReached(short, 97.5))
}

func TestRMultiple_ZeroRisk(t *testing.T) {
	assert.Equal(t, 0.0, RMultiple(types.LONG, 100, 105, 0))
}
