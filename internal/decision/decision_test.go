package decision

import (
	"testing"
	"time"

	"github.com/jwtly10/tradegate/internal/timing"
	"github.com/jwtly10/tradegate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ts = int64(1704205800000)

func candidate(score int) *SetupCandidate {
	c := NewCandidate("QQQ", types.LONG, types.Zone{Low: 100, High: 101}, 99.5, 100.5, timing.Signal{Score: 80}, 0, nil)
	c.Score = score
	return &c
}

func ptr(v float64) *float64 { return &v }

func TestDecide_NoCandidate(t *testing.T) {
	d := Decide(Input{Symbol: "QQQ", TS: ts})
	assert.Equal(t, NO_SETUP, d.Status)
	assert.Equal(t, []string{NoActivePlay}, d.Blockers)
	assert.Nil(t, d.Play)

	d = Decide(Input{Symbol: "QQQ", TS: ts, Blockers: []string{"regime_veto"}})
	assert.Equal(t, []string{"regime_veto"}, d.Blockers, "supplied blockers replace the default")
}

func TestDecide_BlockedWithoutApproval(t *testing.T) {
	for _, v := range []*Verification{nil, {Action: Wait}, {Action: Pass}} {
		d := Decide(Input{Symbol: "QQQ", Candidate: candidate(80), Verification: v, TS: ts})
		assert.Equal(t, BLOCKED, d.Status)
		assert.Equal(t, []string{ArmingFailed}, d.Blockers)
		assert.Nil(t, d.Play)
	}

	d := Decide(Input{
		Symbol:    "QQQ",
		Candidate: candidate(80),
		Blockers:  []string{ArmingFailed, "timing_below_min", ArmingFailed},
		TS:        ts,
	})
	assert.Equal(t, []string{ArmingFailed, "timing_below_min"}, d.Blockers, "arming_failed appears once")
}

func TestDecide_Armed(t *testing.T) {
	d := Decide(Input{
		Symbol:       "QQQ",
		Candidate:    candidate(72),
		Verification: &Verification{Action: ApproveFull, Probability: ptr(0.64)},
		TS:           ts,
		Validity:     30 * time.Minute,
	})

	require.Equal(t, ARMED, d.Status)
	assert.Empty(t, d.Blockers)
	require.NotNil(t, d.Play)

	p := d.Play
	assert.Equal(t, FULL, p.Mode)
	assert.Equal(t, GradeA, p.Grade)
	assert.Equal(t, 0.64, p.Confidence)
	assert.Equal(t, PlayArmed, p.Status)
	assert.Equal(t, ts, p.ArmedTS)
	assert.Equal(t, ts+30*60*1000, p.ExpiresTS)
	assert.Equal(t, 100.5, p.EntryPrice)
	assert.Equal(t, Targets{T1: 101.5, T2: 102.5, T3: 103.5}, p.Targets)
	assert.InDelta(t, 1.0, p.Risk(), 1e-9)
}

func TestDecide_ScoutUsesScoreForConfidence(t *testing.T) {
	d := Decide(Input{
		Symbol:       "QQQ",
		Candidate:    candidate(55),
		Verification: &Verification{Action: ApproveScout},
		TS:           ts,
	})

	require.NotNil(t, d.Play)
	assert.Equal(t, SCOUT, d.Play.Mode)
	assert.Equal(t, GradeC, d.Play.Grade)
	assert.InDelta(t, 0.55, d.Play.Confidence, 1e-9)
}

func TestDecide_ApprovedButRuleBlocked(t *testing.T) {
	d := Decide(Input{
		Symbol:       "QQQ",
		Candidate:    candidate(80),
		Verification: &Verification{Action: ApproveFull},
		Blockers:     []string{"regime_veto"},
		TS:           ts,
	})

	assert.Equal(t, LLM_PASS, d.Status)
	assert.Equal(t, []string{"regime_veto"}, d.Blockers)
	assert.Nil(t, d.Play)
}

func TestDecide_IDsAreDeterministic(t *testing.T) {
	in := Input{Symbol: "QQQ", Candidate: candidate(80), Verification: &Verification{Action: ApproveFull}, TS: ts}

	a, b := Decide(in), Decide(in)
	assert.Equal(t, a.DecisionID, b.DecisionID)
	assert.Equal(t, a.Play.ID, b.Play.ID)

	in.TS++
	assert.NotEqual(t, a.DecisionID, Decide(in).DecisionID)
}

func TestNoEntry(t *testing.T) {
	d := NoEntry(ts, "after_cutoff")

	assert.Equal(t, BLOCKED, d.Status)
	assert.Equal(t, []string{"after_cutoff"}, d.Blockers)
	assert.NotEmpty(t, d.DecisionID)
	assert.Nil(t, d.Candidate)
}

func TestGradeFor(t *testing.T) {
	assert.Equal(t, GradeA, GradeFor(70))
	assert.Equal(t, GradeB, GradeFor(69))
	assert.Equal(t, GradeB, GradeFor(60))
	assert.Equal(t, GradeC, GradeFor(50))
	assert.Equal(t, GradeD, GradeFor(49))
}

func TestNewCandidate_ShortTargets(t *testing.T) {
	c := NewCandidate("QQQ", types.SHORT, types.Zone{Low: 99, High: 100}, 101.5, 99.5, timing.Signal{Score: 50}, 3, nil)

	assert.Equal(t, 99.5, c.EntryPrice)
	assert.Equal(t, Targets{T1: 97.5, T2: 95.5, T3: 93.5}, c.Targets)
	assert.Equal(t, 65, c.Score, "35 from timing plus 30 from three aligned votes")
}

func TestScoreVerifier(t *testing.T) {
	v := DefaultScoreVerifier()

	assert.Equal(t, ApproveFull, v.Verify(*candidate(75), RuleEvidence{}).Action)
	assert.Equal(t, ApproveScout, v.Verify(*candidate(75), RuleEvidence{Warnings: []string{"x"}}).Action)
	assert.Equal(t, ApproveScout, v.Verify(*candidate(60), RuleEvidence{}).Action)
	assert.Equal(t, Wait, v.Verify(*candidate(45), RuleEvidence{}).Action)
	assert.Equal(t, Pass, v.Verify(*candidate(44), RuleEvidence{}).Action)

	res := v.Verify(*candidate(62), RuleEvidence{})
	require.NotNil(t, res.Probability)
	assert.InDelta(t, 0.62, *res.Probability, 1e-9)
}
