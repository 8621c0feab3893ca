package decision

import (
	"math"

	"github.com/jwtly10/tradegate/internal/regime"
	"github.com/jwtly10/tradegate/internal/structure"
	"github.com/jwtly10/tradegate/internal/timing"
	"github.com/jwtly10/tradegate/internal/types"
)

const (
	NO_SETUP Status = "NO_SETUP"
	BLOCKED  Status = "BLOCKED"
	LLM_PASS Status = "LLM_PASS"
	ARMED    Status = "ARMED"

	FULL  Mode = "FULL"
	SCOUT Mode = "SCOUT"

	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"

	PlayArmed   PlayStatus = "ARMED"
	PlayEntered PlayStatus = "ENTERED"
	PlayClosed  PlayStatus = "CLOSED"

	ApproveFull  Action = "approve-full"
	ApproveScout Action = "approve-scout"
	Wait         Action = "wait"
	Pass         Action = "pass"
)

type (
	Status     string
	Mode       string
	Grade      string
	PlayStatus string
	Action     string
)

func (a Action) Approves() bool {
	return a == ApproveFull || a == ApproveScout
}

type Targets struct {
	T1 float64 `json:"t1"`
	T2 float64 `json:"t2"`
	T3 float64 `json:"t3"`
}

func (t Targets) List() []float64 {
	return []float64{t.T1, t.T2, t.T3}
}

// SetupCandidate is a trade idea before verification.
type SetupCandidate struct {
	Symbol       string          `json:"symbol"`
	Direction    types.Direction `json:"direction"`
	EntryZone    types.Zone      `json:"entryZone"`
	EntryPrice   float64         `json:"entryPrice"`
	Stop         float64         `json:"stop"`
	Targets      Targets         `json:"targets"`
	TriggerPrice float64         `json:"triggerPrice"`
	Score        int             `json:"score"`
	Timing       timing.Signal   `json:"timing"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// NewCandidate enters at the middle of the zone and places targets at 1R, 2R and 3R.
func NewCandidate(symbol string, dir types.Direction, zone types.Zone, stop, trigger float64, sig timing.Signal, alignedVotes int, warnings []string) SetupCandidate {
	entry := zone.Mid()
	risk := math.Abs(entry - stop)
	sign := 1.0
	if dir == types.SHORT {
		sign = -1.0
	}
	return SetupCandidate{
		Symbol:       symbol,
		Direction:    dir,
		EntryZone:    zone,
		EntryPrice:   entry,
		Stop:         stop,
		TriggerPrice: trigger,
		Targets: Targets{
			T1: entry + sign*risk,
			T2: entry + sign*2*risk,
			T3: entry + sign*3*risk,
		},
		Score:    Score(sig.Score, alignedVotes),
		Timing:   sig,
		Warnings: warnings,
	}
}

// Score weights timing at 70% and adds 10 points per regime vote agreeing with the trade,
// capped at 100.
func Score(timingScore, alignedVotes int) int {
	s := int(math.Round(0.7*float64(timingScore))) + 10*alignedVotes
	return min(s, 100)
}

// RuleEvidence is what the rules saw when the candidate was built. The verifier receives it
// alongside the candidate.
type RuleEvidence struct {
	Regime    regime.Regime   `json:"regime"`
	MacroBias regime.Bias     `json:"macroBias"`
	Structure structure.Kind  `json:"structure"`
	BullScore int             `json:"bullScore"`
	BearScore int             `json:"bearScore"`
	Timing    timing.State    `json:"timing"`
	ChaseATR  float64         `json:"chaseAtr"`
	Warnings  []string        `json:"warnings,omitempty"`
	Side      types.Direction `json:"side"`
}

// Verification is the result of the external oracle.
type Verification struct {
	Action            Action   `json:"action"`
	Probability       *float64 `json:"probability,omitempty"`
	Legitimacy        *float64 `json:"legitimacy,omitempty"`
	FollowThroughProb *float64 `json:"followThroughProb,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

// Play is an armed trade plan. Only Decide creates one.
type Play struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Direction      types.Direction `json:"direction"`
	EntryZone      types.Zone      `json:"entryZone"`
	EntryPrice     float64         `json:"entryPrice"`
	Stop           float64         `json:"stop"`
	Targets        Targets         `json:"targets"`
	Mode           Mode            `json:"mode"`
	Grade          Grade           `json:"grade"`
	Confidence     float64         `json:"confidence"`
	Status         PlayStatus      `json:"status"`
	InEntryZone    bool            `json:"inEntryZone"`
	StopHit        bool            `json:"stopHit"`
	StopThreatened bool            `json:"stopThreatened"`
	TargetsHit     int             `json:"targetsHit"`
	ArmedTS        int64           `json:"armedTs"`
	ExpiresTS      int64           `json:"expiresTs"`
	EnteredTS      int64           `json:"enteredTs,omitempty"`
	ClosedTS       int64           `json:"closedTs,omitempty"`
	ExitPrice      float64         `json:"exitPrice,omitempty"`
	ExitReason     string          `json:"exitReason,omitempty"`
}

// Risk is the distance from entry to stop.
func (p Play) Risk() float64 {
	return math.Abs(p.EntryPrice - p.Stop)
}

type Decision struct {
	DecisionID   string          `json:"decisionId"`
	Symbol       string          `json:"symbol,omitempty"`
	TS           int64           `json:"ts"`
	Status       Status          `json:"status"`
	Blockers     []string        `json:"blockers"`
	Candidate    *SetupCandidate `json:"candidate,omitempty"`
	Verification *Verification   `json:"verification,omitempty"`
	Play         *Play           `json:"play,omitempty"`
}

func GradeFor(score int) Grade {
	switch {
	case score >= 70:
		return GradeA
	case score >= 60:
		return GradeB
	case score >= 50:
		return GradeC
	}
	return GradeD
}
