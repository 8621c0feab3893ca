// Package decision turns a setup candidate, the rule evidence and the verifier's answer into an
// authoritative decision, and builds the Play when it is armed.
package decision

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jwtly10/tradegate/internal/logging"
)

const (
	NoActivePlay = "no_active_play"
	ArmingFailed = "arming_failed"
)

var (
	// IDs are name-based so that replaying the same bars yields the same decisions.
	decisionNamespace = uuid.MustParse("6f1c8e0a-3b7d-4c52-9a0e-2d4b8f61c7a3")

	decisionLog = logging.New("decision")
)

type Input struct {
	Symbol       string
	Candidate    *SetupCandidate
	Evidence     *RuleEvidence
	Verification *Verification
	Blockers     []string
	TS           int64
	Validity     time.Duration
}

func newID(kind, symbol string, ts int64, detail string) string {
	return uuid.NewSHA1(decisionNamespace, []byte(fmt.Sprintf("%s|%s|%d|%s", kind, symbol, ts, detail))).String()
}

// Decide is a pure function of its input.
func Decide(in Input) Decision {
	blockers := make([]string, 0, len(in.Blockers)+1)
	for _, b := range in.Blockers {
		if !slices.Contains(blockers, b) {
			blockers = append(blockers, b)
		}
	}

	d := Decision{
		Symbol:       in.Symbol,
		TS:           in.TS,
		Candidate:    in.Candidate,
		Verification: in.Verification,
	}

	switch {
	case in.Candidate == nil:
		d.Status = NO_SETUP
		if len(blockers) == 0 {
			blockers = append(blockers, NoActivePlay)
		}
	case in.Verification == nil || !in.Verification.Action.Approves():
		d.Status = BLOCKED
		if !slices.Contains(blockers, ArmingFailed) {
			blockers = append(blockers, ArmingFailed)
		}
	case len(blockers) > 0:
		d.Status = LLM_PASS
	default:
		d.Status = ARMED
		d.Play = buildPlay(in)
	}

	d.Blockers = blockers
	d.DecisionID = newID("decision", in.Symbol, in.TS, string(d.Status))

	decisionLog.Debug("Decision made", "symbol", in.Symbol, "status", d.Status, "blockers", d.Blockers)
	return d
}

func buildPlay(in Input) *Play {
	c := in.Candidate
	mode := SCOUT
	if in.Verification.Action == ApproveFull {
		mode = FULL
	}
	confidence := float64(c.Score) / 100
	if in.Verification.Probability != nil {
		confidence = *in.Verification.Probability
	}

	return &Play{
		ID:         newID("play", in.Symbol, in.TS, string(c.Direction)),
		Symbol:     in.Symbol,
		Direction:  c.Direction,
		EntryZone:  c.EntryZone,
		EntryPrice: c.EntryPrice,
		Stop:       c.Stop,
		Targets:    c.Targets,
		Mode:       mode,
		Grade:      GradeFor(c.Score),
		Confidence: confidence,
		Status:     PlayArmed,
		ArmedTS:    in.TS,
		ExpiresTS:  in.TS + in.Validity.Milliseconds(),
	}
}

// NoEntry records an explicit block with a single reason.
func NoEntry(ts int64, reason string) Decision {
	return Decision{
		DecisionID: newID("no-entry", "", ts, reason),
		TS:         ts,
		Status:     BLOCKED,
		Blockers:   []string{reason},
	}
}
