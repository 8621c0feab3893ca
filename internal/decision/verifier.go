package decision

// Verifier is the external oracle consulted before a play is armed. A nil result means no
// answer was obtained.
type Verifier interface {
	Verify(c SetupCandidate, ev RuleEvidence) *Verification
}

type VerifierFunc func(c SetupCandidate, ev RuleEvidence) *Verification

func (f VerifierFunc) Verify(c SetupCandidate, ev RuleEvidence) *Verification {
	return f(c, ev)
}

// ScoreVerifier answers from the candidate score alone. Replays use it in place of the remote
// oracle.
type ScoreVerifier struct {
	FullScore  int `yaml:"full_score" default:"75" validate:"gte=0,lte=100"`
	ScoutScore int `yaml:"scout_score" default:"60" validate:"gte=0,ltefield=FullScore"`
	WaitScore  int `yaml:"wait_score" default:"45" validate:"gte=0,ltefield=ScoutScore"`
}

func DefaultScoreVerifier() ScoreVerifier {
	return ScoreVerifier{FullScore: 75, ScoutScore: 60, WaitScore: 45}
}

func (v ScoreVerifier) Verify(c SetupCandidate, ev RuleEvidence) *Verification {
	p := float64(c.Score) / 100
	res := &Verification{Probability: &p}
	switch {
	case c.Score >= v.FullScore:
		res.Action = ApproveFull
	case c.Score >= v.ScoutScore:
		res.Action = ApproveScout
	case c.Score >= v.WaitScore:
		res.Action = Wait
	default:
		res.Action = Pass
	}
	if len(ev.Warnings) > 0 && res.Action == ApproveFull {
		res.Action = ApproveScout
		res.Notes = "downgraded on filter warnings"
	}
	return res
}
