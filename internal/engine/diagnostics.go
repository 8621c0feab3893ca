package engine

import (
	"maps"

	"github.com/jwtly10/tradegate/internal/indicators"
	"github.com/jwtly10/tradegate/internal/regime"
	"github.com/jwtly10/tradegate/internal/structure"
	"github.com/jwtly10/tradegate/internal/timing"
)

const (
	INSUFFICIENT_DATA   = "INSUFFICIENT_DATA"
	STALE_BAR_IGNORED   = "STALE_BAR_IGNORED"
	INVALID_BAR_IGNORED = "INVALID_BAR_IGNORED"
)

// Stage keys for Diagnostics.Stages.
const (
	stageRegime   = "regime"
	stageLatch    = "latch"
	stageGate     = "gate"
	stageFilters  = "filters"
	stageDecision = "decision"
	stagePlay     = "play"
)

// Diagnostics is the observability view of the last decision bar. Nothing in the pipeline
// reads it back.
type Diagnostics struct {
	Symbol         string              `json:"symbol"`
	TS             int64               `json:"ts"`
	Bars           int                 `json:"bars"`
	MacroBars      int                 `json:"macroBars"`
	SufficientData bool                `json:"sufficientData"`
	Reason         string              `json:"reason,omitempty"`
	Regime         regime.Result       `json:"regime"`
	Structure      structure.Result    `json:"structure"`
	MacroBias      regime.Bias         `json:"macroBias"`
	Indicators     indicators.Snapshot `json:"indicators"`
	Phase          Phase               `json:"phase"`
	Timing         *timing.Signal      `json:"timing,omitempty"`
	// Stages holds the latest reason per pipeline stage.
	Stages map[string]string `json:"stages,omitempty"`
}

func (d Diagnostics) clone() Diagnostics {
	d.Stages = maps.Clone(d.Stages)
	if d.Timing != nil {
		t := *d.Timing
		d.Timing = &t
	}
	return d
}

func (d *Diagnostics) stage(name, reason string) {
	if d.Stages == nil {
		d.Stages = make(map[string]string)
	}
	d.Stages[name] = reason
}
