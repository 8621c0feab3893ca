// Package aggregate rolls closed fine-grained bars into coarser closed bars.
package aggregate

import (
	"math"
	"time"

	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/types"
)

var aggLog = logging.New("aggregate")

// Aggregator holds the open bucket for a single bucket size. It is the only stateful piece of
// the pipeline below the engine.
type Aggregator struct {
	bucketMs int64
	start    int64
	current  types.Bar
	open     bool
}

func New(bucket time.Duration) *Aggregator {
	return &Aggregator{bucketMs: bucket.Milliseconds()}
}

func (a *Aggregator) bucketStart(ts int64) int64 {
	// floor division so pre-epoch timestamps still land in the right bucket
	q := ts / a.bucketMs
	if ts%a.bucketMs != 0 && ts < 0 {
		q--
	}
	return q * a.bucketMs
}

// Add folds bar into the open bucket. When bar starts a new bucket the previous bucket is
// returned as a completed bar stamped with the last millisecond of its bucket.
func (a *Aggregator) Add(bar types.Bar) (types.Bar, bool) {
	start := a.bucketStart(bar.TS)

	if !a.open {
		a.begin(start, bar)
		return types.Bar{}, false
	}

	if start == a.start {
		a.current.High = math.Max(a.current.High, bar.High)
		a.current.Low = math.Min(a.current.Low, bar.Low)
		a.current.Close = bar.Close
		a.current.Volume += bar.Volume
		return types.Bar{}, false
	}

	completed := a.current
	completed.TS = a.start + a.bucketMs - 1
	a.begin(start, bar)

	aggLog.Debug("Bucket completed", "ts", completed.TS, "close", completed.Close, "volume", completed.Volume)
	return completed, true
}

func (a *Aggregator) begin(start int64, bar types.Bar) {
	a.start = start
	a.current = bar
	a.open = true
}

// Pending returns a copy of the open bucket, stamped as if it were complete.
func (a *Aggregator) Pending() (types.Bar, bool) {
	if !a.open {
		return types.Bar{}, false
	}
	p := a.current
	p.TS = a.start + a.bucketMs - 1
	return p, true
}

// Reset drops the open bucket.
func (a *Aggregator) Reset() {
	a.open = false
	a.current = types.Bar{}
}

// Aggregate is the bulk form of Add: every bucket, including the last partial one.
func Aggregate(bars []types.Bar, bucket time.Duration) []types.Bar {
	agg := New(bucket)
	var out []types.Bar
	for _, b := range bars {
		if completed, ok := agg.Add(b); ok {
			out = append(out, completed)
		}
	}
	if pending, ok := agg.Pending(); ok {
		out = append(out, pending)
	}
	return out
}
