package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.TickProcessed("QQQ", "1m")
	r.TickProcessed("QQQ", "1m")
	r.StaleBar("QQQ", "1m")
	r.InvalidBar("QQQ", "5m")
	r.EventEmitted("QQQ", "PLAY_ARMED")
	r.DecisionMade("QQQ", "ARMED")
	r.PublishFailed("kafka")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticks.WithLabelValues("QQQ", "1m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.staleBars.WithLabelValues("QQQ", "1m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.invalidBars.WithLabelValues("QQQ", "5m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues("QQQ", "PLAY_ARMED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("QQQ", "ARMED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.publishErrors.WithLabelValues("kafka")))
}

func TestRecorder_RegimeGaugeIsOneHot(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RegimeChanged("QQQ", "TREND_UP")
	r.RegimeChanged("QQQ", "CHOP")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.regime.WithLabelValues("QQQ", "CHOP")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.regime.WithLabelValues("QQQ", "TREND_UP")))
}

func TestRecorder_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.ObserveTick("QQQ", 250*time.Microsecond)

	count, err := testutil.GatherAndCount(reg, "tradegate_tick_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) }, "separate registries do not collide")
}
