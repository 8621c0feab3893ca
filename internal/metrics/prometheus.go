// Package metrics records pipeline activity with Prometheus.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var regimes = []string{"TREND_UP", "TREND_DOWN", "CHOP", "TRANSITION", "UNKNOWN"}

// Recorder implements engine.Metrics using Prometheus.
type Recorder struct {
	ticks         *prometheus.CounterVec
	staleBars     *prometheus.CounterVec
	invalidBars   *prometheus.CounterVec
	events        *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	regime        *prometheus.GaugeVec
	tickLatency   *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_ticks_total",
				Help: "Bars submitted to the engine",
			},
			[]string{"symbol", "timeframe"},
		),
		staleBars: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_stale_bars_total",
				Help: "Bars ignored because their timestamp was not after the last accepted bar",
			},
			[]string{"symbol", "timeframe"},
		),
		invalidBars: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_invalid_bars_total",
				Help: "Bars ignored because a price or the volume was not finite or the range did not cover open and close",
			},
			[]string{"symbol", "timeframe"},
		),
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_events_total",
				Help: "Domain events emitted",
			},
			[]string{"symbol", "type"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_decisions_total",
				Help: "Decisions by status",
			},
			[]string{"symbol", "status"},
		),
		publishErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_publish_errors_total",
				Help: "Events that a sink failed to deliver",
			},
			[]string{"sink"},
		),
		regime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradegate_regime",
				Help: "1 for the current regime of a symbol, 0 otherwise",
			},
			[]string{"symbol", "regime"},
		),
		tickLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradegate_tick_duration_seconds",
				Help:    "Time spent processing a single bar",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) TickProcessed(symbol, timeframe string) {
	r.ticks.WithLabelValues(symbol, timeframe).Inc()
}

func (r *Recorder) StaleBar(symbol, timeframe string) {
	r.staleBars.WithLabelValues(symbol, timeframe).Inc()
}

func (r *Recorder) InvalidBar(symbol, timeframe string) {
	r.invalidBars.WithLabelValues(symbol, timeframe).Inc()
}

func (r *Recorder) EventEmitted(symbol, eventType string) {
	r.events.WithLabelValues(symbol, eventType).Inc()
}

func (r *Recorder) DecisionMade(symbol, status string) {
	r.decisions.WithLabelValues(symbol, status).Inc()
}

// RegimeChanged flips the gauge for symbol to the given regime.
func (r *Recorder) RegimeChanged(symbol, regime string) {
	for _, name := range regimes {
		v := 0.0
		if name == regime {
			v = 1
		}
		r.regime.WithLabelValues(symbol, name).Set(v)
	}
}

func (r *Recorder) PublishFailed(sink string) {
	r.publishErrors.WithLabelValues(sink).Inc()
}

func (r *Recorder) ObserveTick(symbol string, d time.Duration) {
	r.tickLatency.WithLabelValues(symbol).Observe(d.Seconds())
}

// Serve exposes the gatherer on addr under /metrics. The server runs until closed.
func Serve(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Metrics server stopped", "addr", addr, "error", err)
		}
	}()
	return srv
}
