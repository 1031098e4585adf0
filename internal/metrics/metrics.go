// Package metrics exposes Prometheus instruments for the forecast pass.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors updated by a forecast pass. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	MemesFetched   prometheus.Counter
	MemesScored    prometheus.Counter
	Alerts         *prometheus.CounterVec
	WriteFailures  *prometheus.CounterVec
	FetchFailures  prometheus.Counter
	Snapshots      prometheus.Counter
	LastRunSeconds prometheus.Gauge
	LastTopScore   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MemesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trendcast",
			Name:      "memes_fetched_total",
			Help:      "Memes returned by the trending window query.",
		}),
		MemesScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trendcast",
			Name:      "memes_scored_total",
			Help:      "Memes scored and passed to the forecast updater.",
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trendcast",
			Name:      "alerts_total",
			Help:      "Alerts raised, by kind.",
		}, []string{"kind"}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trendcast",
			Name:      "write_failures_total",
			Help:      "Failed store or sink writes, by operation.",
		}, []string{"op"}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trendcast",
			Name:      "fetch_failures_total",
			Help:      "Trending window queries that failed.",
		}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trendcast",
			Name:      "snapshots_total",
			Help:      "Trending snapshots written.",
		}),
		LastRunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trendcast",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the most recent forecast pass.",
		}),
		LastTopScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trendcast",
			Name:      "last_top_forecast_score",
			Help:      "Highest forecast score in the most recent snapshot.",
		}),
	}
	reg.MustRegister(
		m.MemesFetched,
		m.MemesScored,
		m.Alerts,
		m.WriteFailures,
		m.FetchFailures,
		m.Snapshots,
		m.LastRunSeconds,
		m.LastTopScore,
	)
	return m
}

func (m *Metrics) Fetched(n int) {
	if m == nil {
		return
	}
	m.MemesFetched.Add(float64(n))
}

func (m *Metrics) FetchFailed() {
	if m == nil {
		return
	}
	m.FetchFailures.Inc()
}

func (m *Metrics) Scored() {
	if m == nil {
		return
	}
	m.MemesScored.Inc()
}

func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(kind).Inc()
}

func (m *Metrics) WriteFailed(op string) {
	if m == nil {
		return
	}
	m.WriteFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) SnapshotWritten(topScore float64) {
	if m == nil {
		return
	}
	m.Snapshots.Inc()
	m.LastTopScore.Set(topScore)
}

func (m *Metrics) RunFinished(seconds float64) {
	if m == nil {
		return
	}
	m.LastRunSeconds.Set(seconds)
}
