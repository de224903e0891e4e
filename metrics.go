package sessiontxn

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the process-wide transaction counters and gauges (C7),
// mirroring ServerTransactionsMetrics in the source this module was
// modeled on: totals are monotone counters, currents are point-in-time
// gauges adjusted as sessions move between states.
type Metrics struct {
	TotalStarted   prometheus.Counter
	TotalCommitted prometheus.Counter
	TotalAborted   prometheus.Counter

	CurrentOpen     prometheus.Gauge
	CurrentActive   prometheus.Gauge
	CurrentInactive prometheus.Gauge
}

// NewMetrics builds a Metrics set and registers it with reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid colliding with a process-wide
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TotalStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiontxn",
			Name:      "started_total",
			Help:      "Total number of multi-statement transactions started.",
		}),
		TotalCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiontxn",
			Name:      "committed_total",
			Help:      "Total number of transactions that reached Committed.",
		}),
		TotalAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiontxn",
			Name:      "aborted_total",
			Help:      "Total number of transactions that reached Aborted.",
		}),
		CurrentOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sessiontxn",
			Name:      "open_current",
			Help:      "Number of multi-statement transactions currently open.",
		}),
		CurrentActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sessiontxn",
			Name:      "active_current",
			Help:      "Number of open transactions currently executing a command.",
		}),
		CurrentInactive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sessiontxn",
			Name:      "inactive_current",
			Help:      "Number of open transactions currently stashed between commands.",
		}),
	}
	reg.MustRegister(m.TotalStarted, m.TotalCommitted, m.TotalAborted, m.CurrentOpen, m.CurrentActive, m.CurrentInactive)
	return m
}

// NewNoopMetrics returns a Metrics backed by a private registry, for callers
// (and tests) that don't want to touch the default Prometheus registerer.
func NewNoopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
