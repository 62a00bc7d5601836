package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles reconciliation run metrics.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	CasesProcessed     prometheus.Counter
	AlarmsTriggered    prometheus.Counter
	AlarmsAutoResolved prometheus.Counter
	CaseErrors         prometheus.Counter
	LastRunTimestamp   prometheus.Gauge
}

// New constructs and registers metrics.
func New() *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refundtrack_reconcile_runs_total",
				Help: "Total batch reconciliation runs by result",
			},
			[]string{"result"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "refundtrack_reconcile_run_duration_seconds",
			Help:    "Batch reconciliation run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		CasesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refundtrack_reconcile_cases_processed_total",
			Help: "Total cases processed by batch reconciliation",
		}),
		AlarmsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refundtrack_reconcile_alarms_triggered_total",
			Help: "Net alarm records opened during batch runs",
		}),
		AlarmsAutoResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refundtrack_reconcile_alarms_auto_resolved_total",
			Help: "Net alarm records auto-resolved during batch runs",
		}),
		CaseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refundtrack_reconcile_case_errors_total",
			Help: "Per-case reconciliation failures isolated during batch runs",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "refundtrack_reconcile_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed batch run",
		}),
	}
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.CasesProcessed,
		m.AlarmsTriggered,
		m.AlarmsAutoResolved,
		m.CaseErrors,
		m.LastRunTimestamp,
	)
	return m
}
