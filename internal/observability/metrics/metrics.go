package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "refundtrack_"

var (
	registerOnce sync.Once

	alarmEventsTotal *prometheus.CounterVec

	reconcileTotal   *prometheus.CounterVec
	reconcileLatency *prometheus.HistogramVec

	statusChangesTotal *prometheus.CounterVec

	notifyOutboxPending prometheus.Gauge
	notifyDeliveries    *prometheus.CounterVec

	openAlarmsGauge *prometheus.GaugeVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total alarm lifecycle events by type",
			},
			[]string{"event"},
		)
		reconcileTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "case_reconciliations_total",
				Help: "Total single-case reconciliations by result",
			},
			[]string{"result"},
		)
		reconcileLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "case_reconciliation_latency_seconds",
				Help:    "Single-case reconciliation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		statusChangesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "status_changes_total",
				Help: "Total status transitions by family and result",
			},
			[]string{"family", "result"},
		)
		notifyOutboxPending = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "notify_outbox_pending",
				Help: "Pending notification outbox rows",
			},
		)
		notifyDeliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_deliveries_total",
				Help: "Notification delivery attempts by result",
			},
			[]string{"result"},
		)
		openAlarmsGauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "open_alarms",
				Help: "Open alarm records by severity",
			},
			[]string{"severity"},
		)

		prometheus.MustRegister(
			alarmEventsTotal,
			reconcileTotal,
			reconcileLatency,
			statusChangesTotal,
			notifyOutboxPending,
			notifyDeliveries,
			openAlarmsGauge,
		)

		if db != nil {
			go pollOpenAlarms(db, logger)
		}
	})
}

// IncAlarmEvent counts an alarm lifecycle event (triggered, acknowledged,
// resolved, dismissed, auto_resolved).
func IncAlarmEvent(event string) {
	if alarmEventsTotal == nil {
		return
	}
	alarmEventsTotal.WithLabelValues(event).Inc()
}

// ObserveReconcile records one single-case reconciliation.
func ObserveReconcile(result string, elapsed time.Duration) {
	if reconcileTotal == nil {
		return
	}
	reconcileTotal.WithLabelValues(result).Inc()
	reconcileLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}

// IncStatusChange counts a status transition attempt.
func IncStatusChange(family, result string) {
	if statusChangesTotal == nil {
		return
	}
	statusChangesTotal.WithLabelValues(family, result).Inc()
}

// SetOutboxPending updates the pending outbox gauge.
func SetOutboxPending(count int) {
	if notifyOutboxPending == nil {
		return
	}
	notifyOutboxPending.Set(float64(count))
}

// IncNotifyDelivery counts a notification delivery attempt.
func IncNotifyDelivery(result string) {
	if notifyDeliveries == nil {
		return
	}
	notifyDeliveries.WithLabelValues(result).Inc()
}

func pollOpenAlarms(db *sql.DB, logger *log.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rows, err := db.Query(`
SELECT severity, COUNT(*)
FROM alarm_records
WHERE resolution IN ('active', 'acknowledged')
GROUP BY severity`)
		if err != nil {
			if logger != nil {
				logger.Printf("event=open_alarm_gauge_error err=%v", err)
			}
			continue
		}
		counts := map[string]float64{"warning": 0, "critical": 0}
		for rows.Next() {
			var severity string
			var count float64
			if err := rows.Scan(&severity, &count); err != nil {
				break
			}
			counts[severity] = count
		}
		rows.Close()
		for severity, count := range counts {
			openAlarmsGauge.WithLabelValues(severity).Set(count)
		}
	}
}
