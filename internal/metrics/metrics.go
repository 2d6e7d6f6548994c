// Package metrics exposes this service's prometheus counters/gauges,
// grounded on LittleSquirrel00-uniedit-server's
// internal/utils/metrics.New, narrowed from its broad HTTP/AI/auth/
// cache surface down to the poller/sender/CRM domain this service owns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	StatusChecksTotal       *prometheus.CounterVec
	StatusCheckDuration     *prometheus.HistogramVec
	PaymentTransitionsTotal *prometheus.CounterVec
	PaymentsAbandonedTotal  *prometheus.CounterVec

	CRMPushesTotal  *prometheus.CounterVec
	CRMPushDuration prometheus.Histogram
	CRMQueueDepth   prometheus.Gauge
	CRMBreakerOpen  prometheus.Gauge

	PollerCycleDuration prometheus.Histogram
	SenderCycleDuration prometheus.Histogram
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ninja_payments_reconciler"
	}

	return &Metrics{
		StatusChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "psp",
				Name:      "status_checks_total",
				Help:      "Total number of PSP status polls, by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		StatusCheckDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "psp",
				Name:      "status_check_duration_seconds",
				Help:      "PSP status poll latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		PaymentTransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "transitions_total",
				Help:      "Total number of payment status transitions, by new status",
			},
			[]string{"status"},
		),
		PaymentsAbandonedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "abandoned_total",
				Help:      "Total number of payments abandoned, by reason",
			},
			[]string{"reason"},
		),
		CRMPushesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "crm",
				Name:      "pushes_total",
				Help:      "Total number of CRM push attempts, by outcome",
			},
			[]string{"outcome"},
		),
		CRMPushDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "crm",
				Name:      "push_duration_seconds",
				Help:      "CRM push latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		CRMQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "crm",
				Name:      "queue_depth",
				Help:      "Number of CRM push items picked up in the last cycle",
			},
		),
		CRMBreakerOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "crm",
				Name:      "breaker_open",
				Help:      "Whether the CRM circuit breaker is currently open (1) or not (0)",
			},
		),
		PollerCycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "poller",
				Name:      "cycle_duration_seconds",
				Help:      "PSP poller cycle duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SenderCycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sender",
				Name:      "cycle_duration_seconds",
				Help:      "CRM sender cycle duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

func (m *Metrics) RecordStatusCheck(provider, outcome string, duration time.Duration) {
	m.StatusChecksTotal.WithLabelValues(provider, outcome).Inc()
	m.StatusCheckDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordTransition(status string) {
	m.PaymentTransitionsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordAbandoned(reason string) {
	m.PaymentsAbandonedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordCRMPush(outcome string, duration time.Duration) {
	m.CRMPushesTotal.WithLabelValues(outcome).Inc()
	m.CRMPushDuration.Observe(duration.Seconds())
}

// Handler returns the promhttp handler this service mounts at
// METRICS_ADDR's /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
