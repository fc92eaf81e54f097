// Package metrics exposes the monitor's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	InvalidEventsTotal prometheus.Counter
	VerdictsTotal      *prometheus.CounterVec
	AlertsTotal        *prometheus.CounterVec
	DeliveryFailures   prometheus.Counter
	TrackedIdentities  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modelguard_events_total",
			Help: "Telemetry events accepted for evaluation, by source.",
		}, []string{"source"}),
		InvalidEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modelguard_invalid_events_total",
			Help: "Events rejected by the normalizer.",
		}),
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modelguard_verdicts_total",
			Help: "Threat verdicts produced, by severity.",
		}, []string{"severity"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modelguard_alerts_total",
			Help: "Alert decisions, by outcome (fired or suppressed).",
		}, []string{"outcome"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modelguard_alert_delivery_failures_total",
			Help: "Alert deliveries that failed after the retry.",
		}),
		TrackedIdentities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modelguard_tracked_identities",
			Help: "Identities currently held in the per-identity state table.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.EventsTotal,
			m.InvalidEventsTotal,
			m.VerdictsTotal,
			m.AlertsTotal,
			m.DeliveryFailures,
			m.TrackedIdentities,
		)
	}
	return m
}
