// Package metrics exposes the Prometheus collectors of the payments API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts webhook deliveries by provider and result.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradorr",
		Name:      "webhook_events_total",
		Help:      "Webhook deliveries by provider and outcome.",
	}, []string{"provider", "outcome"})

	// PaymentInitiations counts checkout creations by provider and result.
	PaymentInitiations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradorr",
		Name:      "payment_initiations_total",
		Help:      "Payment initiations by provider and result.",
	}, []string{"provider", "result"})

	// AnalyzerRequests counts analyzer usage checks by decision.
	AnalyzerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradorr",
		Name:      "analyzer_requests_total",
		Help:      "Analyzer usage checks by decision.",
	}, []string{"decision"})

	// JobsProcessed counts background jobs by type and result.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradorr",
		Name:      "jobs_processed_total",
		Help:      "Background jobs processed by type and result.",
	}, []string{"type", "result"})
)
