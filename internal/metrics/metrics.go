package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InitiateBackingDuration tracks the latency of order initiation,
	// including the gateway round trips.
	InitiateBackingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "funding_initiate_backing_duration_seconds",
			Help: "Duration of backing order initiation requests in seconds",
			Buckets: []float64{
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
				10.0,  // 10s
			},
		},
		[]string{"status"}, // success or failure
	)

	// SettlementDuration tracks the latency of webhook settlement processing
	SettlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "funding_settlement_duration_seconds",
			Help: "Duration of webhook settlement processing in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
			},
		},
		[]string{"status"}, // processed, duplicate, not_found or failure
	)

	// WebhookEvents counts inbound webhook deliveries by event type and outcome
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funding_webhook_events_total",
			Help: "Inbound payment webhook deliveries by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	// CampaignsFunded counts campaigns that crossed their funding goal
	CampaignsFunded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "funding_campaigns_funded_total",
			Help: "Campaigns transitioned to funded after reaching their goal",
		},
	)
)

// RecordInitiateBackingDuration records the duration of an order initiation request
func RecordInitiateBackingDuration(status string, duration float64) {
	InitiateBackingDuration.WithLabelValues(status).Observe(duration)
}

// RecordSettlementDuration records the duration of a settlement attempt
func RecordSettlementDuration(status string, duration float64) {
	SettlementDuration.WithLabelValues(status).Observe(duration)
}
