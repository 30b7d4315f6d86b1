package ack

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ackEventsAppliedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ackrelay",
			Name:      "ack_events_applied_total",
			Help:      "Total number of acknowledgment webhooks applied.",
		},
		[]string{"code"},
	)

	ackErrorsEnqueuedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ackrelay",
			Name:      "ack_errors_enqueued_total",
			Help:      "Total number of error acks routed to the delay queue.",
		},
	)

	delayedConsumerOutcomeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ackrelay",
			Name:      "delayed_ack_error_outcomes_total",
			Help:      "Outcomes of delayed ack-error decisions.",
		},
		[]string{"outcome"}, // "confirmed", "stale_discarded", "unresolvable", "failed"
	)
)

// Outcome label values for delayedConsumerOutcomeCounter.
const (
	outcomeConfirmed    = "confirmed"
	outcomeStale        = "stale_discarded"
	outcomeUnresolvable = "unresolvable"
	outcomeFailed       = "failed"
)
