package metrics

import (
	"errors"

	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rsvp"

var (
	AdmissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Join/leave decisions by outcome",
		},
		[]string{"op", "outcome"},
	)

	AdmissionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_retries_total",
			Help:      "Transactions retried after storage contention",
		},
		[]string{"op"},
	)

	AdmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_duration_seconds",
			Help:      "Join/leave latency including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	CounterRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_repairs_total",
			Help:      "Events whose attendee counter disagreed with the ledger",
		},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Domain events that could not be published",
		},
		[]string{"topic"},
	)
)

// Outcome is the label value recorded for an admission result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrEventNotFound):
		return "event_not_found"
	case errors.Is(err, models.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, models.ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, models.ErrNotJoined):
		return "not_joined"
	case errors.Is(err, models.ErrStorageConflict):
		return "storage_conflict"
	default:
		return "error"
	}
}
