// Package metrics holds the storefront's domain counters. HTTP, Kafka and
// database pool metrics live next to the code that produces them in pkg/.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storefront"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeNoop    = "noop"
)

var (
	CartOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_operations_total",
		Help:      "Cart operations by kind and outcome.",
	}, []string{"operation", "outcome"})

	ReviewMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "review_mutations_total",
		Help:      "Review writes by action and outcome.",
	}, []string{"action", "outcome"})

	ImageRollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "image_rollbacks_total",
		Help:      "Compensating image deletes by outcome.",
	}, []string{"outcome"})

	LockAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lock_acquisitions_total",
		Help:      "Lock attempts by mode and outcome.",
	}, []string{"mode", "outcome"})

	LockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for a lock.",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"mode"})

	OrderFactsProjected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_facts_projected_total",
		Help:      "Order events applied to the purchase projection.",
	}, []string{"event_type"})
)

// Outcome maps an error to a success or failure label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
