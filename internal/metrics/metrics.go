// Package metrics holds the domain counters exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Orders created, by payment method",
		},
		[]string{"payment_method"},
	)

	CheckoutOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_outcomes_total",
			Help: "Checkout submissions by outcome",
		},
		[]string{"outcome"},
	)

	Payments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payments_total",
			Help: "Card payment attempts by provider, flow and outcome",
		},
		[]string{"provider", "flow", "outcome"},
	)

	Refunds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_refunds_total",
			Help: "Refund attempts by outcome",
		},
		[]string{"outcome"},
	)

	ProjectedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_projected_events_total",
			Help: "Events applied to read models, by event type",
		},
		[]string{"event_type"},
	)
)

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
