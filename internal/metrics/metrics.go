// Package metrics holds the Prometheus counters updated by the client core:
//
//	apex_session_transitions_total{phase}      session store transitions
//	apex_orders_total{side,outcome}            submission attempts by result
//	apex_order_validation_failures_total{field} drafts rejected before the network
//	apex_portfolio_fetches_total{result}       holdings re-fetches
//
// They are registered on the default registry and exposed by the shell at
// /metrics when a metrics address is configured.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apex_session_transitions_total",
			Help: "Session store transitions by resulting phase",
		},
		[]string{"phase"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apex_orders_total",
			Help: "Order submissions by side and outcome (accepted|rejected|transport_error)",
		},
		[]string{"side", "outcome"},
	)

	ValidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apex_order_validation_failures_total",
			Help: "Order drafts rejected locally, by offending field",
		},
		[]string{"field"},
	)

	PortfolioFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apex_portfolio_fetches_total",
			Help: "Holdings re-fetches by result (ok|error)",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(SessionTransitions, Orders, ValidationFailures, PortfolioFetches)
}

func IncSessionTransition(phase string) { SessionTransitions.WithLabelValues(phase).Inc() }
func IncOrder(side, outcome string)     { Orders.WithLabelValues(side, outcome).Inc() }
func IncValidationFailure(field string) { ValidationFailures.WithLabelValues(field).Inc() }

func IncPortfolioFetch(ok bool) {
	if ok {
		PortfolioFetches.WithLabelValues("ok").Inc()
		return
	}
	PortfolioFetches.WithLabelValues("error").Inc()
}

// Handler serves the default registry in the text exposition format.
func Handler() http.Handler { return promhttp.Handler() }
