// Package metrics exposes the bridge's Prometheus counters, served at
// /metrics in text exposition format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_orders_total",
			Help: "Orders submitted to the brokerage",
		},
		[]string{"side", "outcome"}, // outcome: accepted|rejected|failed
	)

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // outcome: logged_in|cached|verification|error
	)

	stopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_stops_total",
			Help: "Protective stop placements by outcome",
		},
		[]string{"outcome"},
	)

	preflightCancels = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_preflight_cancels_total",
			Help: "Pre-sell cancellations by mode",
		},
		[]string{"mode"}, // mode: cached|scan
	)
)

func init() {
	prometheus.MustRegister(ordersTotal, loginsTotal, stopsTotal, preflightCancels)
}

func Order(side, outcome string) { ordersTotal.WithLabelValues(side, outcome).Inc() }
func Login(outcome string) { loginsTotal.WithLabelValues(outcome).Inc() }
func Stop(outcome string) { stopsTotal.WithLabelValues(outcome).Inc() }
func PreflightCancel(mode string) { preflightCancels.WithLabelValues(mode).Inc() }
