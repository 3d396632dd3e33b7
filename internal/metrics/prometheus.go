// Package metrics exposes Prometheus instrumentation for the ledger core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Position metrics
	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perp_positions_open_count",
			Help: "Current number of live positions",
		},
	)

	TradesOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "perp_trades_opened_total",
			Help: "Total number of positions opened",
		},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perp_trades_closed_total",
			Help: "Total number of positions removed from the ledger",
		},
		[]string{"outcome"}, // closed|liquidated
	)

	// Order metrics
	OrdersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perp_orders_active_count",
			Help: "Current number of resting orders",
		},
	)

	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perp_orders_total",
			Help: "Total order lifecycle transitions",
		},
		[]string{"event"}, // placed|filled|cancelled|expired
	)

	// Margin metrics
	MarginLocked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perp_margin_locked_units",
			Help: "Collateral units currently locked across all accounts",
		},
	)

	// Liquidation metrics
	LiquidationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "perp_liquidations_total",
			Help: "Total number of liquidations triggered",
		},
	)

	LiquidationRewards = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "perp_liquidation_rewards_units",
			Help: "Total liquidation rewards credited, in collateral units",
		},
	)
)

// Init registers all metrics with the default Prometheus registry.
// Call once at startup.
func Init() {
	prometheus.MustRegister(PositionsOpen)
	prometheus.MustRegister(TradesOpened)
	prometheus.MustRegister(TradesClosed)
	prometheus.MustRegister(OrdersActive)
	prometheus.MustRegister(OrdersTotal)
	prometheus.MustRegister(MarginLocked)
	prometheus.MustRegister(LiquidationsTotal)
	prometheus.MustRegister(LiquidationRewards)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
