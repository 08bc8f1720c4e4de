package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	BridgeOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_operations_total",
		Help: "Commerce operations handled, by action and outcome",
	}, []string{"action", "status"})

	ActiveOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_active_orders",
		Help: "Orders currently holding a running charging session",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_energy_delivered_kwh_total",
		Help: "Energy billed across completed sessions in kWh",
	})

	StateDivergencesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_state_divergences_total",
		Help: "Reconciliations that found an unexplainable infra state",
	})

	BillingMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_billing_mismatches_total",
		Help: "Billing records whose reported total disagreed with the recomputed one",
	})

	// Infrastructure metrics
	OCPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_ocpi_requests_total",
		Help: "Requests to the charging network, by endpoint and outcome",
	}, []string{"endpoint", "status"})

	OCPILatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_ocpi_latency_seconds",
		Help:    "Charging network request latency",
		Buckets: prometheus.DefBuckets,
	})

	DatabaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_database_latency_seconds",
		Help:    "Database query latency",
		Buckets: prometheus.DefBuckets,
	})
)
