// Package metrics provides Prometheus metrics collection for awsapigw.
package metrics

import (
	"strconv"
	"time"

	"github.com/artpar/awsapigw/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "awsapigw"

// Collector holds all Prometheus metrics for awsapigw.
type Collector struct {
	// Lifecycle metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	KeyServiceCalls   *prometheus.CounterVec
	PlanAssociations  *prometheus.CounterVec
	OrphanedKeys      *prometheus.CounterVec
	DescribeSource    *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	AuthFailures     prometheus.Counter

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_operations_total",
				Help:      "Lifecycle operations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lifecycle_operation_duration_seconds",
				Help:      "Lifecycle operation duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		KeyServiceCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_service_calls_total",
				Help:      "Calls to the external key service by call and outcome",
			},
			[]string{"call", "outcome"},
		),
		PlanAssociations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_plan_associations_total",
				Help:      "Usage plan association attempts by outcome",
			},
			[]string{"outcome"},
		),
		OrphanedKeys: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orphaned_keys_total",
				Help:      "External keys created without a linked record",
			},
			[]string{"reason"},
		),
		DescribeSource: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "describe_source_total",
				Help:      "Describe results by data source",
			},
			[]string{"source"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of callback API requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Callback API request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of callback API requests currently being processed",
			},
		),
		AuthFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of rejected callback API tokens",
			},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// ObserveOperation records one finished lifecycle operation.
func (c *Collector) ObserveOperation(op, outcome string, d time.Duration) {
	c.OperationsTotal.WithLabelValues(op, outcome).Inc()
	c.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveKeyCall records one external key service call.
func (c *Collector) ObserveKeyCall(call, outcome string) {
	c.KeyServiceCalls.WithLabelValues(call, outcome).Inc()
}

// ObservePlanAssociation records one usage plan association attempt.
func (c *Collector) ObservePlanAssociation(ok bool) {
	outcome := "failed"
	if ok {
		outcome = "attached"
	}
	c.PlanAssociations.WithLabelValues(outcome).Inc()
}

// ObserveOrphanedKey records an external key left without a record.
func (c *Collector) ObserveOrphanedKey(reason string) {
	c.OrphanedKeys.WithLabelValues(reason).Inc()
}

// ObserveDescribeSource records where a describe result came from.
func (c *Collector) ObserveDescribeSource(source string) {
	c.DescribeSource.WithLabelValues(source).Inc()
}

// ObserveRequest records one callback API request.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	c.RequestsTotal.WithLabelValues(method, route, StatusClass(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveConfigReload records a config reload attempt.
func (c *Collector) ObserveConfigReload(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

// StatusClass maps 404 to "4xx" to keep label cardinality low.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

var _ ports.LifecycleMetrics = (*Collector)(nil)
