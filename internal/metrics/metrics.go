package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osp_stores_workflow_transitions_total",
			Help: "Stock request actions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	LedgerMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osp_stores_ledger_movements_total",
			Help: "Ledger receive and deplete operations",
		},
		[]string{"direction", "outcome"},
	)

	LedgerQuantity = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osp_stores_ledger_quantity_total",
			Help: "Quantity moved through the ledger",
		},
		[]string{"direction"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osp_stores_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(WorkflowTransitions)
	prometheus.MustRegister(LedgerMovements)
	prometheus.MustRegister(LedgerQuantity)
	prometheus.MustRegister(HTTPRequestDuration)
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Middleware observes request durations by route pattern.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		HTTPRequestDuration.
			WithLabelValues(c.Method(), route, strconv.Itoa(c.Response().StatusCode())).
			Observe(time.Since(start).Seconds())
		return err
	}
}
