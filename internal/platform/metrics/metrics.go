package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	adjudicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_adjudications_total",
			Help: "Total number of coverage adjudications by outcome",
		},
		[]string{"outcome", "reason"},
	)

	adjudicatedPayable = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "claims_adjudicated_payable_amount",
			Help:    "Insurer payable amount of approved adjudications",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
	)

	claimStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_status_changed_total",
			Help: "Total number of insurance claim status changes",
		},
		[]string{"from_status", "to_status"},
	)

	billStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bills_status_changed_total",
			Help: "Total number of bill status changes",
		},
		[]string{"from_status", "to_status"},
	)

	paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bills_payments_total",
			Help: "Total number of payments recorded against bills",
		},
		[]string{"method"},
	)

	paymentAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bills_payment_amount_total",
			Help: "Sum of payment amounts recorded against bills",
		},
		[]string{"method"},
	)

	lockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_lock_contention_total",
			Help: "Aggregate lock acquisitions that gave up after retrying",
		},
		[]string{"aggregate"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by the matched route.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// --- Business metric helpers ---

// RecordAdjudication records an adjudication outcome. payable is ignored for denials.
func RecordAdjudication(approved bool, denialReason string, payable float64) {
	if !approved {
		adjudicationsTotal.WithLabelValues("denied", denialReason).Inc()
		return
	}
	adjudicationsTotal.WithLabelValues("approved", "").Inc()
	adjudicatedPayable.Observe(payable)
}

func RecordClaimStatusChange(fromStatus, toStatus string) {
	claimStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

func RecordBillStatusChange(fromStatus, toStatus string) {
	billStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

func RecordPayment(method string, amount float64) {
	paymentsTotal.WithLabelValues(method).Inc()
	paymentAmount.WithLabelValues(method).Add(amount)
}

func RecordLockContention(aggregate string) {
	lockContention.WithLabelValues(aggregate).Inc()
}
