// Package metrics provides Prometheus instrumentation for the ledger engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PositionsOpened counts opened positions, partitioned by side.
	PositionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperledger_positions_opened_total",
		Help: "Total number of paper positions opened",
	}, []string{"side"})

	// StakeCents sums the stake debited at open time.
	StakeCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperledger_stake_cents_total",
		Help: "Cumulative stake debited, in cents",
	}, []string{"side"})

	// PositionsSettled counts settled positions by result (win or loss).
	PositionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperledger_positions_settled_total",
		Help: "Total number of paper positions settled",
	}, []string{"result"})

	PayoutCents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperledger_payout_cents_total",
		Help: "Cumulative payout credited to winners, in cents",
	})

	// Rejections counts operations refused with a domain error.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperledger_rejections_total",
		Help: "Operations rejected, by reason",
	}, []string{"reason"})

	Busts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperledger_busts_total",
		Help: "Number of times a bankroll reached zero",
	})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperledger_operation_duration_seconds",
		Help:    "Service operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// HTTPRequestsTotal counts HTTP requests by method, route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "route"})
)

// ObserveOperation records the latency of op measured from start.
func ObserveOperation(op string, start time.Time) {
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by the chi route pattern, so
// path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
