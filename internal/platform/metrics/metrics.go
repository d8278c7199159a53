// Package metrics exposes Prometheus instrumentation for the entitlement
// service: guard decisions, trial consumption, store latency and HTTP
// traffic. All collectors live on a private registry served at /metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studypal"

// Recorder owns the service collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry          *prometheus.Registry
	guardDecisions    *prometheus.CounterVec
	trialConsumptions *prometheus.CounterVec
	storeDuration     *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers the service collectors plus the Go runtime and process
// collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Access guard decisions by capability, outcome and reason.",
		}, []string{"capability", "outcome", "reason"}),
		trialConsumptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trial",
			Name:      "consumptions_total",
			Help:      "Feature trial decrement attempts by feature and result.",
		}, []string{"feature", "result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Account store call latency.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"backend", "operation", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.guardDecisions,
		r.trialConsumptions,
		r.storeDuration,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveGuardDecision counts one access guard decision.
func (r *Recorder) ObserveGuardDecision(capability, outcome, reason string) {
	if r == nil {
		return
	}
	r.guardDecisions.WithLabelValues(capability, outcome, reason).Inc()
}

// ObserveTrialConsumption counts one trial decrement attempt.
func (r *Recorder) ObserveTrialConsumption(feature, result string) {
	if r == nil {
		return
	}
	r.trialConsumptions.WithLabelValues(feature, result).Inc()
}

// ObserveStoreOperation records the latency of one store call.
func (r *Recorder) ObserveStoreOperation(backend, operation string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.storeDuration.WithLabelValues(backend, operation, storeResult(err)).Observe(elapsed.Seconds())
}

func storeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrTrialExhausted):
		return "exhausted"
	default:
		return "error"
	}
}

// Middleware records request counts and latency labelled by the matched
// chi route pattern, so path parameters do not explode cardinality.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.httpRequests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
		r.httpDuration.WithLabelValues(route, req.Method).Observe(time.Since(start).Seconds())
	})
}
