package telemetry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_evaluations_total",
			Help: "Total feature evaluations by result source",
		},
		[]string{"source"},
	)
	ExperimentAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_assignments_total",
			Help: "Total experiment resolutions by inclusion outcome",
		},
		[]string{"included"},
	)
	TrackingEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tracking_events_total",
		Help: "Tracking callbacks fired (deduplicated assignments)",
	})
	PayloadRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payload_refreshes_total",
			Help: "Payload refresh attempts by result",
		},
		[]string{"result"},
	)
	PayloadFeatures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "payload_features",
		Help: "Number of features in the current payload",
	})

	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func Init() {
	prometheus.MustRegister(Evaluations, ExperimentAssignments, TrackingEvents,
		PayloadRefreshes, PayloadFeatures, httpReqs, httpDur)
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// get route pattern if available
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
