// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmchat_messages_sent_total",
		Help: "Messages persisted by the controller.",
	})
	MessagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmchat_messages_deleted_total",
		Help: "Messages deleted by their sender.",
	})
	Reactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmchat_reactions_total",
		Help: "Reaction changes by operation.",
	}, []string{"op"})
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dmchat_sessions",
		Help: "Live realtime sessions on this instance.",
	})
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dmchat_online_users",
		Help: "Distinct users with at least one live session.",
	})
	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmchat_events_delivered_total",
		Help: "Transport events queued to sessions.",
	}, []string{"event"})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmchat_events_dropped_total",
		Help: "Transport events dropped because a session buffer was full.",
	})
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmchat_rate_limited_total",
		Help: "Requests or frames rejected by a rate limiter.",
	}, []string{"scope"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dmchat_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Instrument records request latency. route should be the registered
// pattern, not the raw path, to keep label cardinality bounded.
func Instrument(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			requestDuration.
				WithLabelValues(r.Method, route(r), strconv.Itoa(rec.status)).
				Observe(time.Since(start).Seconds())
		})
	}
}
