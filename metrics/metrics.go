// Package metrics owns the Prometheus registry and the counters the ledger,
// quiz engine and realtime hub report into.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eduxp"

// Registry is the process-wide registry served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	CheckIns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkins_total",
		Help:      "Daily check-in requests by outcome (new, already, closed, error).",
	}, []string{"result"})

	Awards = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "awards_total",
		Help:      "Point award attempts by source kind and outcome (awarded, duplicate).",
	}, []string{"kind", "result"})

	PointsAwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_awarded_total",
		Help:      "Points credited by source kind.",
	}, []string{"kind"})

	QuizSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quiz_submissions_total",
		Help:      "Quiz submissions by trigger (manual, timer) and outcome (recorded, duplicate, failed).",
	}, []string{"trigger", "result"})

	QuizSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quiz_sessions_active",
		Help:      "Live quiz sessions held in memory.",
	})

	RealtimeSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_subscribers",
		Help:      "Connected discussion change-feed subscribers.",
	})

	RealtimeDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_dropped_events_total",
		Help:      "Change events dropped because a subscriber buffer was full.",
	})

	ReconciledAwards = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciled_awards_total",
		Help:      "Quiz XP grants recovered by the reconciler.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CheckIns, Awards, PointsAwarded, QuizSubmissions, QuizSessions,
		RealtimeSubscribers, RealtimeDropped, ReconciledAwards,
		httpRequests, httpDuration,
	)
}

// SourceKind maps a point-log source such as "quiz_12" to its kind label "quiz".
func SourceKind(source string) string {
	kind, _, ok := strings.Cut(source, "_")
	if !ok || kind == "" {
		return "other"
	}
	return kind
}

// RecordAward counts one award attempt.
func RecordAward(source string, points int, awarded bool) {
	kind := SourceKind(source)
	if !awarded {
		Awards.WithLabelValues(kind, "duplicate").Inc()
		return
	}
	Awards.WithLabelValues(kind, "awarded").Inc()
	if points > 0 {
		PointsAwarded.WithLabelValues(kind).Add(float64(points))
	}
}

// Middleware records request counts and latency keyed by the matched route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
