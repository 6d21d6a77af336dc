package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lms", Name: "access_tokens_issued_total", Help: "Playback tokens issued",
	}, []string{"path"})
	AccessDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lms", Name: "access_denied_total", Help: "Entitlement denials by reason",
	}, []string{"reason"})
	StreamResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lms", Name: "stream_responses_total", Help: "Stream proxy responses by status",
	}, []string{"code"})
	StreamBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lms", Name: "stream_bytes_total", Help: "Bytes proxied from object storage",
	})
	DemoGrants = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lms", Name: "demo_grants_total", Help: "Demo grants written",
	}, []string{"source"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lms", Name: "http_request_duration_seconds", Help: "HTTP handler latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "code"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "lms", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(TokensIssued, AccessDenied, StreamResponses, StreamBytes, DemoGrants, HTTPDuration, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

func ObserveHTTP(route string, code int, d time.Duration) {
	HTTPDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}

func ObserveStream(code int, n int64) {
	StreamResponses.WithLabelValues(strconv.Itoa(code)).Inc()
	if n > 0 {
		StreamBytes.Add(float64(n))
	}
}
