package obs

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reported ready on the last probe.",
	})
)

// Auth metrics
var (
	signinTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signin_total",
			Help: "Sign-in attempts by outcome.",
		},
		[]string{"outcome"},
	)

	lockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Accounts locked after repeated failed sign-ins.",
	})

	revocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_revocations_total",
			Help: "Tokens added to the revocation registry.",
		},
		[]string{"backend"},
	)

	revocationLookupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocation_lookup_failures_total",
		Help: "Revocation lookups that failed and were treated as not revoked.",
	})

	revocationWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocation_write_failures_total",
		Help: "Revocations the primary store rejected and that were kept in memory.",
	})

	revocationBackend = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "auth_revocation_backend",
			Help: "Active revocation backend (value 1).",
		},
		[]string{"backend"},
	)
)

var initOnce sync.Once

// Init registers metrics in the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
			signinTotal, lockoutsTotal, revocationsTotal, revocationLookupFailures,
			revocationWriteFailures, revocationBackend,
		)
	})
}

// Handler exposes the prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the outcome of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// ObserveSignin counts a sign-in attempt outcome.
func ObserveSignin(outcome string) {
	signinTotal.WithLabelValues(outcome).Inc()
}

// ObserveLockout counts an account lock transition.
func ObserveLockout() {
	lockoutsTotal.Inc()
}

// ObserveRevocation counts a token revocation on the given backend.
func ObserveRevocation(backend string) {
	revocationsTotal.WithLabelValues(backend).Inc()
}

// ObserveRevocationLookupFailure counts a fail-open revocation lookup.
func ObserveRevocationLookupFailure() {
	revocationLookupFailures.Inc()
}

// ObserveRevocationWriteFailure counts a revocation kept in memory because the
// primary store rejected the write.
func ObserveRevocationWriteFailure() {
	revocationWriteFailures.Inc()
}

// SetRevocationBackend marks the active revocation backend.
func SetRevocationBackend(backend string) {
	revocationBackend.Reset()
	revocationBackend.WithLabelValues(backend).Set(1)
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var (
	objectIDSegment = regexp.MustCompile(`^[0-9a-f]{24}$`)
	tokenSegment    = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// CanonicalPath collapses ids and raw tokens in a path so metric labels stay bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		lp := strings.ToLower(p)
		switch {
		case objectIDSegment.MatchString(lp):
			parts[i] = ":id"
		case tokenSegment.MatchString(lp):
			parts[i] = ":token"
		}
	}
	return strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
