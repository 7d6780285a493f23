package httpapi

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"opsfloww.io/internal/ids"
	"opsfloww.io/internal/obs"
)

const requestIDHeader = "X-Request-ID"

type statusWriter struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// RequestID accepts a sane inbound X-Request-ID or mints one, echoes it and stores it in the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = ids.NewRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(obs.WithRequestID(r.Context(), id)))
	})
}

// requestMeta lets inner handlers report the authenticated user back to LoggingJSON.
type requestMeta struct {
	mu     sync.Mutex
	userID string
}

type requestMetaKey struct{}

func setRequestUser(ctx context.Context, userID string) {
	if m, ok := ctx.Value(requestMetaKey{}).(*requestMeta); ok {
		m.mu.Lock()
		m.userID = userID
		m.mu.Unlock()
	}
}

// LoggingJSON writes one request_complete entry per request.
func LoggingJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := &requestMeta{}
		ctx := context.WithValue(r.Context(), requestMetaKey{}, meta)
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(ctx))

		meta.mu.Lock()
		userID := meta.userID
		meta.mu.Unlock()

		fields := logrus.Fields{
			"request_id":  obs.RequestIDFromContext(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.code,
			"bytes":       sw.bytes,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
			"remote_ip":   clientIP(r),
			"user_agent":  r.UserAgent(),
		}
		if userID != "" {
			fields["user_id"] = userID
		}
		entry := obs.Logger().WithFields(fields)
		switch {
		case sw.code >= http.StatusInternalServerError:
			entry.Error("request_complete")
		case sw.code >= http.StatusBadRequest:
			entry.Warn("request_complete")
		default:
			entry.Info("request_complete")
		}
	})
}

// SecurityHeaders sets hardening headers for a JSON API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "0")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBodyBytes limits request body size.
func MaxBodyBytes(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// ipLimiter is a token bucket per client IP. Idle buckets are pruned lazily.
type ipLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	burst     int
	perSecond rate.Limit
	ttl       time.Duration
	lastPrune time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newIPLimiter(burst int, perSecond float64) *ipLimiter {
	if burst <= 0 {
		burst = 1
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	return &ipLimiter{
		buckets:   make(map[string]*bucket),
		burst:     burst,
		perSecond: rate.Limit(perSecond),
		ttl:       5 * time.Minute,
		lastPrune: time.Now(),
	}
}

// allow reports whether ip may proceed and, if not, how long until the next token.
func (l *ipLimiter) allow(ip string) (bool, time.Duration) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastPrune) > time.Minute {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastPrune = now
	}
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	res := b.lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// RateLimit applies a per-IP token bucket and answers 429 with Retry-After.
func RateLimit(next http.Handler, burst int, perSecond float64) http.Handler {
	return rateLimitWith(newIPLimiter(burst, perSecond), next)
}

func rateLimitWith(l *ipLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		if ok, wait := l.allow(ip); !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, r, http.StatusTooManyRequests, "Too many requests, please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) rateLimit(next http.Handler) http.Handler {
	return rateLimitWith(a.limiter, next)
}

// clientIP is the peer address. Forwarding headers are honoured only through
// handlers.ProxyHeaders, which Handler installs when the proxy is trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
