package revocation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"opsfloww.io/internal/obs"
)

// Registry fronts the store selected at startup. Writes the primary store
// rejects land in an in-process fallback, so a revocation is never lost while
// the external store is down.
type Registry struct {
	store    Store
	fallback *MemoryStore
	backend  string
	log      *logrus.Entry
}

// NewRegistry wraps store. backend is reported by Backend and in metrics.
func NewRegistry(store Store, backend string, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = obs.Logger()
	}
	obs.SetRevocationBackend(backend)
	r := &Registry{
		store:   store,
		backend: backend,
		log:     logger.WithField("component", "revocation"),
	}
	if _, inProcess := store.(*MemoryStore); !inProcess {
		r.fallback = NewMemoryStore()
	}
	return r
}

// Revoke blacklists token for ttl. Non-positive TTLs are ignored since the
// token is already unusable. A primary store failure is logged and the entry
// is kept in memory instead; the caller never sees it.
func (r *Registry) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" || ttl <= 0 {
		return nil
	}
	err := r.store.Revoke(ctx, token, ttl)
	if err == nil {
		obs.ObserveRevocation(r.backend)
		return nil
	}
	if r.fallback == nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	obs.ObserveRevocationWriteFailure()
	r.log.WithError(err).WithField("request_id", obs.RequestIDFromContext(ctx)).
		Warn("revocation store write failed, keeping entry in memory")
	if err := r.fallback.Revoke(ctx, token, ttl); err != nil {
		return fmt.Errorf("revoke token in memory: %w", err)
	}
	obs.ObserveRevocation(BackendMemory)
	return nil
}

// IsRevoked reports whether token was blacklisted. Lookup errors fail open
// and are logged on every occurrence.
func (r *Registry) IsRevoked(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	if r.fallback != nil {
		if held, _ := r.fallback.IsRevoked(ctx, token); held {
			return true
		}
	}
	revoked, err := r.store.IsRevoked(ctx, token)
	if err != nil {
		obs.ObserveRevocationLookupFailure()
		r.log.WithError(err).WithField("request_id", obs.RequestIDFromContext(ctx)).
			Error("revocation lookup failed, treating token as not revoked")
		return false
	}
	return revoked
}

// Backend names the active store.
func (r *Registry) Backend() string { return r.backend }

// Close releases the underlying store and the fallback.
func (r *Registry) Close() error {
	if r.fallback != nil {
		_ = r.fallback.Close()
	}
	return r.store.Close()
}

// Options configure the external store probe.
type Options struct {
	Host           string
	Port           int
	Password       string
	ConnectTimeout time.Duration
}

// Open probes redis once with a bounded timeout. When the probe fails the
// in-memory store is used for the rest of the process lifetime.
func Open(ctx context.Context, opts Options, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = obs.Logger()
	}
	if opts.Host == "" {
		logger.WithField("component", "revocation").Warn("redis host not configured, using in-memory token revocation")
		return NewRegistry(NewMemoryStore(), BackendMemory, logger)
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	port := opts.Port
	if port == 0 {
		port = 6379
	}
	addr := opts.Host + ":" + strconv.Itoa(port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.WithField("component", "revocation").WithField("addr", addr).WithError(err).
			Warn("redis unavailable, falling back to in-memory token revocation")
		return NewRegistry(NewMemoryStore(), BackendMemory, logger)
	}
	logger.WithField("component", "revocation").WithField("addr", addr).Info("redis connected for token revocation")
	return NewRegistry(NewRedisStore(client), BackendRedis, logger)
}
