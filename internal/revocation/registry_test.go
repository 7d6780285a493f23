package revocation

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// setupRedisRegistry starts a miniredis instance and opens a registry against it.
func setupRedisRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(mr.Addr())
	port, _ := strconv.Atoi(portStr)

	reg := Open(context.Background(), Options{Host: host, Port: port, ConnectTimeout: time.Second}, quietLogger())
	t.Cleanup(func() {
		_ = reg.Close()
		mr.Close()
	})
	return reg, mr
}

func TestOpenUsesRedisWhenReachable(t *testing.T) {
	reg, mr := setupRedisRegistry(t)
	if reg.Backend() != BackendRedis {
		t.Fatalf("expected redis backend, got %s", reg.Backend())
	}

	ctx := context.Background()
	if err := reg.Revoke(ctx, "tok-1", time.Minute); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !reg.IsRevoked(ctx, "tok-1") {
		t.Fatal("expected token to be revoked")
	}
	if reg.IsRevoked(ctx, "tok-2") {
		t.Fatal("unrelated token reported revoked")
	}
	if ttl := mr.TTL("bl_tok-1"); ttl != time.Minute {
		t.Fatalf("expected key TTL of 1m, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if reg.IsRevoked(ctx, "tok-1") {
		t.Fatal("entry should expire with the token")
	}
}

func TestOpenFallsBackToMemory(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()

	reg := Open(context.Background(), Options{Host: "127.0.0.1", Port: addr.Port, ConnectTimeout: 200 * time.Millisecond}, quietLogger())
	defer reg.Close()
	if reg.Backend() != BackendMemory {
		t.Fatalf("expected memory backend, got %s", reg.Backend())
	}
	if err := reg.Revoke(context.Background(), "tok", time.Minute); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !reg.IsRevoked(context.Background(), "tok") {
		t.Fatal("expected token to be revoked by fallback")
	}
}

func TestOpenWithoutHostUsesMemory(t *testing.T) {
	reg := Open(context.Background(), Options{}, quietLogger())
	defer reg.Close()
	if reg.Backend() != BackendMemory {
		t.Fatalf("expected memory backend, got %s", reg.Backend())
	}
}

func TestRevokeIgnoresNonPositiveTTL(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store, BackendMemory, quietLogger())
	if err := reg.Revoke(context.Background(), "tok", 0); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no entry, got %d", store.Len())
	}
}

type failingStore struct{}

func (failingStore) Revoke(context.Context, string, time.Duration) error { return errors.New("down") }
func (failingStore) IsRevoked(context.Context, string) (bool, error)     { return false, errors.New("down") }
func (failingStore) Close() error                                        { return nil }

func TestIsRevokedFailsOpen(t *testing.T) {
	reg := NewRegistry(failingStore{}, BackendRedis, quietLogger())
	defer reg.Close()
	if reg.IsRevoked(context.Background(), "tok") {
		t.Fatal("lookup failure must not reject the token")
	}
}

func TestRevokeKeepsEntryInMemoryWhenStoreFails(t *testing.T) {
	reg := NewRegistry(failingStore{}, BackendRedis, quietLogger())
	defer reg.Close()
	ctx := context.Background()
	if err := reg.Revoke(ctx, "tok", time.Minute); err != nil {
		t.Fatalf("Revoke should absorb store failure, got %v", err)
	}
	if !reg.IsRevoked(ctx, "tok") {
		t.Fatal("token must stay revoked through the in-memory fallback")
	}
	if reg.IsRevoked(ctx, "other") {
		t.Fatal("unrelated token reported revoked")
	}
}

func TestRevokeAfterRedisOutage(t *testing.T) {
	reg, mr := setupRedisRegistry(t)
	ctx := context.Background()
	if err := reg.Revoke(ctx, "before", time.Minute); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	mr.Close()

	if err := reg.Revoke(ctx, "during", time.Minute); err != nil {
		t.Fatalf("Revoke during outage: %v", err)
	}
	if !reg.IsRevoked(ctx, "during") {
		t.Fatal("token revoked during the outage must be refused")
	}
	if reg.Backend() != BackendRedis {
		t.Fatalf("backend should stay redis, got %s", reg.Backend())
	}
}

func TestIsRevokedFailsOpenWhenRedisDies(t *testing.T) {
	reg, mr := setupRedisRegistry(t)
	mr.Close()
	if reg.IsRevoked(context.Background(), "tok") {
		t.Fatal("expected fail-open when redis is unreachable")
	}
}

func TestMemoryStoreEntriesExpire(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	if err := store.Revoke(ctx, "short", 20*time.Millisecond); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok, _ := store.IsRevoked(ctx, "short"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("entry did not expire")
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := "tok-" + strconv.Itoa(i%10)
			_ = store.Revoke(ctx, tok, time.Minute)
			_, _ = store.IsRevoked(ctx, tok)
		}(i)
	}
	wg.Wait()
	if store.Len() != 10 {
		t.Fatalf("expected 10 entries, got %d", store.Len())
	}
}

func TestRedisStoreDirect(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer store.Close()

	if err := store.Revoke(context.Background(), "abc", time.Hour); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !mr.Exists("bl_abc") {
		t.Fatal("expected bl_ prefixed key")
	}
}
