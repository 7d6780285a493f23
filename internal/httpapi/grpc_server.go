package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"opsfloww.io/internal/obs"
)

// HealthServer publishes readiness over the standard gRPC health protocol.
type HealthServer struct {
	*health.Server
	readiness ReadinessChecker
}

// NewHealthServer creates the health service. Status starts as NOT_SERVING until the first Refresh.
func NewHealthServer(r ReadinessChecker) *HealthServer {
	if r == nil {
		r = ReadyProbe{}
	}
	hs := &HealthServer{Server: health.NewServer(), readiness: r}
	hs.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.Server)
}

// Refresh evaluates readiness once and publishes the result.
func (h *HealthServer) Refresh(ctx context.Context) bool {
	if err := h.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		obs.Logger().WithError(err).Warn("readiness check failed")
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	obs.SetReady(true)
	h.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run refreshes on every tick until ctx is done, then marks the service as shutting down.
func (h *HealthServer) Run(ctx context.Context, every time.Duration) error {
	h.Refresh(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return nil
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.SetServingStatus("", status)
	h.SetServingStatus(serviceName, status)
}
