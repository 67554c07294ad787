package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"orgdesk.org/internal/obs"
)

// HealthServer publishes readiness through grpc.health.v1.Health.
type HealthServer struct {
	*health.Server
	readiness Readiness
}

func NewHealthServer(r Readiness) *HealthServer {
	if r == nil {
		r = ReadyProbe{}
	}
	return &HealthServer{Server: health.NewServer(), readiness: r}
}

// Refresh checks readiness once and updates the serving status of the
// whole server ("") and of serviceName.
func (h *HealthServer) Refresh(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_SERVING
	ok := true
	if err := h.readiness.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		ok = false
		obs.Component("grpc").Warn().Err(err).Msg("readiness check failed")
	}
	obs.SetReady(ok)
	h.SetServingStatus("", status)
	h.SetServingStatus(serviceName, status)
	return ok
}

// Run refreshes the status every interval until ctx is done, then marks the server as shutting down.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// NewGRPCServer registers the health service and server reflection.
func NewGRPCServer(h *HealthServer, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, h.Server)
	reflection.Register(srv)
	return srv
}
