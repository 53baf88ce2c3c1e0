package handler

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SyncGRPCHealth keeps the grpc.health.v1 status of the server ("") and of each name in services
// in line with checker, re-checking every interval until ctx is done.
func SyncGRPCHealth(ctx context.Context, hs *health.Server, checker *Checker, interval time.Duration, services ...string) {
	update := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if _, ready := checker.Check(ctx); !ready {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		for _, svc := range services {
			hs.SetServingStatus(svc, st)
		}
	}
	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
