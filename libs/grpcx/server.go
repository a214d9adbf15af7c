package grpcx

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/tidyhome/scheduler/libs/runtime"
)

func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLogInterceptor(logger),
		),
	}
	srv := grpc.NewServer(append(opts, extra...)...)
	reflection.Register(srv)
	return srv
}

// HealthReporter mirrors the readiness checks into the standard gRPC health service.
type HealthReporter struct {
	srv      *health.Server
	service  string
	checks   []runtime.ReadyCheck
	interval time.Duration
	logger   *slog.Logger
}

func RegisterHealth(s *grpc.Server, service string, interval time.Duration, logger *slog.Logger, checks ...runtime.ReadyCheck) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	h := &HealthReporter{srv: hs, service: service, checks: checks, interval: interval, logger: logger}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Refresh runs the checks once and publishes the result.
func (h *HealthReporter) Refresh(ctx context.Context) {
	if failed := runtime.CheckAll(ctx, h.checks...); len(failed) > 0 {
		h.logger.Warn("grpc health not serving", "failed", failed)
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
}

// Run refreshes until ctx is done, then marks the service as shutting down.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Refresh(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Refresh(ctx)
		}
	}
}

func (h *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(h.service, status)
}
