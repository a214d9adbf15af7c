package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/tidyhome/scheduler/libs/grpcx"
	"github.com/tidyhome/scheduler/libs/runtime"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/config"
)

// startGRPC serves grpc.health.v1 on GRPC_PORT, reporting the same checks as
// /readyz. The returned func stops the server gracefully.
func startGRPC(ctx context.Context, cfg config.Config, logger *slog.Logger, checks []runtime.ReadyCheck) (func(), error) {
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return nil, fmt.Errorf("grpc listen: %w", err)
	}
	srv := grpcx.NewServer(logger)
	health := grpcx.RegisterHealth(srv, cfg.ServiceName, 10*time.Second, logger, checks...)
	go health.Run(ctx)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	return func() {
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			srv.Stop()
		}
		logger.Info("grpc server stopped")
	}, nil
}
