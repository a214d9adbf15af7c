package grpcx

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/tidyhome/scheduler/libs/httpx"
)

// RequestIDMetadataKey is the lowercase metadata form of httpx.RequestIDHeader.
const RequestIDMetadataKey = "x-request-id"

// UnaryServerRequestIDInterceptor adopts the caller's request id, or mints one,
// stores it where httpx.RequestIDFromContext finds it, and echoes it back.
func UnaryServerRequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
				id = vals[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, id))
		return handler(httpx.ContextWithRequestID(ctx, id), req)
	}
}
