package rpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oggyb/muzz-matchmaking/internal/identity"
)

// IdentityInterceptor copies the x-username metadata into the request context.
// Requests without it reach the handler anonymously and are rejected there.
func IdentityInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(identity.MetadataKey); len(vals) > 0 {
				ctx = identity.With(ctx, vals[0])
			}
		}
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every call with its status code and latency.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}

// WithIdentity attaches the caller's username to an outgoing client context.
func WithIdentity(ctx context.Context, username string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, identity.MetadataKey, username)
}
