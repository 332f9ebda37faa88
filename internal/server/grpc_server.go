package server

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/server/rpc"
)

// NewGRPCServer builds a gRPC server with the identity and logging
// interceptors and registers all provided services.
func NewGRPCServer(logger *slog.Logger, registrars ...Registrar) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			rpc.IdentityInterceptor(),
			rpc.LoggingInterceptor(logger),
		),
	)

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	return grpcServer
}

// StartGRPCServer listens on cfg.GRPC and serves in the background.
// The returned channel yields Serve's result once; the caller owns
// GracefulStop on the returned server.
func StartGRPCServer(cfg *config.Config, logger *slog.Logger, registrars ...Registrar) (*grpc.Server, net.Addr, <-chan error, error) {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := NewGRPCServer(logger, registrars...)
	done := make(chan error, 1)
	go func() { done <- grpcServer.Serve(lis) }()
	return grpcServer, lis.Addr(), done, nil
}
