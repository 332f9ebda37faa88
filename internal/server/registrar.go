package server

import "google.golang.org/grpc"

// Registrar is a common interface for all gRPC service registrars.
// Each service package under internal/service exposes one via NewRegistrar.
type Registrar interface {
	Register(s *grpc.Server)
}
