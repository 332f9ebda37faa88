package matchmaking

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matchmaking/internal/server/rpc"
)

// ServiceName is the gRPC service name under rpc.Package.
const ServiceName = "Matchmaking"

// Registrar ties the Matchmaking service into the gRPC server
type Registrar struct {
	service *Service
}

// NewRegistrar creates a new Registrar for the Matchmaking service
func NewRegistrar(service *Service) *Registrar {
	return &Registrar{service: service}
}

// Register attaches the Matchmaking service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	svc := r.service
	s.RegisterService(rpc.ServiceDesc(ServiceName,
		rpc.Unary("UpdatePreferences", svc.UpdatePreferences),
		rpc.Unary("GetPreferences", svc.GetPreferences),
		rpc.Unary("Start", svc.Start),
		rpc.Unary("GetStatus", svc.GetStatus),
		rpc.Unary("Stop", svc.Stop),
		rpc.Unary("Skip", svc.Skip),
		rpc.Unary("SetMatchingPaused", svc.SetMatchingPaused),
	), svc)
}
