package introductions

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matchmaking/internal/server/rpc"
)

// ServiceName is the gRPC service name under rpc.Package.
const ServiceName = "Introductions"

// Registrar ties the Introductions service into the gRPC server
type Registrar struct {
	service *Service
}

func NewRegistrar(service *Service) *Registrar {
	return &Registrar{service: service}
}

func (r *Registrar) Register(s *grpc.Server) {
	svc := r.service
	s.RegisterService(rpc.ServiceDesc(ServiceName,
		rpc.Unary("GetIntroductions", svc.GetIntroductions),
		rpc.Unary("MarkShown", svc.MarkShown),
		rpc.Unary("Accept", svc.Accept),
		rpc.Unary("Pass", svc.Pass),
	), svc)
}
