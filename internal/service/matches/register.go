package matches

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matchmaking/internal/server/rpc"
)

const ServiceName = "Matches"

// Registrar ties the Matches service into the gRPC server
type Registrar struct {
	service *Service
}

func NewRegistrar(service *Service) *Registrar {
	return &Registrar{service: service}
}

func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(rpc.ServiceDesc(ServiceName,
		rpc.Unary("ListMatches", r.service.ListMatches),
		rpc.Unary("GetMatch", r.service.GetMatch),
	), r.service)
}
