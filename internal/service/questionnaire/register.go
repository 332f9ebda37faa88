package questionnaire

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matchmaking/internal/server/rpc"
)

const ServiceName = "Questionnaire"

// Registrar ties the Questionnaire service into the gRPC server
type Registrar struct {
	service *Service
}

func NewRegistrar(service *Service) *Registrar {
	return &Registrar{service: service}
}

func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(rpc.ServiceDesc(ServiceName,
		rpc.Unary("ListQuestions", r.service.ListQuestions),
		rpc.Unary("SubmitAnswers", r.service.SubmitAnswers),
	), r.service)
}
