package earnings

import (
	"google.golang.org/grpc"

	"github.com/oggyb/crosspost-earnings/internal/app"
)

// Registrar ties the Earnings service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
	svc    *Service
}

// NewRegistrar creates a new Registrar for the Earnings service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Service returns the service instance, creating it on first use.
// The scheduler shares it with the gRPC handlers.
func (r *Registrar) Service() *Service {
	if r.svc == nil {
		r.svc = NewEarningsService(r.appCtx)
	}
	return r.svc
}

// Register attaches the Earnings service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	RegisterEarningsServiceServer(s, &grpcHandler{svc: r.Service()})
}
