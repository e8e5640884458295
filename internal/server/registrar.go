package server

import "google.golang.org/grpc"

// Registrar attaches one gRPC service to a server. Service packages provide
// their own implementation so the server never imports business code.
type Registrar interface {
	Register(s *grpc.Server)
}
