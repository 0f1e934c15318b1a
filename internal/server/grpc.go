package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	healthhandler "auth-session/backend/internal/health/handler"
)

// Deps holds the gRPC services to register.
type Deps struct {
	// Health is the grpc.health.v1 service. If nil, nothing is registered.
	Health *healthhandler.Server
}

// NewGRPCServer returns a gRPC server instrumented with otelgrpc and the services in deps registered.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the gRPC services in deps with s.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		deps.Health.Register(s)
	}
}
