// Package handler exposes readiness over HTTP (GET /health) and the gRPC health protocol.
package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"auth-session/backend/internal/health"
)

// ServiceName is the gRPC health service name reported alongside the overall "" status.
const ServiceName = "auth.AuthService"

// Checker runs readiness checks. *health.Checker implements it.
type Checker interface {
	Check(ctx context.Context) health.Report
}

// Server keeps a grpc.health.v1 server in sync with the readiness checks.
type Server struct {
	checker Checker
	hs      *grpchealth.Server
	logger  *slog.Logger
}

// NewServer returns a Server. Statuses start as NOT_SERVING until the first Refresh.
func NewServer(checker Checker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{checker: checker, hs: hs, logger: logger}
}

// Register adds the health service to s.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(r, s.hs)
}

// Health returns the underlying grpc.health.v1 implementation.
func (s *Server) Health() healthpb.HealthServer { return s.hs }

// Refresh runs the checks once and publishes SERVING or NOT_SERVING.
func (s *Server) Refresh(ctx context.Context) health.Report {
	report := s.checker.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if !report.Healthy() {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("health: not serving", "database", report.Database, "cache", report.Cache, "policy", report.Policy)
	}
	s.hs.SetServingStatus("", st)
	s.hs.SetServingStatus(ServiceName, st)
	return report
}

// Run refreshes the status every interval until ctx is done, then marks everything NOT_SERVING.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.hs.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
