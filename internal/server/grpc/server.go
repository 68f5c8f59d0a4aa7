// Package grpcserver wraps the RegionMaster heartbeat service with a
// health check and a graceful-stop-aware listener lifecycle, the way this
// package historically wrapped the storage engine's KV/Admin services.
package grpcserver

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	rmgrpc "regionmaster/internal/regionmanager/grpc"
	api "regionmaster/pkg/api"
)

// Config holds gRPC server configuration.
type Config struct {
	Address string
}

// Server wraps the RegionMaster heartbeat service plus a health endpoint.
type Server struct {
	cfg     Config
	manager rmgrpc.Heartbeater
	srv     *grpc.Server
	health  *health.Server
}

// New constructs a Server bound to manager. manager may be nil in tests that
// only exercise the health endpoint.
func New(cfg Config, manager rmgrpc.Heartbeater) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		srv:     grpc.NewServer(),
		health:  health.NewServer(),
	}
	if manager != nil {
		api.RegisterRegionMasterServer(s.srv, rmgrpc.NewServer(manager))
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Start begins listening on the configured address. The health status flips
// to SERVING once the listener is up, and back to NOT_SERVING as soon as ctx
// is cancelled, ahead of the graceful stop draining in-flight RPCs.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Address == "" {
		return fmt.Errorf("grpc address is empty")
	}
	lis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	s.setServing(true)
	go func() {
		<-ctx.Done()
		s.setServing(false)
		s.srv.GracefulStop()
	}()
	go func() {
		_ = s.srv.Serve(lis)
	}()
	return nil
}

// Stop shuts down the server.
func (s *Server) Stop() {
	if s.srv != nil {
		s.setServing(false)
		s.srv.GracefulStop()
	}
}

func (s *Server) setServing(serving bool) {
	if s.health == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}
