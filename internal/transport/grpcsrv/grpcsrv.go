// Package grpcsrv implements CALIBER's thin gRPC facade: a standard
// health service plus reflection, scoped down from a full gRPC DTO layer
// (spec §1 Non-goals: "HTTP/gRPC/WebSocket DTO layer detail"). The
// lifecycle shape — a blocking ListenAndServe(addr) and a GracefulStop —
// is grounded on kadirpekel-hector's pkg/transport/server.go. GracefulStop
// waits for in-flight RPCs with no deadline; there is no force Stop.
package grpcsrv

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Heyoub/caliber-sub001/internal/store"
)

// Server wraps a *grpc.Server exposing only health checking and
// reflection, the minimal surface the thin facade promises.
type Server struct {
	store      *store.Store
	log        *slog.Logger
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

// New builds a Server. The pgxpool-backed Store is used to answer health
// checks against the real store connection, the same dependency
// cmd/tarsy/main.go's /health handler checks over HTTP.
func New(st *store.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: st, log: log}
}

// ListenAndServe starts the gRPC server on addr (blocking).
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpcsrv: listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.grpcServer = grpc.NewServer()
	s.health = health.NewServer()
	s.refreshServingStatus()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	s.log.Info("gRPC server starting", "addr", addr)
	if err := s.grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("grpcsrv: serve: %w", err)
	}
	return nil
}

// refreshServingStatus pings the store once at startup and sets the
// health service's status accordingly — a coarser check than per-RPC
// health watching, but sufficient for this facade's scope.
func (s *Server) refreshServingStatus() {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if s.store != nil {
		if err := s.store.Health(context.Background()); err != nil {
			s.log.Warn("store health check failed at gRPC startup", "error", err)
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
}

// GracefulStop stops the gRPC server, allowing in-flight RPCs to finish.
func (s *Server) GracefulStop() {
	if s.grpcServer == nil {
		return
	}
	if s.health != nil {
		s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	s.grpcServer.GracefulStop()
}
