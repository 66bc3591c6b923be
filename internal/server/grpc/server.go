// Package grpc hosts the gRPC endpoint. It owns transport concerns only:
// listening, health and reflection, and turning bearer tokens into resumed
// sessions before any handler runs.
package grpc

import (
	"context"
	"net"

	"github.com/dinicsek/LovassyApp/internal/logging"
	"github.com/dinicsek/LovassyApp/internal/server/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Registrar is called with the server before it starts serving, so feature
// packages can register their services.
type Registrar func(s *grpc.Server)

type GRPCServer struct {
	address       string
	sessions      *session.Store
	logger        logging.Logger
	publicMethods map[string]struct{}
	registrars    []Registrar
	health        *health.Server
}

// NewGRPCServer returns a server on address. Methods listed in publicMethods
// (full "/pkg.Service/Method" names) are served without a session; health and
// reflection always are.
func NewGRPCServer(address string, l logging.Logger, sessions *session.Store, publicMethods []string, registrars ...Registrar) *GRPCServer {
	public := make(map[string]struct{}, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = struct{}{}
	}
	return &GRPCServer{
		address:       address,
		sessions:      sessions,
		logger:        l.With("module", "grpc_server"),
		publicMethods: public,
		registrars:    registrars,
		health:        health.NewServer(),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.sessionInterceptor),
		grpc.ChainStreamInterceptor(s.sessionStreamInterceptor),
	)

	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)
	for _, r := range s.registrars {
		r(srv)
	}
	return srv
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return srv.Serve(listen)
}
