package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-checked service name. Clients may also query
// the empty name for the server as a whole.
const ServiceName = "perftune.Daemon"

// Config holds server configuration.
type Config struct {
	SocketPath string
}

// Server is the perftuned gRPC server. It exposes the standard health
// service, which reports SERVING only while the monitor runs.
type Server struct {
	cfg      Config
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
}

// NewServer creates a new daemon server listening on the Unix socket.
func NewServer(cfg Config) (*Server, error) {
	// Remove stale socket if exists
	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		return nil, err
	}

	// Ensure socket directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "unix", cfg.SocketPath)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:      cfg,
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		listener: listener,
	}

	healthpb.RegisterHealthServer(srv.grpc, srv.health)
	srv.SetServing(false)

	return srv, nil
}

// SetServing flips the health status of ServiceName and the server.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve starts the gRPC server. Blocks until stopped.
func (s *Server) Serve() error {
	return s.grpc.Serve(s.listener)
}

// Close marks the server NOT_SERVING, stops it and removes the socket.
func (s *Server) Close() error {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	return os.RemoveAll(s.cfg.SocketPath)
}
