package transport

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	pb "github.com/bpgergo/kmirror/api/proto/v1"
)

// Server is the control plane's gRPC listener. Alongside Control it
// carries the standard gRPC health-checking service, so an orchestrator
// can probe liveness without a custom RPC.
type Server struct {
	grpc   *grpc.Server
	lis    net.Listener
	health *health.Server
}

// StartServer binds port and registers control as the Control service
// implementation.
func StartServer(port int, control pb.ControlServer) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	s := &Server{
		grpc:   grpc.NewServer(),
		lis:    lis,
		health: health.NewServer(),
	}
	pb.RegisterControlServer(s.grpc, control)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s, nil
}

// Serve blocks, accepting control-plane RPCs until Stop is called.
func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

// Stop marks the server as no longer serving, then gracefully drains
// in-flight RPCs before returning.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
