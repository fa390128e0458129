// Package health exposes the link state over the standard gRPC health protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rbright/ledlink/internal/registry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PeerService reports SERVING while a peer is registered.
const PeerService = "ledlink.peer"

// Server hosts the health service on its own listener.
type Server struct {
	lis    net.Listener
	grpc   *grpc.Server
	health *health.Server
}

// Listen binds address and registers the health service. The overall
// service is SERVING; PeerService starts NOT_SERVING.
func Listen(address string) (*Server, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen health %q: %w", address, err)
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(PeerService, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{lis: lis, grpc: gs, health: hs}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

// Serve blocks until ctx is done or the server fails.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(s.lis) }()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.Stop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve health: %w", err)
	}
}

// Close releases a server that never ran.
func (s *Server) Close() error {
	s.grpc.Stop()
	return s.lis.Close()
}

// SetPeerConnected flips PeerService.
func (s *Server) SetPeerConnected(connected bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(PeerService, status)
}

// Observe is a registry observer.
func (s *Server) Observe(snap registry.Snapshot) {
	s.SetPeerConnected(snap.Connected)
}
