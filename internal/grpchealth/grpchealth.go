// Package grpchealth publishes the bot's connection state through the
// standard gRPC health protocol, for probes that speak grpc_health_v1.
package grpchealth

import (
	"context"
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

// SessionService is the health service name that tracks the game session.
const SessionService = "minebot.session"

// Server reports "" as always SERVING and SessionService as SERVING only
// while the session is Online.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func New() *Server {
	s := &Server{grpc: grpc.NewServer(), health: health.NewServer()}
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(SessionService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetStatus maps a session status onto SessionService.
func (s *Server) SetStatus(st session.Status) {
	s.health.SetServingStatus(SessionService, servingStatus(st))
}

func servingStatus(st session.Status) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if st == session.Online {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}

// Consume follows status events until ctx is done or events is closed.
func (s *Server) Consume(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == session.EventStatus {
				s.SetStatus(ev.Status)
			}
		}
	}
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc health listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("gRPC health listening on %s", lis.Addr())
		serveErr <- s.grpc.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	}
}
