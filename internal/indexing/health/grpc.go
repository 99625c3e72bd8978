package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer serves the standard gRPC health checking protocol. The overall service
// ("") is SERVING unless the monitor reports a critical status.
type GRPCServer struct {
	monitor *Monitor
	health  *grpchealth.Server
	server  *grpc.Server
	port    int
}

// NewGRPCServer creates a gRPC health server.
func NewGRPCServer(monitor *Monitor, port int) *GRPCServer {
	hs := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCServer{
		monitor: monitor,
		health:  hs,
		server:  srv,
		port:    port,
	}
}

// Start listens on the configured port and serves until Stop.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port %d: %w", g.port, err)
	}
	return g.server.Serve(lis)
}

// Sync refreshes the serving status from the monitor every interval until ctx is done.
func (g *GRPCServer) Sync(ctx context.Context, interval time.Duration) {
	g.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Refresh(ctx)
		}
	}
}

// Refresh updates the serving status once.
func (g *GRPCServer) Refresh(ctx context.Context) {
	report := g.monitor.CheckHealth(ctx)

	status := healthpb.HealthCheckResponse_SERVING
	if report.SystemStatus == StatusCritical {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)

	for name, p := range report.Pipelines {
		ps := healthpb.HealthCheckResponse_SERVING
		if p.Status == StatusCritical {
			ps = healthpb.HealthCheckResponse_NOT_SERVING
		}
		g.health.SetServingStatus(name, ps)
	}
}

// Stop marks every service NOT_SERVING and drains connections.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
