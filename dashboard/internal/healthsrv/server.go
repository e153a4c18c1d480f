package healthsrv

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/obsidianstack/fleetwatch/dashboard/internal/activity"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/auth"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/compute"
	"github.com/obsidianstack/fleetwatch/dashboard/internal/monitor"
	"github.com/obsidianstack/fleetwatch/pkg/types"
)

// Service is the health service name that tracks the switch.
const Service = "fleetwatch.switch"

// Server serves grpc.health.v1.Health. The overall ("") service is SERVING
// while the process is up; Service follows the monitor's connectivity.
// It implements monitor.Handler.
type Server struct {
	health *health.Server
	grpc   *grpc.Server
}

// New creates a Server whose RPCs are checked by c.
func New(c auth.Checker) *Server {
	s := &Server{
		health: health.NewServer(),
		grpc: grpc.NewServer(
			grpc.UnaryInterceptor(c.UnaryInterceptor()),
			grpc.StreamInterceptor(c.StreamInterceptor()),
		),
	}
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_UNKNOWN)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("healthsrv: listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains open streams.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// OnConnectivityChanged maps the monitor's connectivity onto Service.
func (s *Server) OnConnectivityChanged(c monitor.Connectivity) {
	st := servingStatus(c)
	slog.Debug("healthsrv: status changed", "service", Service, "status", st.String())
	s.health.SetServingStatus(Service, st)
}

func (s *Server) OnSnapshotUpdated(*types.Snapshot, compute.Metrics) {}
func (s *Server) OnActivity(activity.Entry)                          {}

func servingStatus(c monitor.Connectivity) healthpb.HealthCheckResponse_ServingStatus {
	switch c {
	case monitor.Online:
		return healthpb.HealthCheckResponse_SERVING
	case monitor.Offline:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_UNKNOWN
	}
}
