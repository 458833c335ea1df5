package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Registrar is a common interface for all gRPC service registrars
type Registrar interface {
	Register(s *grpc.Server)
}

// HealthRegistrar exposes the standard gRPC health service. The worker
// reports NOT_SERVING until SetServing(true) is called.
type HealthRegistrar struct {
	srv *health.Server
}

func NewHealthRegistrar() *HealthRegistrar {
	h := &HealthRegistrar{srv: health.NewServer()}
	h.SetServing(false)
	return h
}

func (h *HealthRegistrar) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// SetServing flips the overall ("") service status.
func (h *HealthRegistrar) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus("", status)
}

// Shutdown marks every service NOT_SERVING ahead of a graceful stop.
func (h *HealthRegistrar) Shutdown() { h.srv.Shutdown() }
