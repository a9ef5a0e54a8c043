package grpc

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rbroggi/userlifecycle/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name the user service status is published under. The empty service name
// reports the same status.
const ServiceName = "userlifecycle.v1.UserService"

// HealthServiceArgs are the mandatory args to instantiate the HealthService.
type HealthServiceArgs struct {
	// Pinger checks the dependency the service cannot work without.
	Pinger ports.Pinger

	// Interval is the time between two probes. It also bounds every probe.
	Interval time.Duration
}

// HealthService implements grpc.health.v1 on top of periodic probes of a Pinger.
type HealthService struct {
	server   *health.Server
	pinger   ports.Pinger
	interval time.Duration
	serving  atomic.Bool
}

// NewHealthService creates a HealthService. It reports NOT_SERVING until the first probe succeeds.
func NewHealthService(args HealthServiceArgs) (*HealthService, error) {
	if args.Pinger == nil {
		return nil, errors.New("nil pinger")
	}
	if args.Interval <= 0 {
		return nil, errors.New("probe interval must be positive")
	}
	h := &HealthService{
		server:   health.NewServer(),
		pinger:   args.Pinger,
		interval: args.Interval,
	}
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return h, nil
}

// Register registers the health service on s.
func (h *HealthService) Register(s grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Serving reports the outcome of the last probe.
func (h *HealthService) Serving() bool {
	return h.serving.Load()
}

// Probe pings the dependency once and publishes the resulting status.
func (h *HealthService) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	err := h.pinger.Ping(ctx)
	serving := err == nil
	if h.serving.Swap(serving) != serving {
		if serving {
			log.Info("dependency reachable, serving")
		} else {
			log.WithError(err).Warn("dependency unreachable, not serving")
		}
	}
	if serving {
		h.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return serving
}

// Run probes every interval until ctx is done, then marks every service as NOT_SERVING.
func (h *HealthService) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	h.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.serving.Store(false)
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}

func (h *HealthService) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
