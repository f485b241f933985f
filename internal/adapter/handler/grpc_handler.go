package handler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is a dependency whose reachability decides serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter publishes the standard gRPC health service. Each dependency
// is reported under its own service name; the empty name is the overall
// status and is SERVING only when every dependency answers.
type HealthReporter struct {
	server *health.Server
	checks map[string]Pinger
	logger *slog.Logger
}

func NewHealthReporter(logger *slog.Logger, checks map[string]Pinger) *HealthReporter {
	return &HealthReporter{
		server: health.NewServer(),
		checks: checks,
		logger: logger,
	}
}

func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Probe pings every dependency once and updates the published statuses.
func (h *HealthReporter) Probe(ctx context.Context) bool {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	for _, name := range names {
		status := healthpb.HealthCheckResponse_SERVING
		if err := h.checks[name].Ping(ctx); err != nil {
			healthy = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			h.logger.WarnContext(ctx, "dependency unhealthy", "dependency", name, "error", err)
		}
		h.server.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", overall)
	return healthy
}

// Run probes on every tick until ctx ends, then marks everything NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return nil
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			h.Probe(probeCtx)
			cancel()
		}
	}
}
