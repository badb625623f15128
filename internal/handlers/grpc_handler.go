package handlers

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StoreServiceName is the gRPC health service name of the result store.
const StoreServiceName = "eyemonitor.ResultStore"

// Pinger is anything whose liveness can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter publishes the database state on the standard gRPC health
// service so orchestrators can probe the store over gRPC.
type HealthReporter struct {
	server   *health.Server
	db       Pinger
	interval time.Duration
	clock    clock.Clock
	logger   *zap.SugaredLogger
}

func NewHealthReporter(db Pinger, interval time.Duration, clk clock.Clock, logger *zap.SugaredLogger) *HealthReporter {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &HealthReporter{
		server:   health.NewServer(),
		db:       db,
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
}

// Server returns the health server to register on a grpc.Server.
func (h *HealthReporter) Server() *health.Server {
	return h.server
}

// Check pings the database once and updates the serving status.
func (h *HealthReporter) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	err := h.db.Ping(ctx)
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warnf("Health: database unreachable: %v", err)
	}
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(StoreServiceName, st)
	return err == nil
}

// Run checks on every interval until ctx ends, then reports NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Check(ctx)

	ticker := h.clock.Ticker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
