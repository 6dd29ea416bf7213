package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall status.
const ServiceName = "ephemeral-chat"

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Watchdog keeps the gRPC health status in line with database reachability.
type Watchdog struct {
	server   *health.Server
	db       Pinger
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
	serving  bool
}

// NewWatchdog constructs a watchdog. The status starts as NOT_SERVING until
// the first successful ping.
func NewWatchdog(db Pinger, interval time.Duration, log *zap.Logger) *Watchdog {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Watchdog{
		server:   srv,
		db:       db,
		interval: interval,
		timeout:  2 * time.Second,
		log:      log,
	}
}

// Server exposes the health service for registration.
func (w *Watchdog) Server() *health.Server {
	return w.server
}

// Run probes until ctx is done, then marks the service NOT_SERVING.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			w.server.Shutdown()
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one probe and updates the status when it changes.
func (w *Watchdog) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.db.PingContext(pingCtx)
	cancel()

	serving := err == nil
	if serving == w.serving {
		return serving
	}
	w.serving = serving

	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		w.log.Warn("database unreachable, reporting not serving", zap.Error(err))
	} else {
		w.log.Info("database reachable, reporting serving")
	}
	w.server.SetServingStatus("", status)
	w.server.SetServingStatus(ServiceName, status)
	return serving
}
