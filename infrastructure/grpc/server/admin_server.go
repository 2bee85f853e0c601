package server

import (
	"errors"
	"log/slog"
	"net"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HubService is the health service name reported next to the overall status.
const HubService = "chathub.Hub"

// AdminServer exposes the standard gRPC health protocol for orchestrators.
// It reports NOT_SERVING until MarkServing is called and again once
// shutdown has started.
type AdminServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewAdminServer(log *slog.Logger) *AdminServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(HubService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &AdminServer{log: log, server: s, health: h}
}

func (a *AdminServer) MarkServing() {
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	a.health.SetServingStatus(HubService, healthpb.HealthCheckResponse_SERVING)
}

// Serve blocks until the listener fails or Stop is called.
func (a *AdminServer) Serve(listener net.Listener) error {
	a.log.Info("Starting gRPC admin server", "address", listener.Addr().String())
	for serviceName := range a.server.GetServiceInfo() {
		a.log.Debug("gRPC exposed services", "name", serviceName)
	}
	if err := a.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop flips every status to NOT_SERVING, then drains the pending calls.
func (a *AdminServer) Stop() {
	a.health.Shutdown()
	a.server.GracefulStop()
}
