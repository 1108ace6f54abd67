package api

import (
	"context"
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName имя сервиса в grpc.health.v1
const HealthServiceName = "stockdash.Dashboard"

// HealthServer gRPC сервер со стандартным health сервисом для оркестратора
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer создает gRPC сервер, статус NOT_SERVING до вызова SetServing
func NewHealthServer() *HealthServer {
	s := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.SetServing(false)
	return s
}

// SetServing переключает статус общего и именованного сервиса
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HealthServiceName, status)
}

// Status текущий статус именованного сервиса
func (s *HealthServer) Status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}
	return resp.GetStatus()
}

// Serve слушает порт и блокируется до остановки сервера
func (s *HealthServer) Serve(port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen gRPC: %w", err)
	}
	return s.ServeListener(lis)
}

// ServeListener обслуживает уже открытый listener
func (s *HealthServer) ServeListener(lis net.Listener) error {
	log.Printf("📡 gRPC health сервер слушает %s", lis.Addr())
	return s.server.Serve(lis)
}

// Shutdown помечает сервис NOT_SERVING и останавливает сервер
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
