// Package rpc serves the cognitive-core operations over gRPC.
//
// Messages use a JSON codec registered under the "json" content-subtype and
// the service descriptor is declared by hand in desc.go, so clients in any
// language can call it with a generic gRPC stack.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"github.com/nidhogg/cognitive-core/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// Options tunes the gRPC server.
type Options struct {
	// MaxConcurrentStreams bounds in-flight calls per connection. Zero keeps
	// the gRPC default.
	MaxConcurrentStreams uint32
}

// handler adapts service.Service to CognitiveCoreServer.
type handler struct {
	svc *service.Service
}

func (h *handler) GetCognitiveCore(ctx context.Context, req *service.GetRequest) (*core.CognitiveCore, error) {
	return h.svc.GetCognitiveCore(ctx, req)
}

func (h *handler) UpdateCognitiveCore(ctx context.Context, req *service.UpdateRequest) (*service.UpdateResponse, error) {
	return h.svc.UpdateCognitiveCore(ctx, req)
}

func (h *handler) RecordConversation(ctx context.Context, req *service.RecordConversationRequest) (*service.RecordConversationResponse, error) {
	return h.svc.RecordConversation(ctx, req)
}

func (h *handler) ActivateAwareness(ctx context.Context, req *service.ActivateRequest) (*service.ActivateResponse, error) {
	return h.svc.ActivateAwareness(ctx, req)
}

func (h *handler) QueryMemory(ctx context.Context, req *service.QueryRequest) (*service.QueryResponse, error) {
	return h.svc.QueryMemory(ctx, req)
}

func (h *handler) StreamUpdates(req *service.StreamRequest, stream grpc.ServerStreamingServer[notify.Update]) error {
	err := h.svc.StreamUpdates(stream.Context(), req, stream.Send)
	if errors.Is(err, service.ErrMissingClientID) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return err
}

// Server hosts the cognitive-core gRPC API and the standard health service.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	logger     *zap.Logger
}

// NewServer listens on addr and registers svc.
func NewServer(addr string, svc *service.Service, opts Options, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return NewServerWithListener(listener, svc, opts, logger), nil
}

// NewServerWithListener registers svc on a server bound to listener.
func NewServerWithListener(listener net.Listener, svc *service.Service, opts Options, logger *zap.Logger) *Server {
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(recoverUnary(logger), logUnary(logger)),
		grpc.ChainStreamInterceptor(recoverStream(logger)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 20 * time.Second,
		}),
	}
	if opts.MaxConcurrentStreams > 0 {
		serverOpts = append(serverOpts, grpc.MaxConcurrentStreams(opts.MaxConcurrentStreams))
	}

	grpcServer := grpc.NewServer(serverOpts...)
	healthServer := health.NewServer()
	RegisterCognitiveCoreServer(grpcServer, &handler{svc: svc})
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		logger:     logger,
	}
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve runs the server until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("gRPC server listening", zap.String("addr", s.Addr()))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	}
}

// Stop halts the server immediately.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.Stop()
}
