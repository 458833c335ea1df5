package server

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/oggyb/cunhao-core/internal/config"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
)

// StartGRPCServer listens on the configured address and serves until ctx is
// done.
func StartGRPCServer(ctx context.Context, cfg *config.Config, registrars ...Registrar) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return Serve(ctx, lis, registrars...)
}

// Serve registers all services on a new gRPC server and serves lis. When ctx
// is done the server stops gracefully and Serve returns nil.
func Serve(ctx context.Context, lis net.Listener, registrars ...Registrar) error {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryErrorMapper))

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	if err := grpcServer.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}

// UnaryErrorMapper converts core errors returned by handlers into gRPC
// status errors. Errors that already carry a status pass through.
func UnaryErrorMapper(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	if _, ok := status.FromError(err); ok {
		return resp, err
	}
	return resp, svcErr.Map(err)
}
