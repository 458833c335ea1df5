package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	svcErr "github.com/oggyb/cunhao-core/internal/errors"
	"github.com/oggyb/cunhao-core/internal/server"
)

func TestServe_HealthAndGracefulStop(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	health := server.NewHealthRegistrar()
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, lis, health) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer ccancel()
		resp, err := client.Check(cctx, &healthpb.HealthCheckRequest{})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
	health.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestUnaryErrorMapper(t *testing.T) {
	call := func(err error) error {
		_, got := server.UnaryErrorMapper(context.Background(), nil, &grpc.UnaryServerInfo{},
			func(context.Context, any) (any, error) { return nil, err })
		return got
	}

	assert.NoError(t, call(nil))
	assert.Equal(t, codes.PermissionDenied, status.Code(call(svcErr.ErrNotCurator)))
	assert.Equal(t, codes.Unavailable, status.Code(call(svcErr.Storage("save", assert.AnError))))
	assert.Equal(t, codes.NotFound, status.Code(call(status.Error(codes.NotFound, "unknown service"))))
}
