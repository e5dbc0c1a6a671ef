package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthCallTimeout    = time.Second
	healthInitialBackoff = 200 * time.Millisecond
	healthMaxBackoff     = time.Second
)

// ErrHealthConnRequired indicates a health check was attempted without a
// connection.
var ErrHealthConnRequired = errors.New("gRPC connection is not configured")

// CheckHealth asks conn once for the serving status of service. An empty
// service reports overall server health; the tracker reports its running
// scheduler under its own name ("tracker.runtime").
func CheckHealth(ctx context.Context, conn *gogrpc.ClientConn, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	if conn == nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, ErrHealthConnRequired
	}
	callCtx, cancel := context.WithTimeout(ctx, healthCallTimeout)
	defer cancel()
	response, err := grpc_health_v1.NewHealthClient(conn).Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return response.GetStatus(), nil
}

// WaitForHealth polls service until it reports SERVING or ctx ends. A service
// the server has not registered yet is polled like one that is not serving.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return ErrHealthConnRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	name := healthServiceName(service)

	backoff := healthInitialBackoff
	for {
		status, err := CheckHealth(ctx, conn, service)
		switch {
		case err != nil:
			logf("waiting for gRPC health of %s: %v", name, err)
		case status == grpc_health_v1.HealthCheckResponse_SERVING:
			logf("gRPC health of %s is SERVING", name)
			return nil
		default:
			logf("waiting for gRPC health of %s: status %s", name, status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health of %s: %w", name, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = nextHealthBackoff(backoff)
	}
}

func healthServiceName(service string) string {
	if service == "" {
		return "server"
	}
	return service
}

func nextHealthBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > healthMaxBackoff {
		return healthMaxBackoff
	}
	return next
}
