package edge

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ocx/modelrun/internal/breaker"
	"github.com/ocx/modelrun/internal/pool"
)

func TestUnaryInterceptorPassesThroughOnSuccess(t *testing.T) {
	interceptor := UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/modelrun.Edge/Sample"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	resp, err := interceptor(context.Background(), nil, info, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Errorf("resp = %v, want ok", resp)
	}
}

func TestUnaryInterceptorMapsPoolErrorToGRPCStatus(t *testing.T) {
	interceptor := UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/modelrun.Edge/Sample"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, pool.ErrTimeout
	}

	_, err := interceptor(context.Background(), nil, info, handler)
	if err == nil {
		t.Fatal("expected error")
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("error is not a gRPC status: %v", err)
	}
	if st.Code() != codes.DeadlineExceeded {
		t.Errorf("code = %v, want DeadlineExceeded", st.Code())
	}
}

func TestUnaryInterceptorMapsCircuitOpenToUnavailable(t *testing.T) {
	interceptor := UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/modelrun.Edge/Sample"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, breaker.ErrCircuitOpen
	}

	_, err := interceptor(context.Background(), nil, info, handler)
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("error is not a gRPC status: %v", err)
	}
	if st.Code() != codes.Unavailable {
		t.Errorf("code = %v, want Unavailable", st.Code())
	}
}

func TestTenantFromContextPrefersExplicitValue(t *testing.T) {
	ctx := WithTenantID(context.Background(), "tenant-42")
	if got := tenantFromContext(ctx); got != "tenant-42" {
		t.Errorf("tenantFromContext = %q, want tenant-42", got)
	}
}

func TestTenantFromContextDefaultsWhenAbsent(t *testing.T) {
	if got := tenantFromContext(context.Background()); got != "default" {
		t.Errorf("tenantFromContext = %q, want default", got)
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }

func TestStreamInterceptorMapsErrorToGRPCStatus(t *testing.T) {
	interceptor := StreamInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/modelrun.Edge/StreamSample"}
	ss := &fakeServerStream{ctx: context.Background()}
	handler := func(srv interface{}, stream grpc.ServerStream) error {
		return errors.New("boom")
	}

	err := interceptor(nil, ss, info, handler)
	if err == nil {
		t.Fatal("expected error")
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("error is not a gRPC status: %v", err)
	}
	if st.Code() != codes.Internal {
		t.Errorf("code = %v, want Internal", st.Code())
	}
}

func TestStreamInterceptorPassesThroughOnSuccess(t *testing.T) {
	interceptor := StreamInterceptor()
	info := &grpc.StreamServerInfo{FullMethod: "/modelrun.Edge/StreamSample"}
	ss := &fakeServerStream{ctx: context.Background()}
	handler := func(srv interface{}, stream grpc.ServerStream) error {
		return nil
	}

	if err := interceptor(nil, ss, info, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
