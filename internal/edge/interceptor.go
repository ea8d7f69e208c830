package edge

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const tenantIDKey contextKey = "tenant_id"

// WithTenantID attaches a tenant id to ctx for handlers that don't go
// through gRPC metadata directly (e.g. tests).
func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

func tenantFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(tenantIDKey).(string); ok && id != "" {
		return id
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-tenant-id"); len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}
	return "default"
}

// UnaryInterceptor maps dispatch/pool errors returned by handler to gRPC
// status codes: metadata extraction, structured logging, and one
// responsibility — translating the dispatch error taxonomy into gRPC's.
func UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		tenantID := tenantFromContext(ctx)

		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}

		code := ToGRPCCode(err)
		slog.Warn("edge: rpc call failed", "tenant_id", tenantID, "method", info.FullMethod, "error", err, "grpc_code", code)
		return nil, status.Error(code, err.Error())
	}
}

// StreamInterceptor is the streaming analogue of UnaryInterceptor, used
// for the sampling/createMessage-style streaming RPC.
func StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		err := handler(srv, ss)
		if err == nil {
			return nil
		}
		tenantID := tenantFromContext(ss.Context())
		code := ToGRPCCode(err)
		slog.Warn("edge: stream rpc failed", "tenant_id", tenantID, "method", info.FullMethod, "error", err, "grpc_code", code)
		return status.Error(code, err.Error())
	}
}
