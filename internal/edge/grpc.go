package edge

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/ocx/modelrun/internal/dispatch"
	"github.com/ocx/modelrun/internal/registry"
	"github.com/ocx/modelrun/pb"
)

// GRPCServer implements pb.DispatchServiceServer, fronting the same
// Dispatcher as Server's HTTP/JSON-RPC surface with a streaming sampling
// RPC.
type GRPCServer struct {
	dispatcher *dispatch.Dispatcher
}

// NewGRPCServer builds a GRPCServer over d.
func NewGRPCServer(d *dispatch.Dispatcher) *GRPCServer {
	return &GRPCServer{dispatcher: d}
}

// Sample streams text_generation output chunk by chunk. Only
// text_generation supports this RPC; other capabilities return
// InvalidArgument, matching internal/edge/server.go's route rejecting
// streaming capabilities from the unary JSON-RPC surface.
func (g *GRPCServer) Sample(req *pb.SamplingRequest, stream pb.DispatchService_SampleServer) error {
	cap, ok := capabilityFromString(req.Capability)
	if !ok {
		return status.Errorf(codes.InvalidArgument, "unknown capability %q", req.Capability)
	}
	if cap != registry.TextGeneration {
		return status.Errorf(codes.InvalidArgument, "capability %q does not support streaming sampling", req.Capability)
	}

	key := registry.Key(req.RegistryKey)
	if err := g.dispatcher.EnsureWorkers(key, cap); err != nil {
		return status.Error(ToGRPCCode(err), err.Error())
	}

	maxTokens := int(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 256
	}

	results, err := g.dispatcher.TextGeneration.GenerateText(key, req.Prompt, maxTokens)
	if err != nil {
		return status.Error(ToGRPCCode(err), err.Error())
	}

	for res := range results {
		if res.Err != nil {
			return status.Error(ToGRPCCode(res.Err), res.Err.Error())
		}
		if res.Done {
			continue
		}
		chunk := &pb.SamplingChunk{
			RegistryKey: req.RegistryKey,
			Delta:       res.Chunk.Text,
			Final:       res.Chunk.Final,
			EmittedAt:   timestamppb.Now(),
		}
		if err := stream.Send(chunk); err != nil {
			return err
		}
	}
	return nil
}

// NewGRPCTransport builds a grpc.Server serving d's dispatch surface,
// with the unary/stream interceptors wired so pool/breaker errors are
// mapped to gRPC status codes the same way the HTTP surface maps them
// to JSON-RPC error envelopes.
func NewGRPCTransport(d *dispatch.Dispatcher) *grpc.Server {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(UnaryInterceptor()),
		grpc.StreamInterceptor(StreamInterceptor()),
	)
	pb.RegisterDispatchServiceServer(srv, NewGRPCServer(d))
	slog.Info("edge: grpc transport registered", "service", "modelrun.DispatchService")
	return srv
}
