// Package pb holds the gRPC client/server stubs for the streaming
// sampling RPC, hand-maintained rather than protoc-generated since no
// .proto toolchain runs as part of this build.
package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// SamplingRequest is the streaming sampling RPC's request message: which
// capability and registered model to call, with what prompt.
type SamplingRequest struct {
	RegistryKey string
	Capability  string
	Prompt      string
	MaxTokens   int32
}

// SamplingChunk is one frame of a streaming sampling response — a
// generated text delta, tagged with when it was emitted.
type SamplingChunk struct {
	RegistryKey string
	Delta       string
	Final       bool
	EmittedAt   *timestamppb.Timestamp
}

// DispatchServiceClient is the client-side stub for the sampling RPC.
type DispatchServiceClient interface {
	Sample(ctx context.Context, in *SamplingRequest, opts ...grpc.CallOption) (DispatchService_SampleClient, error)
}

// DispatchService_SampleClient is the client-side handle on the Sample
// server stream.
type DispatchService_SampleClient interface {
	Recv() (*SamplingChunk, error)
	grpc.ClientStream
}

type dispatchServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewDispatchServiceClient builds a client stub bound to cc.
func NewDispatchServiceClient(cc grpc.ClientConnInterface) DispatchServiceClient {
	return &dispatchServiceClient{cc: cc}
}

func (c *dispatchServiceClient) Sample(ctx context.Context, in *SamplingRequest, opts ...grpc.CallOption) (DispatchService_SampleClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/modelrun.DispatchService/Sample", opts...)
	if err != nil {
		return nil, err
	}
	x := &dispatchServiceSampleClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type dispatchServiceSampleClient struct {
	grpc.ClientStream
}

func (x *dispatchServiceSampleClient) Recv() (*SamplingChunk, error) {
	m := new(SamplingChunk)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// DispatchServiceServer is the contract a gRPC server implements to
// serve the sampling RPC.
type DispatchServiceServer interface {
	Sample(*SamplingRequest, DispatchService_SampleServer) error
}

// DispatchService_SampleServer is the server-side handle used to push
// SamplingChunk frames to the caller.
type DispatchService_SampleServer interface {
	Send(*SamplingChunk) error
	grpc.ServerStream
}

type dispatchServiceSampleServer struct {
	grpc.ServerStream
}

func (x *dispatchServiceSampleServer) Send(m *SamplingChunk) error {
	return x.ServerStream.SendMsg(m)
}

func _DispatchService_Sample_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(SamplingRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(DispatchServiceServer).Sample(m, &dispatchServiceSampleServer{stream})
}

// ServiceDesc is the grpc.ServiceDesc DispatchServiceServer is registered
// against.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "modelrun.DispatchService",
	HandlerType: (*DispatchServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Sample",
			Handler:       _DispatchService_Sample_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "dispatch.proto",
}

// RegisterDispatchServiceServer registers srv with s under ServiceDesc.
func RegisterDispatchServiceServer(s grpc.ServiceRegistrar, srv DispatchServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
