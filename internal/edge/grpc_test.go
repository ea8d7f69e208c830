package edge

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ocx/modelrun/internal/breaker"
	"github.com/ocx/modelrun/internal/capability"
	"github.com/ocx/modelrun/internal/dispatch"
	"github.com/ocx/modelrun/internal/governor"
	"github.com/ocx/modelrun/internal/pool"
	"github.com/ocx/modelrun/internal/registry"
	"github.com/ocx/modelrun/pb"
)

type fakeSampleServer struct {
	grpc.ServerStream
	ctx  context.Context
	sent []*pb.SamplingChunk
}

func (f *fakeSampleServer) Context() context.Context { return f.ctx }

func (f *fakeSampleServer) Send(m *pb.SamplingChunk) error {
	f.sent = append(f.sent, m)
	return nil
}

type streamingGenerator struct{ chunks []string }

func (g streamingGenerator) GenerateText(ctx context.Context, prompt string, maxTokens int, emit func(capability.TextChunk) bool) error {
	for i, c := range g.chunks {
		if !emit(capability.TextChunk{Text: c, Final: i == len(g.chunks)-1}) {
			return nil
		}
	}
	return nil
}

func newTestDispatcher(t *testing.T, key registry.Key, chunks []string) *dispatch.Dispatcher {
	t.Helper()
	reg := registry.New()
	reg.Register(registry.ModelInfo{
		Key:          key,
		Provider:     "test",
		Name:         "streaming-generator",
		Capabilities: registry.TextGeneration,
		EstMemoryMB:  64,
	}, func() (any, error) { return streamingGenerator{chunks: chunks}, nil })

	gov := governor.New(4096)
	brk := breaker.NewManager(breaker.DefaultConfig())
	return dispatch.New(reg, gov, brk, pool.DefaultConfig())
}

func TestGRPCServerSampleStreamsChunks(t *testing.T) {
	key := registry.Key("gen-1")
	disp := newTestDispatcher(t, key, []string{"hello", " world"})
	srv := NewGRPCServer(disp)

	stream := &fakeSampleServer{ctx: metadata.NewIncomingContext(context.Background(), metadata.MD{})}
	req := &pb.SamplingRequest{RegistryKey: string(key), Capability: "text_generation", Prompt: "hi", MaxTokens: 16}

	if err := srv.Sample(req, stream); err != nil {
		t.Fatalf("Sample returned error: %v", err)
	}
	if len(stream.sent) != 2 {
		t.Fatalf("got %d chunks, want 2", len(stream.sent))
	}
	if !stream.sent[1].Final {
		t.Error("last chunk should be marked Final")
	}
}

func TestGRPCServerSampleRejectsNonStreamingCapability(t *testing.T) {
	key := registry.Key("gen-2")
	disp := newTestDispatcher(t, key, nil)
	srv := NewGRPCServer(disp)

	stream := &fakeSampleServer{ctx: context.Background()}
	req := &pb.SamplingRequest{RegistryKey: string(key), Capability: "text_embedding", Prompt: "hi"}

	err := srv.Sample(req, stream)
	if err == nil {
		t.Fatal("expected error for non-streaming capability")
	}
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestGRPCServerSampleRejectsUnknownCapability(t *testing.T) {
	key := registry.Key("gen-3")
	disp := newTestDispatcher(t, key, nil)
	srv := NewGRPCServer(disp)

	stream := &fakeSampleServer{ctx: context.Background()}
	req := &pb.SamplingRequest{RegistryKey: string(key), Capability: "nonsense"}

	err := srv.Sample(req, stream)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", status.Code(err))
	}
}
