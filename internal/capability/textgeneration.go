package capability

import (
	"context"

	"github.com/ocx/modelrun/internal/pool"
	"github.com/ocx/modelrun/internal/registry"
	"github.com/ocx/modelrun/internal/worker"
)

type generateTextRequest struct {
	prompt    string
	maxTokens int
}

type generateTextOp struct {
	req generateTextRequest
	env *worker.StreamEnvelope[generateTextRequest, TextChunk]
}

func (o *generateTextOp) Execute(ctx context.Context, model any) {
	err := model.(TextGenerationModel).GenerateText(ctx, o.req.prompt, o.req.maxTokens, func(chunk TextChunk) bool {
		return o.env.EmitChunk(chunk, dropTimeout)
	})
	o.env.Finish(err, dropTimeout)
}

// TextGenerationPool wraps a generic pool.Pool with the TextGenerationModel
// operation set.
type TextGenerationPool struct{ *pool.Pool }

func NewTextGenerationPool(p *pool.Pool) *TextGenerationPool { return &TextGenerationPool{p} }

// GenerateText streams text chunks as they're produced. The returned
// channel is closed once generation finishes or fails.
func (p *TextGenerationPool) GenerateText(key registry.Key, prompt string, maxTokens int) (<-chan worker.StreamResult[TextChunk], error) {
	req := generateTextRequest{prompt: prompt, maxTokens: maxTokens}
	return pool.DispatchStream(p.Pool, string(key), req, 32, func(e *worker.StreamEnvelope[generateTextRequest, TextChunk]) worker.Op {
		return &generateTextOp{req: req, env: e}
	})
}
