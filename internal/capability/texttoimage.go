package capability

import (
	"context"
	"time"

	"github.com/ocx/modelrun/internal/pool"
	"github.com/ocx/modelrun/internal/registry"
	"github.com/ocx/modelrun/internal/worker"
)

// dropTimeout bounds how long a streaming op waits to deliver a chunk
// before assuming the receiver is gone and giving up rather than wedging
// the worker loop forever.
const dropTimeout = 5 * time.Second

type generateImageRequest struct {
	prompt string
	steps  int
}

type generateImageOp struct {
	req generateImageRequest
	env *worker.StreamEnvelope[generateImageRequest, DiffusionStep]
}

func (o *generateImageOp) Execute(ctx context.Context, model any) {
	err := model.(TextToImageModel).GenerateImage(ctx, o.req.prompt, o.req.steps, func(step DiffusionStep) bool {
		return o.env.EmitChunk(step, dropTimeout)
	})
	o.env.Finish(err, dropTimeout)
}

// TextToImagePool wraps a generic pool.Pool with the TextToImageModel
// operation set.
type TextToImagePool struct{ *pool.Pool }

func NewTextToImagePool(p *pool.Pool) *TextToImagePool { return &TextToImagePool{p} }

// GenerateImage streams diffusion steps as they're produced. The returned
// channel is closed once generation finishes or fails; its terminal message
// carries the error, if any.
func (p *TextToImagePool) GenerateImage(key registry.Key, prompt string, steps int) (<-chan worker.StreamResult[DiffusionStep], error) {
	req := generateImageRequest{prompt: prompt, steps: steps}
	return pool.DispatchStream(p.Pool, string(key), req, steps+1, func(e *worker.StreamEnvelope[generateImageRequest, DiffusionStep]) worker.Op {
		return &generateImageOp{req: req, env: e}
	})
}
