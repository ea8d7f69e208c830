package capability

import (
	"context"

	"github.com/ocx/modelrun/internal/pool"
	"github.com/ocx/modelrun/internal/registry"
	"github.com/ocx/modelrun/internal/worker"
)

type describeImageRequest struct {
	path   string
	prompt string
}

type describeImageOp struct {
	req describeImageRequest
	env *worker.Envelope[describeImageRequest, string]
}

func (o *describeImageOp) Execute(ctx context.Context, model any) {
	v, err := model.(VisionModel).DescribeImage(ctx, o.req.path, o.req.prompt)
	o.env.SendResult(v, err)
}

// VisionPool wraps a generic pool.Pool with the VisionModel operation set.
type VisionPool struct{ *pool.Pool }

func NewVisionPool(p *pool.Pool) *VisionPool { return &VisionPool{p} }

func (p *VisionPool) DescribeImage(key registry.Key, path, prompt string) (string, error) {
	req := describeImageRequest{path: path, prompt: prompt}
	return pool.Dispatch(p.Pool, string(key), req, func(e *worker.Envelope[describeImageRequest, string]) worker.Op {
		return &describeImageOp{req: req, env: e}
	})
}
