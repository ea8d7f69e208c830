package capability

import (
	"context"

	"github.com/ocx/modelrun/internal/pool"
	"github.com/ocx/modelrun/internal/registry"
	"github.com/ocx/modelrun/internal/worker"
)

type embedOp struct {
	text string
	env  *worker.Envelope[string, []float32]
}

func (o *embedOp) Execute(ctx context.Context, model any) {
	v, err := model.(TextEmbeddingModel).Embed(ctx, o.text)
	o.env.SendResult(v, err)
}

type batchEmbedOp struct {
	texts []string
	env   *worker.Envelope[[]string, [][]float32]
}

func (o *batchEmbedOp) Execute(ctx context.Context, model any) {
	v, err := model.(TextEmbeddingModel).BatchEmbed(ctx, o.texts)
	o.env.SendResult(v, err)
}

// TextEmbeddingPool wraps a generic pool.Pool with the TextEmbeddingModel
// operation set.
type TextEmbeddingPool struct{ *pool.Pool }

func NewTextEmbeddingPool(p *pool.Pool) *TextEmbeddingPool { return &TextEmbeddingPool{p} }

func (p *TextEmbeddingPool) Embed(key registry.Key, text string) ([]float32, error) {
	return pool.Dispatch(p.Pool, string(key), text, func(e *worker.Envelope[string, []float32]) worker.Op {
		return &embedOp{text: text, env: e}
	})
}

func (p *TextEmbeddingPool) BatchEmbed(key registry.Key, texts []string) ([][]float32, error) {
	return pool.Dispatch(p.Pool, string(key), texts, func(e *worker.Envelope[[]string, [][]float32]) worker.Op {
		return &batchEmbedOp{texts: texts, env: e}
	})
}
