package capability

import (
	"context"

	"github.com/ocx/modelrun/internal/pool"
	"github.com/ocx/modelrun/internal/registry"
	"github.com/ocx/modelrun/internal/worker"
)

type embedImageOp struct {
	path string
	env  *worker.Envelope[string, []float32]
}

func (o *embedImageOp) Execute(ctx context.Context, model any) {
	v, err := model.(ImageEmbeddingModel).EmbedImage(ctx, o.path)
	o.env.SendResult(v, err)
}

type embedImageURLOp struct {
	url string
	env *worker.Envelope[string, []float32]
}

func (o *embedImageURLOp) Execute(ctx context.Context, model any) {
	v, err := model.(ImageEmbeddingModel).EmbedImageURL(ctx, o.url)
	o.env.SendResult(v, err)
}

type embedImageBase64Op struct {
	data string
	env  *worker.Envelope[string, []float32]
}

func (o *embedImageBase64Op) Execute(ctx context.Context, model any) {
	v, err := model.(ImageEmbeddingModel).EmbedImageBase64(ctx, o.data)
	o.env.SendResult(v, err)
}

type batchEmbedImagesOp struct {
	paths []string
	env   *worker.Envelope[[]string, [][]float32]
}

func (o *batchEmbedImagesOp) Execute(ctx context.Context, model any) {
	v, err := model.(ImageEmbeddingModel).BatchEmbedImages(ctx, o.paths)
	o.env.SendResult(v, err)
}

// ImageEmbeddingPool wraps a generic pool.Pool with the ImageEmbeddingModel
// operation set: one Op variant per entry point (path, URL, base64, batch)
// instead of a separate channel per operation.
type ImageEmbeddingPool struct{ *pool.Pool }

func NewImageEmbeddingPool(p *pool.Pool) *ImageEmbeddingPool { return &ImageEmbeddingPool{p} }

func (p *ImageEmbeddingPool) EmbedImage(key registry.Key, path string) ([]float32, error) {
	return pool.Dispatch(p.Pool, string(key), path, func(e *worker.Envelope[string, []float32]) worker.Op {
		return &embedImageOp{path: path, env: e}
	})
}

func (p *ImageEmbeddingPool) EmbedImageURL(key registry.Key, url string) ([]float32, error) {
	return pool.Dispatch(p.Pool, string(key), url, func(e *worker.Envelope[string, []float32]) worker.Op {
		return &embedImageURLOp{url: url, env: e}
	})
}

func (p *ImageEmbeddingPool) EmbedImageBase64(key registry.Key, data string) ([]float32, error) {
	return pool.Dispatch(p.Pool, string(key), data, func(e *worker.Envelope[string, []float32]) worker.Op {
		return &embedImageBase64Op{data: data, env: e}
	})
}

func (p *ImageEmbeddingPool) BatchEmbedImages(key registry.Key, paths []string) ([][]float32, error) {
	return pool.Dispatch(p.Pool, string(key), paths, func(e *worker.Envelope[[]string, [][]float32]) worker.Op {
		return &batchEmbedImagesOp{paths: paths, env: e}
	})
}
