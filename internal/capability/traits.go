// Package capability defines the five opaque model contracts a worker can
// own (text embedding, image embedding, vision, text-to-image, text
// generation) and the typed pool wrappers built on pool.Dispatch for each.
// Each capability gets its own request/response shapes and its own thin
// pool wrapper rather than a single generic one, since the per-operation
// argument lists (a path vs. a URL vs. inline base64 data, for instance)
// don't share a common shape worth forcing together.
package capability

import "context"

// TextEmbeddingModel turns text into a fixed-size vector.
type TextEmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// ImageEmbeddingModel turns an image (by path, URL, or inline base64) into a
// fixed-size vector.
type ImageEmbeddingModel interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedImageURL(ctx context.Context, url string) ([]float32, error)
	EmbedImageBase64(ctx context.Context, data string) ([]float32, error)
	BatchEmbedImages(ctx context.Context, paths []string) ([][]float32, error)
}

// VisionModel answers questions about an image's contents.
type VisionModel interface {
	DescribeImage(ctx context.Context, path string, prompt string) (string, error)
}

// DiffusionStep is one intermediate frame of a text-to-image generation,
// emitted as the model denoises its latent.
type DiffusionStep struct {
	Step      int
	TotalStep int
	Preview   []byte // encoded preview image, may be empty for non-preview steps
	Final     []byte // populated only on the last step
}

// TextToImageModel renders an image from a prompt, streaming intermediate
// diffusion steps as they complete. emit is called once per step from the
// worker's own goroutine and returns false if the caller has stopped
// listening, in which case the model should abandon generation early.
type TextToImageModel interface {
	GenerateImage(ctx context.Context, prompt string, steps int, emit func(DiffusionStep) bool) error
}

// TextChunk is one piece of incrementally generated text.
type TextChunk struct {
	Text    string
	Final   bool
	Usage   *TokenUsage // populated only on the final chunk
}

// TokenUsage reports token accounting for a completed generation.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// TextGenerationModel generates text token-by-token, streaming chunks as
// they're produced. emit behaves like TextToImageModel's: false means stop.
type TextGenerationModel interface {
	GenerateText(ctx context.Context, prompt string, maxTokens int, emit func(TextChunk) bool) error
}
