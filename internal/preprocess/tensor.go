// Package preprocess turns raw image bytes into model-ready tensors: a
// queued pipeline of resize, normalize, clamp, and CHW-layout steps built
// as a plain Go value rather than a generic handler chain. Decode and
// resize run on the standard library's image/ package directly.
package preprocess

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Tensor is a dense CHW (channel, height, width) float32 array, the layout
// every vision/diffusion model in this tree expects as input.
type Tensor struct {
	Data  []float32
	Shape []int // [channels, height, width]
}

// ResizeFilter selects the resampling kernel, mirroring the filter names
// vision models are documented against upstream.
type ResizeFilter int

const (
	// FilterNearest is fast and low quality, used for cheap previews.
	FilterNearest ResizeFilter = iota
	// FilterTriangle (bilinear) is the CLIP family's resize filter.
	FilterTriangle
)

type opKind int

const (
	opResize opKind = iota
	opNormalizeSigned
	opNormalizeUnsigned
	opNormalizeWith
	opClamp
)

type op struct {
	kind         opKind
	width        int
	height       int
	filter       ResizeFilter
	mean, std    [3]float32
	min, max     float32
}

// Builder queues image and tensor operations and executes them in order
// when ToTensor is called.
type Builder struct {
	source   []byte
	decodeErr error
	ops      []op
}

// FromBytes starts a pipeline from raw encoded image bytes (PNG/JPEG/GIF).
func FromBytes(data []byte) *Builder {
	return &Builder{source: data}
}

// FromBase64 starts a pipeline from a base64-encoded image payload.
func FromBase64(encoded string) *Builder {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return &Builder{decodeErr: fmt.Errorf("decode base64: %w", err)}
	}
	return &Builder{source: raw}
}

// Resize queues an exact-dimension resize; aspect ratio is not preserved,
// matching model input contracts that require a fixed size.
func (b *Builder) Resize(width, height int, filter ResizeFilter) *Builder {
	b.ops = append(b.ops, op{kind: opResize, width: width, height: height, filter: filter})
	return b
}

// NormalizeSigned maps pixel values from [0,255] to [-1,1], the CLIP
// convention: (x*2/255) - 1.
func (b *Builder) NormalizeSigned() *Builder {
	b.ops = append(b.ops, op{kind: opNormalizeSigned})
	return b
}

// NormalizeUnsigned maps pixel values from [0,255] to [0,1]: x/255.
func (b *Builder) NormalizeUnsigned() *Builder {
	b.ops = append(b.ops, op{kind: opNormalizeUnsigned})
	return b
}

// NormalizeWith applies (x/255 - mean) / std per channel, the
// ImageNet/LLaVA convention.
func (b *Builder) NormalizeWith(mean, std [3]float32) *Builder {
	b.ops = append(b.ops, op{kind: opNormalizeWith, mean: mean, std: std})
	return b
}

// Clamp restricts tensor values to [min, max].
func (b *Builder) Clamp(min, max float32) *Builder {
	b.ops = append(b.ops, op{kind: opClamp, min: min, max: max})
	return b
}

// ToTensor decodes the source image, runs every queued operation in order,
// and returns the resulting CHW float32 tensor.
func (b *Builder) ToTensor() (*Tensor, error) {
	if b.decodeErr != nil {
		return nil, b.decodeErr
	}
	img, _, err := image.Decode(bytes.NewReader(b.source))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	for _, o := range b.ops {
		if o.kind == opResize {
			img = resize(img, o.width, o.height, o.filter)
		}
	}

	t := toCHWFloat32(img)

	for _, o := range b.ops {
		switch o.kind {
		case opNormalizeSigned:
			t.affine(2.0/255.0, -1.0)
		case opNormalizeUnsigned:
			t.affine(1.0/255.0, 0.0)
		case opNormalizeWith:
			t.normalizeWith(o.mean, o.std)
		case opClamp:
			t.clamp(o.min, o.max)
		}
	}
	return t, nil
}

func (t *Tensor) affine(scale, shift float32) {
	for i := range t.Data {
		t.Data[i] = t.Data[i]*scale + shift
	}
}

func (t *Tensor) normalizeWith(mean, std [3]float32) {
	c, h, w := t.Shape[0], t.Shape[1], t.Shape[2]
	plane := h * w
	for ch := 0; ch < c && ch < 3; ch++ {
		base := ch * plane
		for i := 0; i < plane; i++ {
			v := t.Data[base+i]/255.0 - mean[ch]
			t.Data[base+i] = v / std[ch]
		}
	}
}

func (t *Tensor) clamp(min, max float32) {
	for i, v := range t.Data {
		if v < min {
			t.Data[i] = min
		} else if v > max {
			t.Data[i] = max
		}
	}
}

// toCHWFloat32 converts a decoded image to RGB8 and lays it out as
// channel-major float32, Candle's native vision-model input format.
func toCHWFloat32(img image.Image) *Tensor {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	plane := h * w
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bch, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*w + x
			data[idx] = float32(r >> 8)
			data[plane+idx] = float32(g >> 8)
			data[2*plane+idx] = float32(bch >> 8)
		}
	}
	return &Tensor{Data: data, Shape: []int{3, h, w}}
}
