package preprocess

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func solidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestToTensorProducesCHWShape(t *testing.T) {
	raw := solidPNG(t, 8, 4, color.RGBA{R: 255, G: 0, B: 0, A: 255})

	tensor, err := FromBytes(raw).ToTensor()
	if err != nil {
		t.Fatalf("ToTensor: %v", err)
	}
	if len(tensor.Shape) != 3 || tensor.Shape[0] != 3 || tensor.Shape[1] != 4 || tensor.Shape[2] != 8 {
		t.Fatalf("Shape = %v, want [3 4 8]", tensor.Shape)
	}
	if len(tensor.Data) != 3*4*8 {
		t.Fatalf("len(Data) = %d, want %d", len(tensor.Data), 3*4*8)
	}
	// red channel should be ~255, green/blue ~0 for every pixel
	plane := 4 * 8
	if tensor.Data[0] < 250 {
		t.Errorf("red channel = %v, want ~255", tensor.Data[0])
	}
	if tensor.Data[plane] > 5 {
		t.Errorf("green channel = %v, want ~0", tensor.Data[plane])
	}
}

func TestResizeProducesRequestedDimensions(t *testing.T) {
	raw := solidPNG(t, 16, 16, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	tensor, err := FromBytes(raw).Resize(4, 4, FilterTriangle).ToTensor()
	if err != nil {
		t.Fatalf("ToTensor: %v", err)
	}
	if tensor.Shape[1] != 4 || tensor.Shape[2] != 4 {
		t.Fatalf("Shape = %v, want height/width 4/4", tensor.Shape)
	}
}

func TestNormalizeSignedMapsToRange(t *testing.T) {
	raw := solidPNG(t, 2, 2, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	tensor, err := FromBytes(raw).NormalizeSigned().ToTensor()
	if err != nil {
		t.Fatalf("ToTensor: %v", err)
	}
	for _, v := range tensor.Data {
		if math.Abs(float64(v)-1.0) > 1e-3 {
			t.Errorf("value = %v, want ~1.0 for white pixel after signed normalize", v)
		}
	}
}

func TestClampRestrictsRange(t *testing.T) {
	raw := solidPNG(t, 2, 2, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	tensor, err := FromBytes(raw).NormalizeSigned().Clamp(-0.5, 0.5).ToTensor()
	if err != nil {
		t.Fatalf("ToTensor: %v", err)
	}
	for _, v := range tensor.Data {
		if v > 0.5 || v < -0.5 {
			t.Errorf("value = %v, want within [-0.5, 0.5]", v)
		}
	}
}

func TestFromBase64DecodesThenDecodesImage(t *testing.T) {
	raw := solidPNG(t, 2, 2, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	encoded := base64.StdEncoding.EncodeToString(raw)

	tensor, err := FromBase64(encoded).ToTensor()
	if err != nil {
		t.Fatalf("ToTensor: %v", err)
	}
	if tensor.Shape[1] != 2 || tensor.Shape[2] != 2 {
		t.Fatalf("Shape = %v, want 2x2", tensor.Shape)
	}
}

func TestFromBase64InvalidReturnsError(t *testing.T) {
	if _, err := FromBase64("not-valid-base64!!!").ToTensor(); err == nil {
		t.Error("expected error for invalid base64 input")
	}
}
