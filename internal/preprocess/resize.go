package preprocess

import (
	"image"
	"image/color"
)

// resize rescales img to exactly width x height using either nearest
// neighbor or bilinear interpolation, matching the two filters the
// pipeline actually needs (fast preview vs. CLIP-style smooth resize).
func resize(img image.Image, width, height int, filter ResizeFilter) image.Image {
	switch filter {
	case FilterNearest:
		return resizeNearest(img, width, height)
	default:
		return resizeBilinear(img, width, height)
	}
}

func resizeNearest(img image.Image, width, height int) image.Image {
	src := img.Bounds()
	sw, sh := src.Dx(), src.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		sy := src.Min.Y + y*sh/height
		for x := 0; x < width; x++ {
			sx := src.Min.X + x*sw/width
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}

func resizeBilinear(img image.Image, width, height int) image.Image {
	src := img.Bounds()
	sw, sh := src.Dx(), src.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	xScale := float64(sw) / float64(width)
	yScale := float64(sh) / float64(height)

	for y := 0; y < height; y++ {
		sy := (float64(y)+0.5)*yScale - 0.5
		y0 := clampInt(int(sy), 0, sh-1)
		y1 := clampInt(y0+1, 0, sh-1)
		fy := sy - float64(y0)
		if fy < 0 {
			fy = 0
		}

		for x := 0; x < width; x++ {
			sx := (float64(x)+0.5)*xScale - 0.5
			x0 := clampInt(int(sx), 0, sw-1)
			x1 := clampInt(x0+1, 0, sw-1)
			fx := sx - float64(x0)
			if fx < 0 {
				fx = 0
			}

			c00 := img.At(src.Min.X+x0, src.Min.Y+y0)
			c10 := img.At(src.Min.X+x1, src.Min.Y+y0)
			c01 := img.At(src.Min.X+x0, src.Min.Y+y1)
			c11 := img.At(src.Min.X+x1, src.Min.Y+y1)

			dst.Set(x, y, blend(c00, c10, c01, c11, fx, fy))
		}
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func blend(c00, c10, c01, c11 color.Color, fx, fy float64) color.Color {
	r00, g00, b00, a00 := c00.RGBA()
	r10, g10, b10, a10 := c10.RGBA()
	r01, g01, b01, a01 := c01.RGBA()
	r11, g11, b11, a11 := c11.RGBA()

	lerp := func(a, b uint32, f float64) float64 {
		return float64(a) + (float64(b)-float64(a))*f
	}
	top := func(a, b uint32) float64 { return lerp(a, b, fx) }

	r := lerp(uint32(top(r00, r10)), uint32(top(r01, r11)), fy)
	g := lerp(uint32(top(g00, g10)), uint32(top(g01, g11)), fy)
	b := lerp(uint32(top(b00, b10)), uint32(top(b01, b11)), fy)
	a := lerp(uint32(top(a00, a10)), uint32(top(a01, a11)), fy)

	return color16{uint16(r), uint16(g), uint16(b), uint16(a)}
}

// color16 implements image/color.Color directly over already-16-bit
// premultiplied channel values, avoiding a second conversion round trip.
type color16 struct {
	r, g, b, a uint16
}

func (c color16) RGBA() (r, g, b, a uint32) {
	return uint32(c.r), uint32(c.g), uint32(c.b), uint32(c.a)
}
