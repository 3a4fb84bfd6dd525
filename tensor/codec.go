package tensor

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Per-channel statistics the conditioning encoder was trained with.
var (
	ImageNetDefaultMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetDefaultSTD  = [3]float32{0.229, 0.224, 0.225}
)

// Normalization standardizes each channel as (v - Mean) / Std after
// rescaling to [0, 1].
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// Resize scales img to newSize. CatmullRom is used when shrinking and
// BiLinear when growing; both are deterministic for a fixed input.
func Resize(img image.Image, newSize image.Point) image.Image {
	if img.Bounds().Dx() == newSize.X && img.Bounds().Dy() == newSize.Y {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, newSize.X, newSize.Y))

	kernel := draw.Interpolator(draw.BiLinear)
	if newSize.X < img.Bounds().Dx() || newSize.Y < img.Bounds().Dy() {
		kernel = draw.CatmullRom
	}

	kernel.Scale(dst, dst.Rect, img, img.Bounds(), draw.Over, nil)

	return dst
}

// FromImage resamples img to w×h and returns it as a channel-first tensor.
// With a nil norm, values are in [0, 1]; otherwise each channel is
// standardized with the supplied mean and std.
func FromImage(img image.Image, w, h int, norm *Normalization) *Image {
	img = Resize(img, image.Point{w, h})

	t := NewImage(3, h, w)
	bounds := img.Bounds()
	for y := range h {
		for x := range w {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rVal := float32(r>>8) / 255.0
			gVal := float32(g>>8) / 255.0
			bVal := float32(b>>8) / 255.0

			if norm != nil {
				rVal = (rVal - norm.Mean[0]) / norm.Std[0]
				gVal = (gVal - norm.Mean[1]) / norm.Std[1]
				bVal = (bVal - norm.Mean[2]) / norm.Std[2]
			}

			t.Set(0, y, x, rVal)
			t.Set(1, y, x, gVal)
			t.Set(2, y, x, bVal)
		}
	}

	return t
}

// ToImage converts the tensor back to an 8-bit RGBA image. Every component
// is clamped to [0, 1] before scaling; out-of-range values are never an
// error here.
func (t *Image) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, t.W, t.H))
	pix := img.Pix
	for y := range t.H {
		for x := range t.W {
			offset := (y*t.W + x) * 4
			pix[offset] = quantize(t.At(0, y, x))
			pix[offset+1] = quantize(t.At(1, y, x))
			pix[offset+2] = quantize(t.At(2, y, x))
			pix[offset+3] = 255
		}
	}
	return img
}

func quantize(v float32) uint8 {
	clamped := math.Min(math.Max(float64(v), 0), 1)
	return uint8(clamped*255 + 0.5)
}

// FitWithin computes the aspect-preserving working size for a w×h image
// bounded by bound on its longer edge. Dimensions are snapped down to a
// multiple of 8 to satisfy the denoiser, never below 8. A bound of zero or
// less leaves the size unbounded.
func FitWithin(w, h, bound int) (int, int) {
	scale := 1.0
	if longer := max(w, h); bound > 0 && longer > bound {
		scale = float64(bound) / float64(longer)
	}

	snap := func(v int) int {
		v = v / 8 * 8
		if v < 8 {
			v = 8
		}
		return v
	}

	return snap(int(math.Round(float64(w) * scale))), snap(int(math.Round(float64(h) * scale)))
}
