// Package tensor holds the flat channel-first image tensors passed between
// the codec, the encoder and the denoiser.
package tensor

import "fmt"

// Image is a C×H×W float32 tensor in channel-first layout. Values are
// normalized; the codec decides the exact range.
type Image struct {
	Data []float32
	C    int
	H    int
	W    int
}

func NewImage(c, h, w int) *Image {
	return &Image{
		Data: make([]float32, c*h*w),
		C:    c,
		H:    h,
		W:    w,
	}
}

func (t *Image) index(c, y, x int) int {
	return (c*t.H+y)*t.W + x
}

func (t *Image) At(c, y, x int) float32 {
	return t.Data[t.index(c, y, x)]
}

func (t *Image) Set(c, y, x int, v float32) {
	t.Data[t.index(c, y, x)] = v
}

func (t *Image) Elems() int {
	return t.C * t.H * t.W
}

func (t *Image) SameShape(other *Image) bool {
	return t.C == other.C && t.H == other.H && t.W == other.W
}

func (t *Image) Clone() *Image {
	clone := &Image{
		Data: make([]float32, len(t.Data)),
		C:    t.C,
		H:    t.H,
		W:    t.W,
	}
	copy(clone.Data, t.Data)
	return clone
}

func (t *Image) Shape() []int64 {
	return []int64{1, int64(t.C), int64(t.H), int64(t.W)}
}

func (t *Image) String() string {
	return fmt.Sprintf("tensor.Image[%dx%dx%d]", t.C, t.H, t.W)
}
