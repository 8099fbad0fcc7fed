package posterize

import (
	"image"
	"math"

	"github.com/disintegration/gift"
)

// Normalised Sobel kernels. Each sums absolute weights to 2 along the
// derivative axis, so a full black to white step yields magnitude 1.
var (
	sobelH = []float32{
		0.25, 0.5, 0.25,
		0, 0, 0,
		-0.25, -0.5, -0.25,
	}
	sobelV = []float32{
		0.25, 0, -0.25,
		0.5, 0, -0.5,
		0.25, 0, -0.25,
	}
)

// computeEdgeStrength fills p.Strength with the per-pixel Sobel magnitude
// sqrt((h²+v²)/2) of the grayscale image, in [0,1].
func (p *Posterizer) computeEdgeStrength() {
	p.Strength = sobelMagnitude(p.InputImage)
}

func sobelMagnitude(src image.Image) []float64 {
	h := sobelResponse(src, sobelH)
	v := sobelResponse(src, sobelV)
	b := h.Bounds()
	w, ht := b.Dx(), b.Dy()
	out := make([]float64, w*ht)
	for y := range ht {
		for x := range w {
			hv := float64(h.Gray16At(b.Min.X+x, b.Min.Y+y).Y) / 65535.0
			vv := float64(v.Gray16At(b.Min.X+x, b.Min.Y+y).Y) / 65535.0
			out[labelOffset(w, x, y)] = min(math.Sqrt((hv*hv+vv*vv)/2), 1)
		}
	}
	return out
}

// sobelResponse returns |kernel * gray(src)|. Borders replicate edge pixels.
func sobelResponse(src image.Image, kernel []float32) *image.Gray16 {
	g := gift.New(
		gift.Grayscale(),
		gift.Convolution(kernel, false, false, true, 0),
	)
	dst := image.NewGray16(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}
