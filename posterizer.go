package posterize

import (
	"fmt"
	"image"
	"log"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/setanarut/posterize/rag"
	"github.com/setanarut/posterize/utils"
)

type Options struct {
	// SLIC colour/space trade-off. Higher values give squarer superpixels.
	// Ideal start: 10-40.
	Compactness float64
	// Target number of SLIC superpixels.
	// Image-size dependent: ~area/(30^2) is a reasonable start.
	Segments int
	// Regions are merged while the weakest boundary weighs less than Thresh.
	// Boundary weights are Sobel magnitudes in [0,1]; 0.01-0.1 is the useful range.
	Thresh float64
	// SLIC k-means iterations.
	Iterations int
	// Pixel neighbourhood used when building the adjacency graph.
	Connectivity rag.Connectivity
	// Label excluded from averaging.
	Background int
	// Paint background pixels black instead of passing them through.
	ZeroBackground bool
	// When > 0 the averaged regions are snapped to a palette of this size.
	PaletteSize   int
	PaletteMethod utils.PaletteMethod
}

func DefaultOptions() Options {
	return Options{
		Compactness:    30,
		Segments:       400,
		Thresh:         0.08,
		Iterations:     10,
		Connectivity:   rag.Conn8,
		Background:     rag.Background,
		ZeroBackground: true,
		PaletteMethod:  utils.PaletteMethodDominantColor,
	}
}

func OptionsFromSize(size image.Point) Options {
	if size.X <= 0 || size.Y <= 0 {
		return DefaultOptions()
	}
	pixels := size.X * size.Y
	targetStep := 30.0
	if pixels <= 512*512 {
		targetStep = 24.0
	} else if pixels > 1920*1080 {
		targetStep = 40.0
	}
	nsp := int(float64(pixels) / (targetStep * targetStep))
	nsp = max(100, min(2000, nsp))

	opt := DefaultOptions()
	opt.Segments = nsp
	return opt
}

// Posterizer holds one image and the superpixel graph derived from it.
// Segment may be called repeatedly with different options; Merge always
// works on a private copy of the current graph.
type Posterizer struct {
	InputImage image.Image
	Rgb        planes    // RGB in [0,255]
	Lab        planes    // L*a*b*, L in [0,100]
	Strength   []float64 // Sobel magnitude in [0,1], len = W*H
	Clusters   *rag.Labels
	Graph      *rag.Graph
	Palette    []colorful.Color // set by Posterize
}

// Merged is the outcome of one hierarchical merge.
type Merged struct {
	Labels *rag.Labels
	Graph  *rag.Graph
	Merges int
}

func NewPosterizer(input image.Image) *Posterizer {
	return &Posterizer{InputImage: input}
}

// Segment computes SLIC superpixels (labels start at 1) and their boundary RAG.
func (p *Posterizer) Segment(opt Options) error {
	if b := p.InputImage.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("posterize: empty image")
	}
	p.prepare()
	p.slic(opt.Segments, opt.Compactness, opt.Iterations)

	g, err := rag.FromLabels(p.Clusters, p.Strength, opt.Connectivity)
	if err != nil {
		return fmt.Errorf("posterize: building graph: %w", err)
	}
	p.Graph = g
	log.Printf("segment: compactness=%g segments=%d -> %d regions, %d edges",
		opt.Compactness, opt.Segments, g.NumRegions(), g.NumEdges())
	return nil
}

// Merge runs hierarchical merging on a copy of the segmented graph.
func (p *Posterizer) Merge(thresh float64, opts ...rag.Option) (*Merged, error) {
	if p.Graph == nil || p.Clusters == nil {
		return nil, fmt.Errorf("posterize: Merge called before Segment")
	}
	g := p.Graph.Clone()
	res, err := rag.MergeHierarchical(g, p.Clusters, thresh, opts...)
	if err != nil {
		return nil, err
	}
	return &Merged{Labels: res.Labels, Graph: g, Merges: res.Merges}, nil
}

// Build runs the whole pipeline for a single configuration.
func (p *Posterizer) Build(opt Options, mergeOpts ...rag.Option) (*image.RGBA, *Merged, error) {
	if err := p.Segment(opt); err != nil {
		return nil, nil, err
	}
	m, err := p.Merge(opt.Thresh, mergeOpts...)
	if err != nil {
		return nil, nil, err
	}
	var out *image.RGBA
	if opt.PaletteSize > 0 {
		out, err = p.Posterize(m.Labels, opt.Background, opt.ZeroBackground, opt.PaletteSize, opt.PaletteMethod)
	} else {
		out, err = p.Average(m.Labels, opt.Background, opt.ZeroBackground)
	}
	if err != nil {
		return nil, nil, err
	}
	return out, m, nil
}

// prepare converts the input once; Segment may run many times per image.
func (p *Posterizer) prepare() {
	if p.Rgb.Pix != nil {
		return
	}
	p.decode()
	p.computeEdgeStrength()
}

// planes is an interleaved three-channel float32 image, len(Pix) = W*H*3.
type planes struct {
	W, H int
	Pix  []float32
}

func newPlanes(w, h int) planes {
	return planes{W: w, H: h, Pix: make([]float32, w*h*3)}
}

func pixOffset(w, x, y int) int {
	return (y*w + x) * 3
}

func labelOffset(w, x, y int) int {
	return y*w + x
}

// ============ RGB + LAB ============

// decode fills Rgb with 8-bit channel values and Lab with CIE L*a*b* on the
// conventional scale (L in [0,100]), so SLIC can weigh colour distance
// against compactness directly.
func (p *Posterizer) decode() {
	bounds := p.InputImage.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	p.Rgb = newPlanes(w, h)
	p.Lab = newPlanes(w, h)
	for y := range h {
		for x := range w {
			r, g, b, _ := p.InputImage.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r8, g8, b8 := r>>8, g>>8, b>>8
			off := pixOffset(w, x, y)
			p.Rgb.Pix[off] = float32(r8)
			p.Rgb.Pix[off+1] = float32(g8)
			p.Rgb.Pix[off+2] = float32(b8)

			l, a, bb := colorful.Color{
				R: float64(r8) / 255.0,
				G: float64(g8) / 255.0,
				B: float64(b8) / 255.0,
			}.Lab()
			p.Lab.Pix[off] = float32(l * 100)
			p.Lab.Pix[off+1] = float32(a * 100)
			p.Lab.Pix[off+2] = float32(bb * 100)
		}
	}
}

// ============ SLIC ============

// slic clusters pixels in Lab+xy space with distance
// sqrt((dc/compactness)² + (ds/step)²).
func (p *Posterizer) slic(numSuperpixels int, compactness float64, iterations int) {
	lab := p.Lab
	h := lab.H
	w := lab.W
	if numSuperpixels <= 0 {
		numSuperpixels = 1
	}
	if compactness <= 0 {
		compactness = 1
	}
	if iterations <= 0 {
		iterations = 10
	}
	step := max(int(math.Sqrt(float64(h*w)/float64(numSuperpixels))), 1)
	nc := compactness
	ns := float64(step)

	clusters := make([]int, h*w)
	distances := make([]float64, h*w)
	for i := range clusters {
		clusters[i] = -1
		distances[i] = math.MaxFloat64
	}

	type Center struct{ l, a, b, cx, cy float64 }
	var centers []Center
	for cy := step / 2; cy < h; cy += step {
		for cx := step / 2; cx < w; cx += step {
			minGrad := math.MaxFloat64
			lx, ly := cx, cy
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := cx+dx, cy+dy
					if nx < 0 || nx >= w-1 || ny < 0 || ny >= h-1 {
						continue
					}
					i1 := float64(lab.Pix[pixOffset(w, nx, ny+1)])
					i2 := float64(lab.Pix[pixOffset(w, nx+1, ny)])
					i3 := float64(lab.Pix[pixOffset(w, nx, ny)])
					grad := math.Abs(i1-i3) + math.Abs(i2-i3)
					if grad < minGrad {
						minGrad = grad
						lx, ly = nx, ny
					}
				}
			}
			off := pixOffset(w, lx, ly)
			centers = append(centers, Center{
				float64(lab.Pix[off]), float64(lab.Pix[off+1]), float64(lab.Pix[off+2]),
				float64(lx), float64(ly),
			})
		}
	}
	if len(centers) == 0 {
		cx, cy := w/2, h/2
		off := pixOffset(w, cx, cy)
		centers = append(centers, Center{
			float64(lab.Pix[off]), float64(lab.Pix[off+1]), float64(lab.Pix[off+2]),
			float64(cx), float64(cy),
		})
	}

	for range iterations {
		for i := range distances {
			distances[i] = math.MaxFloat64
		}
		for ci, c := range centers {
			x0, x1 := max(int(c.cx)-step, 0), min(int(c.cx)+step, w)
			y0, y1 := max(int(c.cy)-step, 0), min(int(c.cy)+step, h)
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					labOff := pixOffset(w, x, y)
					dL := float64(lab.Pix[labOff]) - c.l
					dA := float64(lab.Pix[labOff+1]) - c.a
					dB := float64(lab.Pix[labOff+2]) - c.b
					dx := float64(x) - c.cx
					dy := float64(y) - c.cy
					dc := math.Sqrt(dL*dL + dA*dA + dB*dB)
					ds := math.Sqrt(dx*dx + dy*dy)
					d := math.Sqrt((dc/nc)*(dc/nc) + (ds/ns)*(ds/ns))
					pIdx := labelOffset(w, x, y)
					if d < distances[pIdx] {
						distances[pIdx] = d
						clusters[pIdx] = ci
					}
				}
			}
		}
		type Acc struct {
			l, a, b, sx, sy float64
			n               int
		}
		acc := make([]Acc, len(centers))
		for y := range h {
			for x := range w {
				pIdx := labelOffset(w, x, y)
				ci := clusters[pIdx]
				if ci >= 0 {
					labOff := pixOffset(w, x, y)
					acc[ci].l += float64(lab.Pix[labOff])
					acc[ci].a += float64(lab.Pix[labOff+1])
					acc[ci].b += float64(lab.Pix[labOff+2])
					acc[ci].sx += float64(x)
					acc[ci].sy += float64(y)
					acc[ci].n++
				}
			}
		}
		for ci := range centers {
			if acc[ci].n > 0 {
				n := float64(acc[ci].n)
				centers[ci] = Center{acc[ci].l / n, acc[ci].a / n, acc[ci].b / n, acc[ci].sx / n, acc[ci].sy / n}
			}
		}
	}

	// Connectivity enforcement. Fragments smaller than a quarter of the
	// expected superpixel area join the previously labelled neighbour.
	lims := max((h*w)/len(centers), 1)
	dx4 := []int{-1, 0, 1, 0}
	dy4 := []int{0, -1, 0, 1}
	newClusters := make([]int, h*w)
	for i := range newClusters {
		newClusters[i] = -1
	}
	label := 0
	for y := range h {
		for x := range w {
			start := labelOffset(w, x, y)
			if newClusters[start] != -1 {
				continue
			}

			elems := make([]int, 1, 64)
			elems[0] = start
			newClusters[start] = label
			adjLabel := -1
			for k := range 4 {
				nx, ny := x+dx4[k], y+dy4[k]
				if nx >= 0 && nx < w && ny >= 0 && ny < h {
					nIdx := labelOffset(w, nx, ny)
					if newClusters[nIdx] >= 0 && newClusters[nIdx] != label {
						adjLabel = newClusters[nIdx]
						break
					}
				}
			}
			for c := 0; c < len(elems); c++ {
				cur := elems[c]
				cx := cur % w
				cy := cur / w
				for k := range 4 {
					nx, ny := cx+dx4[k], cy+dy4[k]
					if nx >= 0 && nx < w && ny >= 0 && ny < h {
						nIdx := labelOffset(w, nx, ny)
						if newClusters[nIdx] == -1 && clusters[cur] == clusters[nIdx] {
							newClusters[nIdx] = label
							elems = append(elems, nIdx)
						}
					}
				}
			}
			if adjLabel >= 0 && len(elems) <= lims>>2 {
				for _, e := range elems {
					newClusters[e] = adjLabel
				}
				continue
			}
			label++
		}
	}

	for i := range newClusters {
		newClusters[i]++
	}
	p.Clusters = &rag.Labels{
		W:      w,
		H:      h,
		Labels: newClusters,
	}
}
