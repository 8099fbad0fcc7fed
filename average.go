package posterize

import (
	"fmt"
	"image"
	"image/color"
	"log"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/setanarut/posterize/rag"
	"github.com/setanarut/posterize/utils"
)

type accumulator struct {
	r, g, b float64
	count   int
}

// regionMeans returns the mean RGB colour in [0,1] of every label, indexed by
// label. Labels that own no pixel, and the background label, have ok=false.
func (p *Posterizer) regionMeans(labels *rag.Labels, bg int) (means []colorful.Color, ok []bool) {
	p.prepare()
	rgbData := p.Rgb
	w := rgbData.W
	maxLabel := -1
	for _, v := range labels.Labels {
		maxLabel = max(maxLabel, v)
	}
	n := maxLabel + 1

	acc := make([]accumulator, n)
	for y := range rgbData.H {
		for x := range w {
			label := labels.Labels[labelOffset(w, x, y)]
			if label < 0 || label == bg {
				continue
			}
			off := pixOffset(w, x, y)
			acc[label].r += float64(rgbData.Pix[off]) / 255.0
			acc[label].g += float64(rgbData.Pix[off+1]) / 255.0
			acc[label].b += float64(rgbData.Pix[off+2]) / 255.0
			acc[label].count++
		}
	}

	means = make([]colorful.Color, n)
	ok = make([]bool, n)
	for i := range n {
		if acc[i].count == 0 {
			continue
		}
		c := float64(acc[i].count)
		means[i] = colorful.Color{R: acc[i].r / c, G: acc[i].g / c, B: acc[i].b / c}
		ok[i] = true
	}
	return means, ok
}

// Average paints every region with its mean colour. Background pixels are
// black when zeroBackground is set, otherwise copied from the input.
func (p *Posterizer) Average(labels *rag.Labels, bg int, zeroBackground bool) (*image.RGBA, error) {
	if err := p.checkLabels(labels); err != nil {
		return nil, err
	}
	means, ok := p.regionMeans(labels, bg)
	return p.paint(labels, means, ok, zeroBackground), nil
}

// Posterize averages regions like Average, then snaps each mean to the
// nearest colour (CIE76) of a k colour palette extracted from the averaged
// image. The palette, sorted dark to bright, is kept in p.Palette.
func (p *Posterizer) Posterize(labels *rag.Labels, bg int, zeroBackground bool, k int, method utils.PaletteMethod) (*image.RGBA, error) {
	if err := p.checkLabels(labels); err != nil {
		return nil, err
	}
	means, ok := p.regionMeans(labels, bg)
	avg := p.paint(labels, means, ok, zeroBackground)
	palette := utils.ExtractPalette(avg, k, method)
	p.Palette = palette
	if len(palette) == 0 {
		log.Println("posterize warning: empty palette, keeping region averages")
		return avg, nil
	}
	utils.SortPaletteByBrightness(palette)

	for i := range means {
		if ok[i] {
			means[i] = nearest(palette, means[i])
		}
	}
	return p.paint(labels, means, ok, zeroBackground), nil
}

// checkLabels rejects label maps that do not cover the image pixel for pixel.
func (p *Posterizer) checkLabels(labels *rag.Labels) error {
	p.prepare()
	if labels == nil {
		return rag.ErrEmptyLabels
	}
	if labels.W != p.Rgb.W || labels.H != p.Rgb.H || len(labels.Labels) != labels.W*labels.H {
		return fmt.Errorf("%w: %dx%d labels (%d values) for a %dx%d image",
			rag.ErrShapeMismatch, labels.W, labels.H, len(labels.Labels), p.Rgb.W, p.Rgb.H)
	}
	return nil
}

func nearest(palette []colorful.Color, c colorful.Color) colorful.Color {
	best := palette[0]
	bestD := c.DistanceLab(best)
	for _, pc := range palette[1:] {
		if d := c.DistanceLab(pc); d < bestD {
			best, bestD = pc, d
		}
	}
	return best
}

func (p *Posterizer) paint(labels *rag.Labels, colors []colorful.Color, ok []bool, zeroBackground bool) *image.RGBA {
	rgbData := p.Rgb
	w, h := rgbData.W, rgbData.H
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			label := labels.Labels[labelOffset(w, x, y)]
			if label >= 0 && label < len(ok) && ok[label] {
				c := colors[label]
				out.SetRGBA(x, y, color.RGBA{
					R: uint8(max(0, min(255, c.R*255))),
					G: uint8(max(0, min(255, c.G*255))),
					B: uint8(max(0, min(255, c.B*255))),
					A: 255,
				})
				continue
			}
			if zeroBackground {
				out.SetRGBA(x, y, color.RGBA{A: 255})
				continue
			}
			off := pixOffset(w, x, y)
			out.SetRGBA(x, y, color.RGBA{
				R: uint8(rgbData.Pix[off]),
				G: uint8(rgbData.Pix[off+1]),
				B: uint8(rgbData.Pix[off+2]),
				A: 255,
			})
		}
	}
	return out
}
