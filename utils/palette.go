package utils

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"slices"
	"strings"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

type PaletteMethod int

const (
	PaletteMethodDominantColor PaletteMethod = iota
	PaletteMethodKMeans
)

func (m PaletteMethod) String() string {
	switch m {
	case PaletteMethodKMeans:
		return "kmeans"
	default:
		return "dominantcolor"
	}
}

func ParsePaletteMethod(s string) (PaletteMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dominantcolor", "dominant":
		return PaletteMethodDominantColor, nil
	case "kmeans":
		return PaletteMethodKMeans, nil
	}
	return 0, fmt.Errorf("unknown palette method %q", s)
}

// maxKMeansSamples bounds the number of pixels handed to k-means.
const maxKMeansSamples = 12000

type weightedColor struct {
	Col    colorful.Color
	Weight float64
}

// SortPaletteByBrightness orders colors from darkest to brightest by
// relative luminance.
func SortPaletteByBrightness(palette []colorful.Color) {
	luminance := func(c colorful.Color) float64 {
		r, g, b := c.LinearRgb()
		return 0.2126*r + 0.7152*g + 0.0722*b
	}
	slices.SortStableFunc(palette, func(a, b colorful.Color) int {
		ya, yb := luminance(a), luminance(b)
		switch {
		case ya < yb:
			return -1
		case ya > yb:
			return 1
		}
		return 0
	})
}

func ExtractPalette(img image.Image, k int, method PaletteMethod) []colorful.Color {
	if method == PaletteMethodKMeans {
		if p := ExtractKMeansPalette(img, k); len(p) != 0 {
			return p
		}
		log.Println("palette warning: kmeans returned empty palette, falling back to dominantcolor")
	}
	return ExtractDominantPalette(img, k)
}

func ExtractDominantPalette(img image.Image, k int) []colorful.Color {
	if k <= 0 {
		return nil
	}
	found := dominantcolor.FindWeight(img, max(24, k*8))
	if len(found) == 0 {
		found = []dominantcolor.Color{{RGBA: color.RGBA{R: 128, G: 128, B: 128, A: 255}, Weight: 1}}
	}
	cands := make([]weightedColor, len(found))
	for i, c := range found {
		col, _ := colorful.MakeColor(c.RGBA)
		cands[i] = weightedColor{Col: col, Weight: c.Weight}
	}
	return selectDiverse(cands, k)
}

func ExtractKMeansPalette(img image.Image, k int) []colorful.Color {
	if k <= 0 {
		return nil
	}
	obs := sampleObservations(img, maxKMeansSamples)
	if len(obs) == 0 {
		return nil
	}
	cc, err := kmeans.New().Partition(obs, min(max(k*4, k+2), len(obs)))
	if err != nil || len(cc) == 0 {
		return nil
	}

	cands := make([]weightedColor, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 || len(c.Observations) == 0 {
			continue
		}
		cands = append(cands, weightedColor{
			Col:    colorful.Color{R: c.Center[0], G: c.Center[1], B: c.Center[2]},
			Weight: float64(len(c.Observations)),
		})
	}
	return selectDiverse(cands, k)
}

// sampleObservations returns opaque pixels as RGB coordinates in [0,1],
// sampling on a regular grid when the image holds more than limit pixels.
func sampleObservations(img image.Image, limit int) clusters.Observations {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return nil
	}
	step := 1
	if n > limit {
		step = int(math.Sqrt(float64(n)/float64(limit))) + 1
	}
	obs := make(clusters.Observations, 0, min(n, limit))
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			obs = append(obs, clusters.Coordinates{
				float64(r) / 65535.0,
				float64(g) / 65535.0,
				float64(bl) / 65535.0,
			})
		}
	}
	return obs
}

// selectDiverse greedily picks k candidates: the heaviest first, then the
// one maximising Lab distance to the picked set scaled by its weight.
func selectDiverse(cands []weightedColor, k int) []colorful.Color {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	k = min(k, len(cands))
	maxW := 0.0
	for i := range cands {
		cands[i].Col = cands[i].Col.Clamped()
		cands[i].Weight = max(cands[i].Weight, 1e-6)
		maxW = max(maxW, cands[i].Weight)
	}

	picked := make([]bool, len(cands))
	seed := 0
	for i, c := range cands {
		if c.Weight > cands[seed].Weight {
			seed = i
		}
	}
	picked[seed] = true
	out := []colorful.Color{cands[seed].Col}

	for len(out) < k {
		best, bestScore := -1, -1.0
		for i, c := range cands {
			if picked[i] {
				continue
			}
			minD := math.MaxFloat64
			for _, p := range out {
				minD = min(minD, c.Col.DistanceLab(p))
			}
			score := minD * (0.55 + 0.45*math.Sqrt(c.Weight/maxW))
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		picked[best] = true
		out = append(out, cands[best].Col)
	}
	return out
}
