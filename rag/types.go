package rag

import (
	"errors"
	"fmt"
	"slices"
)

// Background is the label excluded from region averaging.
const Background = 0

var (
	ErrSelfEdge      = errors.New("rag: a region cannot be adjacent to itself")
	ErrNegativeLabel = errors.New("rag: region labels must be non-negative")
	ErrEmptyEdge     = errors.New("rag: edge count must be positive")
	ErrShapeMismatch = errors.New("rag: label map and strength map differ in size")
	ErrEmptyLabels   = errors.New("rag: label map has no pixels")
	ErrUnknownRegion = errors.New("rag: region not present in graph")
	ErrOrphanRegion  = errors.New("rag: label map and graph disagree on regions")
	// ErrEmptyBoundary is returned when a merge would produce an edge with
	// no boundary pixel pairs behind it.
	ErrEmptyBoundary = errors.New("rag: merged edge has zero boundary count")
)

var (
	// ErrInvalidStrength rejects NaN, infinite or negative edge strength and
	// NaN edge weights.
	ErrInvalidStrength  = errors.New("rag: edge strength must be finite and non-negative")
	ErrInvalidThreshold = errors.New("rag: merge threshold is NaN")
)

// Connectivity selects which pixel neighbours share a boundary.
type Connectivity int

const (
	// Conn4 uses N, E, S, W neighbours.
	Conn4 Connectivity = iota
	// Conn8 also includes the diagonals.
	Conn8
)

func (c Connectivity) String() string {
	if c == Conn4 {
		return "conn4"
	}
	return "conn8"
}

// forwardOffsets visits every unordered neighbour pair exactly once in a raster scan.
func (c Connectivity) forwardOffsets() [][2]int {
	if c == Conn4 {
		return [][2]int{{1, 0}, {0, 1}}
	}
	return [][2]int{{1, 0}, {-1, 1}, {0, 1}, {1, 1}}
}

// Edge holds the boundary weight between two regions and the number of
// boundary pixel pairs it was averaged over.
type Edge struct {
	Weight float64
	Count  int
}

// Labels is a row-major label map, len(Labels) == W*H.
type Labels struct {
	W, H   int
	Labels []int
}

func NewLabels(w, h int) *Labels {
	return &Labels{W: w, H: h, Labels: make([]int, w*h)}
}

func (l *Labels) At(x, y int) int {
	return l.Labels[y*l.W+x]
}

func (l *Labels) Set(x, y, label int) {
	l.Labels[y*l.W+x] = label
}

func (l *Labels) Clone() *Labels {
	return &Labels{W: l.W, H: l.H, Labels: slices.Clone(l.Labels)}
}

// Unique returns the distinct labels in ascending order.
func (l *Labels) Unique() []int {
	seen := make(map[int]struct{})
	for _, v := range l.Labels {
		seen[v] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Sizes returns the pixel count of every label.
func (l *Labels) Sizes() map[int]int {
	out := make(map[int]int)
	for _, v := range l.Labels {
		out[v]++
	}
	return out
}

func (l *Labels) validate() error {
	if l == nil || l.W <= 0 || l.H <= 0 || len(l.Labels) == 0 {
		return ErrEmptyLabels
	}
	if len(l.Labels) != l.W*l.H {
		return fmt.Errorf("%w: %dx%d map holds %d labels", ErrShapeMismatch, l.W, l.H, len(l.Labels))
	}
	for i, v := range l.Labels {
		if v < 0 {
			return fmt.Errorf("%w: pixel (%d,%d) has label %d", ErrNegativeLabel, i%l.W, i/l.W, v)
		}
	}
	return nil
}
