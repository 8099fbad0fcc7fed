package rag

import (
	"fmt"
	"math"
)

type pairKey struct{ a, b int }

func orderedPair(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

type boundaryAcc struct {
	sum   float64
	count int
}

// FromLabels builds the boundary RAG of a label map. strength holds one
// edge-strength value per pixel in the same row-major order as labels.
//
// Every pair of neighbouring pixels (p, q) lying in different regions is
// visited once and contributes (strength[p]+strength[q])/2 to the edge between
// their regions. The edge weight is the plain mean of its contributions,
// summed in raster order so the result does not depend on map iteration.
// Every label in the map gets a node, even when it touches no other region.
func FromLabels(labels *Labels, strength []float64, conn Connectivity) (*Graph, error) {
	if err := labels.validate(); err != nil {
		return nil, err
	}
	if len(strength) != len(labels.Labels) {
		return nil, fmt.Errorf("%w: %d labels, %d strength values", ErrShapeMismatch, len(labels.Labels), len(strength))
	}
	for i, s := range strength {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return nil, fmt.Errorf("%w: pixel (%d,%d) has %g", ErrInvalidStrength, i%labels.W, i/labels.W, s)
		}
	}

	w, h := labels.W, labels.H
	offsets := conn.forwardOffsets()
	acc := make(map[pairKey]*boundaryAcc)
	var order []pairKey

	g := NewGraph()
	for y := range h {
		for x := range w {
			i := y*w + x
			a := labels.Labels[i]
			if err := g.AddRegion(a); err != nil {
				return nil, err
			}
			for _, d := range offsets {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				b := labels.Labels[j]
				if a == b {
					continue
				}
				k := orderedPair(a, b)
				ba, ok := acc[k]
				if !ok {
					ba = &boundaryAcc{}
					acc[k] = ba
					order = append(order, k)
				}
				ba.sum += (strength[i] + strength[j]) / 2
				ba.count++
			}
		}
	}

	for _, k := range order {
		ba := acc[k]
		if err := g.SetEdge(k.a, k.b, Edge{Weight: ba.sum / float64(ba.count), Count: ba.count}); err != nil {
			return nil, err
		}
	}
	return g, nil
}
