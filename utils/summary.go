package utils

import (
	"fmt"

	"github.com/carbocation/runningvariance"
	"github.com/montanaflynn/stats"
	"github.com/setanarut/posterize/rag"
)

// Summary describes a merged segmentation.
type Summary struct {
	Regions    int
	Edges      int
	Merges     int
	WeightMean float64 // mean remaining boundary weight
	WeightStd  float64
	WeightMin  float64
	SizeMedian float64 // region size in pixels
	SizeMax    float64
}

func Summarize(g *rag.Graph, labels *rag.Labels, merges int) Summary {
	s := Summary{
		Regions: g.NumRegions(),
		Edges:   g.NumEdges(),
		Merges:  merges,
	}

	rs := runningvariance.NewRunningStat()
	for i, e := range g.Edges() {
		rs.Push(e.Weight)
		if i == 0 || e.Weight < s.WeightMin {
			s.WeightMin = e.Weight
		}
	}
	if s.Edges > 0 {
		s.WeightMean = rs.Mean()
		s.WeightStd = rs.StandardDeviation()
	}

	sizes := labels.Sizes()
	data := make(stats.Float64Data, 0, len(sizes))
	for _, n := range sizes {
		data = append(data, float64(n))
	}
	if med, err := data.Median(); err == nil {
		s.SizeMedian = med
	}
	if mx, err := data.Max(); err == nil {
		s.SizeMax = mx
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("regions=%d edges=%d merges=%d weight(mean=%.4f std=%.4f min=%.4f) size(median=%.0f max=%.0f)",
		s.Regions, s.Edges, s.Merges, s.WeightMean, s.WeightStd, s.WeightMin, s.SizeMedian, s.SizeMax)
}
