package rag_test

import (
	"math"
	"testing"

	"github.com/setanarut/posterize/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stripes returns a w×h map of one-pixel-wide vertical regions labelled
// 1..w and a deterministic strength map in [0,1).
func stripes(w, h int) (*rag.Labels, []float64) {
	labels := rag.NewLabels(w, h)
	strength := make([]float64, w*h)
	seed := uint32(7)
	for y := range h {
		for x := range w {
			labels.Set(x, y, x+1)
			seed = seed*1664525 + 1013904223
			strength[y*w+x] = float64(seed>>8) / float64(1<<24)
		}
	}
	return labels, strength
}

func weightedMean(cs int, ws float64, cd int, wd float64) float64 {
	return (float64(float64(cs)*ws) + float64(float64(cd)*wd)) / float64(cs+cd)
}

func checkerboard(t *testing.T) (*rag.Graph, *rag.Labels) {
	t.Helper()
	// 1 2
	// 3 4
	labels := &rag.Labels{W: 2, H: 2, Labels: []int{1, 2, 3, 4}}
	g := rag.NewGraph()
	require.NoError(t, g.SetEdge(1, 2, rag.Edge{Weight: 0.01, Count: 1}))
	require.NoError(t, g.SetEdge(1, 3, rag.Edge{Weight: 0.02, Count: 4}))
	require.NoError(t, g.SetEdge(2, 4, rag.Edge{Weight: 0.5, Count: 2}))
	require.NoError(t, g.SetEdge(3, 4, rag.Edge{Weight: 0.6, Count: 3}))
	return g, labels
}

func TestMergeHierarchical_Checkerboard(t *testing.T) {
	g, labels := checkerboard(t)

	var events []rag.MergeEvent
	res, err := rag.MergeHierarchical(g, labels, 0.1, rag.WithHook(func(e rag.MergeEvent) {
		events = append(events, e)
	}))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Merges)
	require.Len(t, events, 2)
	assert.Equal(t, rag.MergeEvent{Step: 1, Src: 1, Dst: 2, Edge: rag.Edge{Weight: 0.01, Count: 1}, Regions: 3}, events[0])
	assert.Equal(t, rag.MergeEvent{Step: 2, Src: 1, Dst: 3, Edge: rag.Edge{Weight: 0.02, Count: 4}, Regions: 2}, events[1])

	assert.Equal(t, []int{1, 4}, g.Regions())
	assert.Equal(t, 1, g.NumEdges())

	// After the first merge region 1 inherits 2's edge to 4 unchanged; the
	// second merge folds 3's edge to 4 into it.
	e, ok := g.Edge(1, 4)
	require.True(t, ok)
	assert.Equal(t, 5, e.Count)
	assert.Equal(t, weightedMean(2, 0.5, 3, 0.6), e.Weight)
	assert.InDelta(t, 0.56, e.Weight, 1e-12)

	assert.Equal(t, []int{1, 1, 1, 4}, res.Labels.Labels)
	assert.Equal(t, []int{1, 2, 3, 4}, labels.Labels, "input map must not change")
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1, 4: 4}, res.Remap)
}

func TestMergeHierarchical_SharedNeighbourGetsOneEdge(t *testing.T) {
	// Triangle 1-2-3 plus 4 hanging off 2.
	labels := &rag.Labels{W: 4, H: 1, Labels: []int{1, 2, 3, 4}}
	g := rag.NewGraph()
	require.NoError(t, g.SetEdge(1, 2, rag.Edge{Weight: 0.05, Count: 2}))
	require.NoError(t, g.SetEdge(1, 3, rag.Edge{Weight: 0.3, Count: 1}))
	require.NoError(t, g.SetEdge(2, 3, rag.Edge{Weight: 0.9, Count: 3}))
	require.NoError(t, g.SetEdge(2, 4, rag.Edge{Weight: 0.7, Count: 5}))

	res, err := rag.MergeHierarchical(g, labels, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Merges)
	assert.Equal(t, 3, g.NumRegions())
	assert.Equal(t, 2, g.NumEdges())
	assert.Equal(t, []int{3, 4}, g.Neighbors(1))

	e13 := g.EdgeOrDefault(1, 3)
	assert.Equal(t, 4, e13.Count)
	assert.Equal(t, weightedMean(1, 0.3, 3, 0.9), e13.Weight)

	// 4 only touched the absorbed region.
	e14 := g.EdgeOrDefault(1, 4)
	assert.Equal(t, 5, e14.Count)
	assert.InDelta(t, 0.7, e14.Weight, 1e-15)
}

func TestMergeHierarchical_EmptyGraph(t *testing.T) {
	labels := &rag.Labels{W: 2, H: 2, Labels: []int{3, 3, 3, 3}}
	g, err := rag.FromLabels(labels, []float64{1, 1, 1, 1}, rag.Conn8)
	require.NoError(t, err)

	for _, thresh := range []float64{0, 0.5, 1e9} {
		res, err := rag.MergeHierarchical(g, labels, thresh)
		require.NoError(t, err)
		assert.Zero(t, res.Merges)
		assert.Equal(t, labels.Labels, res.Labels.Labels)
		assert.Equal(t, 1, g.NumRegions())
	}
}

func TestMergeHierarchical_AlreadyAboveThreshold(t *testing.T) {
	g, labels := checkerboard(t)
	res, err := rag.MergeHierarchical(g, labels, 0.01)
	require.NoError(t, err)
	assert.Zero(t, res.Merges)
	assert.Equal(t, 4, g.NumEdges())
}

func TestMergeHierarchical_Idempotent(t *testing.T) {
	labels, strength := stripes(12, 5)
	g, err := rag.FromLabels(labels, strength, rag.Conn8)
	require.NoError(t, err)

	first, err := rag.MergeHierarchical(g, labels, 0.6)
	require.NoError(t, err)
	require.Positive(t, first.Merges)
	edges := g.Edges()

	second, err := rag.MergeHierarchical(g, first.Labels, 0.6)
	require.NoError(t, err)
	assert.Zero(t, second.Merges)
	assert.Equal(t, first.Labels.Labels, second.Labels.Labels)
	assert.Equal(t, edges, g.Edges())
}

func TestMergeHierarchical_Invariants(t *testing.T) {
	for _, conn := range []rag.Connectivity{rag.Conn4, rag.Conn8} {
		t.Run(conn.String(), func(t *testing.T) {
			labels, strength := stripes(16, 6)
			g, err := rag.FromLabels(labels, strength, conn)
			require.NoError(t, err)
			const thresh = 0.55

			prev := g.NumRegions()
			res, err := rag.MergeHierarchical(g, labels, thresh, rag.WithHook(func(e rag.MergeEvent) {
				assert.Equal(t, prev-1, e.Regions, "each merge removes exactly one region")
				assert.Less(t, e.Edge.Weight, thresh)
				prev = e.Regions
				assert.Len(t, g.Edges(), g.NumEdges(), "no duplicate edges")
			}))
			require.NoError(t, err)
			assert.Equal(t, 16-res.Merges, g.NumRegions())
			require.NoError(t, g.Validate(res.Labels))

			for _, e := range g.Edges() {
				assert.GreaterOrEqual(t, e.Weight, thresh)
			}

			// Every surviving edge must equal the mean of all initial
			// boundary contributions between the two final regions.
			rebuilt, err := rag.FromLabels(res.Labels, strength, conn)
			require.NoError(t, err)
			require.Equal(t, rebuilt.NumEdges(), g.NumEdges())
			for _, want := range rebuilt.Edges() {
				got, ok := g.Edge(want.A, want.B)
				require.True(t, ok, "edge %d-%d", want.A, want.B)
				assert.Equal(t, want.Count, got.Count)
				assert.InDelta(t, want.Weight, got.Weight, 1e-12)
			}
		})
	}
}

func TestMergeHierarchical_TieBreakLowestPair(t *testing.T) {
	labels := &rag.Labels{W: 6, H: 1, Labels: []int{5, 6, 3, 4, 1, 2}}
	build := func() *rag.Graph {
		g := rag.NewGraph()
		require.NoError(t, g.SetEdge(5, 6, rag.Edge{Weight: 0.05, Count: 1}))
		require.NoError(t, g.SetEdge(3, 4, rag.Edge{Weight: 0.05, Count: 1}))
		require.NoError(t, g.SetEdge(1, 2, rag.Edge{Weight: 0.05, Count: 1}))
		return g
	}

	var order [][2]int
	res, err := rag.MergeHierarchical(build(), labels, 0.1, rag.WithHook(func(e rag.MergeEvent) {
		order = append(order, [2]int{e.Src, e.Dst})
	}))
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 2}, {3, 4}, {5, 6}}, order)
	assert.Equal(t, []int{5, 5, 3, 3, 1, 1}, res.Labels.Labels)
}

func TestMergeHierarchical_Deterministic(t *testing.T) {
	labels, strength := stripes(20, 4)
	base, err := rag.FromLabels(labels, strength, rag.Conn8)
	require.NoError(t, err)

	run := func() (*rag.Result, []rag.EdgeRef) {
		g := base.Clone()
		res, err := rag.MergeHierarchical(g, labels, 0.6)
		require.NoError(t, err)
		return res, g.Edges()
	}
	r1, e1 := run()
	r2, e2 := run()
	assert.Equal(t, r1.Labels.Labels, r2.Labels.Labels)
	assert.Equal(t, e1, e2)
	assert.Equal(t, 20, base.NumRegions(), "clones must not share state")
}

func TestMergeHierarchical_Renumber(t *testing.T) {
	g, labels := checkerboard(t)
	res, err := rag.MergeHierarchical(g, labels, 0.1, rag.WithRenumber())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 2}, res.Labels.Labels)
}

func TestMergeHierarchical_RenumberKeepsBackground(t *testing.T) {
	labels := &rag.Labels{W: 3, H: 1, Labels: []int{0, 4, 9}}
	g := rag.NewGraph()
	require.NoError(t, g.SetEdge(0, 4, rag.Edge{Weight: 0.9, Count: 1}))
	require.NoError(t, g.SetEdge(4, 9, rag.Edge{Weight: 0.9, Count: 1}))
	res, err := rag.MergeHierarchical(g, labels, 0.1, rag.WithRenumber())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, res.Labels.Labels)
}

func TestMergeHierarchical_MaxMerges(t *testing.T) {
	g, labels := checkerboard(t)
	res, err := rag.MergeHierarchical(g, labels, 0.1, rag.WithMaxMerges(1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Merges)
	assert.Equal(t, 3, g.NumRegions())
}

func TestMergeHierarchical_OrphanLabels(t *testing.T) {
	g, _ := checkerboard(t)
	_, err := rag.MergeHierarchical(g, &rag.Labels{W: 2, H: 1, Labels: []int{1, 9}}, 0.1)
	require.ErrorIs(t, err, rag.ErrOrphanRegion)
}

func TestBoundaryStrategy_EmptyBoundary(t *testing.T) {
	g := rag.NewGraph()
	require.NoError(t, g.SetEdge(1, 2, rag.Edge{Weight: 0.1, Count: 1}))
	require.NoError(t, g.AddRegion(3))
	_, err := rag.BoundaryStrategy{}.Weight(g, 1, 2, 3)
	require.ErrorIs(t, err, rag.ErrEmptyBoundary)
}

type countingStrategy struct {
	rag.BoundaryStrategy
	before int
	pairs  [][2]int
}

func (s *countingStrategy) BeforeMerge(g *rag.Graph, src, dst int) {
	s.before++
	s.pairs = append(s.pairs, [2]int{src, dst})
}

func TestMergeHierarchical_CustomStrategy(t *testing.T) {
	g, labels := checkerboard(t)
	s := &countingStrategy{}
	res, err := rag.MergeHierarchical(g, labels, 0.1, rag.WithStrategy(s))
	require.NoError(t, err)
	assert.Equal(t, res.Merges, s.before)
	assert.Equal(t, [][2]int{{1, 2}, {1, 3}}, s.pairs)
}

type zeroStrategy struct{ rag.BoundaryStrategy }

func (zeroStrategy) Weight(*rag.Graph, int, int, int) (rag.Edge, error) {
	return rag.Edge{}, nil
}

func TestMergeHierarchical_StrategyMustKeepCount(t *testing.T) {
	g, labels := checkerboard(t)
	_, err := rag.MergeHierarchical(g, labels, 0.1, rag.WithStrategy(zeroStrategy{}))
	require.ErrorIs(t, err, rag.ErrEmptyEdge)
}

func TestMergeHierarchical_Thresholds(t *testing.T) {
	cases := []struct {
		name   string
		thresh float64
		merges int
		err    error
	}{
		{"NegativeInf", math.Inf(-1), 0, nil},
		{"Zero", 0, 0, nil},
		{"BetweenWeights", 0.55, 2, nil},
		{"PositiveInf", math.Inf(1), 3, nil},
		{"NaN", math.NaN(), 0, rag.ErrInvalidThreshold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, labels := checkerboard(t)
			res, err := rag.MergeHierarchical(g, labels, tc.thresh)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				assert.Equal(t, 4, g.NumRegions(), "graph untouched on error")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.merges, res.Merges)
			assert.Equal(t, 4-tc.merges, g.NumRegions())
		})
	}
}

type nanStrategy struct{ rag.BoundaryStrategy }

func (nanStrategy) Weight(*rag.Graph, int, int, int) (rag.Edge, error) {
	return rag.Edge{Weight: math.NaN(), Count: 1}, nil
}

func TestMergeHierarchical_StrategyNaNWeight(t *testing.T) {
	g, labels := checkerboard(t)
	_, err := rag.MergeHierarchical(g, labels, 0.1, rag.WithStrategy(nanStrategy{}))
	require.ErrorIs(t, err, rag.ErrInvalidStrength)
}

func BenchmarkMergeHierarchical(b *testing.B) {
	labels, strength := stripes(400, 8)
	base, err := rag.FromLabels(labels, strength, rag.Conn8)
	if err != nil {
		b.Fatal(err)
	}
	for b.Loop() {
		if _, err := rag.MergeHierarchical(base.Clone(), labels, 0.5); err != nil {
			b.Fatal(err)
		}
	}
}
