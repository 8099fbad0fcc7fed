package rag

import (
	"container/heap"
	"fmt"
	"math"
	"slices"
)

// Strategy controls how two regions are merged. BeforeMerge is called just
// before src absorbs dst; Weight computes the edge between the merged region
// and a neighbour n of src, dst or both, while both old edges still exist.
type Strategy interface {
	BeforeMerge(g *Graph, src, dst int)
	Weight(g *Graph, src, dst, n int) (Edge, error)
}

// BoundaryStrategy merges boundary edges by their count-weighted mean:
//
//	c = c_src + c_dst
//	w = (c_src*w_src + c_dst*w_dst) / c
//
// A side with no edge to n contributes (0, 0).
type BoundaryStrategy struct{}

func (BoundaryStrategy) BeforeMerge(*Graph, int, int) {}

func (BoundaryStrategy) Weight(g *Graph, src, dst, n int) (Edge, error) {
	es := g.EdgeOrDefault(src, n)
	ed := g.EdgeOrDefault(dst, n)
	c := es.Count + ed.Count
	if c == 0 {
		return Edge{}, fmt.Errorf("%w: merging %d and %d towards %d", ErrEmptyBoundary, src, dst, n)
	}
	// Conversions keep each product rounded so the result is reproducible across
	// architectures that would otherwise fuse the multiply-add.
	w := (float64(float64(es.Count)*es.Weight) + float64(float64(ed.Count)*ed.Weight)) / float64(c)
	return Edge{Weight: w, Count: c}, nil
}

// MergeEvent describes a completed merge.
type MergeEvent struct {
	Step     int // 1-based
	Src, Dst int // Dst was absorbed into Src
	Edge     Edge
	Regions  int // regions left after the merge
}

type Options struct {
	Strategy Strategy
	// Hook, if set, observes every merge after it is applied.
	Hook func(MergeEvent)
	// Renumber relabels surviving regions 1..n in ascending id order.
	// Background keeps label 0.
	Renumber bool
	// MaxMerges stops the loop early when > 0.
	MaxMerges int
}

type Option func(*Options)

func DefaultOptions() Options {
	return Options{Strategy: BoundaryStrategy{}}
}

func WithStrategy(s Strategy) Option {
	return func(o *Options) { o.Strategy = s }
}

func WithHook(fn func(MergeEvent)) Option {
	return func(o *Options) { o.Hook = fn }
}

func WithRenumber() Option {
	return func(o *Options) { o.Renumber = true }
}

func WithMaxMerges(n int) Option {
	return func(o *Options) { o.MaxMerges = n }
}

// Result is the outcome of MergeHierarchical.
type Result struct {
	Labels *Labels
	Merges int
	// Remap maps every label of the input map to its final label.
	Remap map[int]int
}

// MergeHierarchical repeatedly merges the two regions joined by the lowest
// weight edge until no edge weighs less than thresh. Equal weights are
// resolved by the lowest (A, B) region pair, and the lower id survives.
//
// g is modified in place; labels is not. The returned map carries the final
// region of every pixel. A graph without edges is returned untouched.
func MergeHierarchical(g *Graph, labels *Labels, thresh float64, opts ...Option) (*Result, error) {
	cfg := DefaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Strategy == nil {
		cfg.Strategy = BoundaryStrategy{}
	}
	if math.IsNaN(thresh) {
		return nil, ErrInvalidThreshold
	}
	if err := g.Validate(labels); err != nil {
		return nil, err
	}

	m := &merger{
		g:       g,
		opts:    cfg,
		live:    make(map[pairKey]*queueEntry, g.NumEdges()),
		members: make([][]int, len(g.regions)),
	}
	for _, id := range g.Regions() {
		m.members[id] = []int{id}
	}
	for _, e := range g.Edges() {
		m.push(e.A, e.B, e.Edge)
	}

	if err := m.run(thresh); err != nil {
		return nil, err
	}
	return m.result(labels), nil
}

type merger struct {
	g       *Graph
	opts    Options
	pq      edgeQueue
	live    map[pairKey]*queueEntry
	members [][]int // labels owned by each live region
	merges  int
}

func (m *merger) push(a, b int, e Edge) {
	k := orderedPair(a, b)
	if old, ok := m.live[k]; ok {
		old.valid = false
	}
	ent := &queueEntry{weight: e.Weight, a: k.a, b: k.b, valid: true}
	heap.Push(&m.pq, ent)
	m.live[k] = ent
}

func (m *merger) drop(a, b int) {
	k := orderedPair(a, b)
	if old, ok := m.live[k]; ok {
		old.valid = false
		delete(m.live, k)
	}
}

func (m *merger) run(thresh float64) error {
	for m.pq.Len() > 0 {
		if m.opts.MaxMerges > 0 && m.merges >= m.opts.MaxMerges {
			return nil
		}
		top := m.pq[0]
		if !top.valid {
			heap.Pop(&m.pq)
			continue
		}
		// NaN weights never satisfy the merge condition.
		if !(top.weight < thresh) {
			return nil
		}
		heap.Pop(&m.pq)
		if err := m.merge(top.a, top.b); err != nil {
			return err
		}
	}
	return nil
}

func (m *merger) merge(src, dst int) error {
	g := m.g
	if !g.HasRegion(src) || !g.HasRegion(dst) {
		return fmt.Errorf("%w: merging %d and %d", ErrUnknownRegion, src, dst)
	}
	joined := g.EdgeOrDefault(src, dst)
	m.opts.Strategy.BeforeMerge(g, src, dst)

	var neighbors []int
	for _, n := range g.Neighbors(src) {
		if n != dst {
			neighbors = append(neighbors, n)
		}
	}
	for _, n := range g.Neighbors(dst) {
		if n != src {
			neighbors = append(neighbors, n)
		}
	}
	slices.Sort(neighbors)
	neighbors = slices.Compact(neighbors)

	// All weights are computed before the graph changes.
	updated := make([]Edge, len(neighbors))
	for i, n := range neighbors {
		e, err := m.opts.Strategy.Weight(g, src, dst, n)
		if err != nil {
			return err
		}
		updated[i] = e
	}

	m.drop(src, dst)
	for _, n := range g.Neighbors(dst) {
		m.drop(dst, n)
	}
	g.removeRegion(dst)
	for i, n := range neighbors {
		if err := g.SetEdge(src, n, updated[i]); err != nil {
			return fmt.Errorf("merging %d into %d: %w", dst, src, err)
		}
		m.push(src, n, updated[i])
	}

	m.members[src] = append(m.members[src], m.members[dst]...)
	m.members[dst] = nil
	m.merges++

	if m.opts.Hook != nil {
		m.opts.Hook(MergeEvent{
			Step:    m.merges,
			Src:     src,
			Dst:     dst,
			Edge:    joined,
			Regions: g.NumRegions(),
		})
	}
	return nil
}

func (m *merger) result(labels *Labels) *Result {
	survivors := m.g.Regions()
	final := make(map[int]int, len(survivors))
	next := 1
	for _, id := range survivors {
		switch {
		case !m.opts.Renumber:
			final[id] = id
		case id == Background:
			final[id] = Background
		default:
			final[id] = next
			next++
		}
	}

	remap := make(map[int]int)
	for _, id := range survivors {
		for _, l := range m.members[id] {
			remap[l] = final[id]
		}
	}

	out := labels.Clone()
	for i, v := range out.Labels {
		out.Labels[i] = remap[v]
	}
	return &Result{Labels: out, Merges: m.merges, Remap: remap}
}

// queueEntry is a candidate merge. Entries are never removed from the middle
// of the heap; replacing an edge marks its old entry invalid instead.
type queueEntry struct {
	weight float64
	a, b   int
	valid  bool
}

type edgeQueue []*queueEntry

func (q edgeQueue) Len() int { return len(q) }

func (q edgeQueue) Less(i, j int) bool {
	if q[i].weight != q[j].weight {
		return q[i].weight < q[j].weight
	}
	if q[i].a != q[j].a {
		return q[i].a < q[j].a
	}
	return q[i].b < q[j].b
}

func (q edgeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *edgeQueue) Push(x any) { *q = append(*q, x.(*queueEntry)) }

func (q *edgeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
