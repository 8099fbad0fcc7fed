// Package rag builds region adjacency graphs from label maps and collapses
// them by hierarchical merging of the weakest boundary.
//
// Regions live in an arena indexed by their label. Merging never removes a
// record from the arena; the absorbed region is only marked invalid, so a
// label keeps pointing at the same slot for the lifetime of a Graph.
package rag

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

type region struct {
	valid bool
	adj   map[int]Edge
}

// Graph is an undirected region adjacency graph. The zero value is not
// usable; call NewGraph.
type Graph struct {
	regions []region
	live    int
	edges   int
}

func NewGraph() *Graph {
	return &Graph{}
}

func (g *Graph) grow(id int) {
	if id < len(g.regions) {
		return
	}
	g.regions = append(g.regions, make([]region, id+1-len(g.regions))...)
}

// AddRegion adds an isolated region. Adding an existing region is a no-op.
func (g *Graph) AddRegion(id int) error {
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLabel, id)
	}
	g.grow(id)
	r := &g.regions[id]
	if r.valid {
		return nil
	}
	r.valid = true
	r.adj = make(map[int]Edge)
	g.live++
	return nil
}

func (g *Graph) HasRegion(id int) bool {
	return id >= 0 && id < len(g.regions) && g.regions[id].valid
}

// SetEdge creates or replaces the edge between a and b, adding either region
// if it is missing.
func (g *Graph) SetEdge(a, b int, e Edge) error {
	if a == b {
		return fmt.Errorf("%w: %d", ErrSelfEdge, a)
	}
	if e.Count <= 0 {
		return fmt.Errorf("%w: %d-%d has count %d", ErrEmptyEdge, a, b, e.Count)
	}
	if math.IsNaN(e.Weight) {
		return fmt.Errorf("%w: %d-%d has weight NaN", ErrInvalidStrength, a, b)
	}
	if err := g.AddRegion(a); err != nil {
		return err
	}
	if err := g.AddRegion(b); err != nil {
		return err
	}
	if _, ok := g.regions[a].adj[b]; !ok {
		g.edges++
	}
	g.regions[a].adj[b] = e
	g.regions[b].adj[a] = e
	return nil
}

// RemoveEdge deletes the edge between a and b if present.
func (g *Graph) RemoveEdge(a, b int) {
	if !g.HasRegion(a) || !g.HasRegion(b) {
		return
	}
	if _, ok := g.regions[a].adj[b]; !ok {
		return
	}
	delete(g.regions[a].adj, b)
	delete(g.regions[b].adj, a)
	g.edges--
}

// Edge looks up the edge between a and b.
func (g *Graph) Edge(a, b int) (Edge, bool) {
	if !g.HasRegion(a) {
		return Edge{}, false
	}
	e, ok := g.regions[a].adj[b]
	return e, ok
}

// EdgeOrDefault returns the edge between a and b, or Edge{Weight: 0, Count: 0}
// when the regions are not adjacent.
func (g *Graph) EdgeOrDefault(a, b int) Edge {
	e, _ := g.Edge(a, b)
	return e
}

// Neighbors returns the regions adjacent to id in ascending order.
func (g *Graph) Neighbors(id int) []int {
	if !g.HasRegion(id) {
		return nil
	}
	return slices.Sorted(maps.Keys(g.regions[id].adj))
}

func (g *Graph) Degree(id int) int {
	if !g.HasRegion(id) {
		return 0
	}
	return len(g.regions[id].adj)
}

// Regions returns the live region ids in ascending order.
func (g *Graph) Regions() []int {
	out := make([]int, 0, g.live)
	for id := range g.regions {
		if g.regions[id].valid {
			out = append(out, id)
		}
	}
	return out
}

func (g *Graph) NumRegions() int { return g.live }

func (g *Graph) NumEdges() int { return g.edges }

// EdgeRef names an edge by its endpoints, A < B.
type EdgeRef struct {
	A, B int
	Edge
}

// Edges returns every edge once, ordered by (A, B).
func (g *Graph) Edges() []EdgeRef {
	out := make([]EdgeRef, 0, g.edges)
	for a := range g.regions {
		if !g.regions[a].valid {
			continue
		}
		for _, b := range g.Neighbors(a) {
			if b > a {
				out = append(out, EdgeRef{A: a, B: b, Edge: g.regions[a].adj[b]})
			}
		}
	}
	return out
}

// removeRegion invalidates id and drops all of its edges. The arena slot is kept.
func (g *Graph) removeRegion(id int) {
	if !g.HasRegion(id) {
		return
	}
	for n := range g.regions[id].adj {
		delete(g.regions[n].adj, id)
		g.edges--
	}
	g.regions[id] = region{}
	g.live--
}

// Clone returns a deep copy that shares no state with g.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		regions: make([]region, len(g.regions)),
		live:    g.live,
		edges:   g.edges,
	}
	for id, r := range g.regions {
		if !r.valid {
			continue
		}
		out.regions[id] = region{valid: true, adj: maps.Clone(r.adj)}
	}
	return out
}

// Validate checks that labels and g describe the same set of regions.
func (g *Graph) Validate(labels *Labels) error {
	if err := labels.validate(); err != nil {
		return err
	}
	present := labels.Unique()
	for _, id := range present {
		if !g.HasRegion(id) {
			return fmt.Errorf("%w: label %d has no node", ErrOrphanRegion, id)
		}
	}
	if len(present) != g.live {
		return fmt.Errorf("%w: %d labels in map, %d nodes in graph", ErrOrphanRegion, len(present), g.live)
	}
	return nil
}
