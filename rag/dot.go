package rag

import (
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

type dotNode int64

func (n dotNode) ID() int64 { return int64(n) }

func (n dotNode) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "label", Value: strconv.FormatInt(int64(n), 10)}}
}

type dotEdge struct {
	from, to dotNode
	e        Edge
}

func (d dotEdge) From() graph.Node         { return d.from }
func (d dotEdge) To() graph.Node           { return d.to }
func (d dotEdge) Weight() float64          { return d.e.Weight }
func (d dotEdge) ReversedEdge() graph.Edge { return dotEdge{from: d.to, to: d.from, e: d.e} }

func (d dotEdge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "weight", Value: strconv.FormatFloat(d.e.Weight, 'g', 6, 64)},
		{Key: "count", Value: strconv.Itoa(d.e.Count)},
	}
}

// WriteDOT writes g in Graphviz DOT form, one node per live region.
func WriteDOT(w io.Writer, g *Graph, name string) error {
	wg := simple.NewWeightedUndirectedGraph(0, 0)
	for _, id := range g.Regions() {
		wg.AddNode(dotNode(id))
	}
	for _, e := range g.Edges() {
		wg.SetWeightedEdge(dotEdge{from: dotNode(e.A), to: dotNode(e.B), e: e.Edge})
	}
	b, err := dot.Marshal(wg, name, "", "\t")
	if err != nil {
		return fmt.Errorf("rag: encoding dot: %w", err)
	}
	_, err = w.Write(b)
	return err
}
