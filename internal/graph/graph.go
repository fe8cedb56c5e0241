// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package graph computes dominance over small, densely-numbered directed
// graphs: the dominator and post-dominator trees internal/locality needs to
// classify allocations (spec.md §4.2), and the pre-/post-order utilities the
// dominance computation numbers nodes with. It is adapted from obj/internal/graph in this repository's teacher
// (github.com/aclements/go-misc), which used the same dominance code to
// place SSA phi nodes; here it backs a transform pipeline's locality
// analysis instead, and gains a post-dominator constructor the original
// never needed.
package graph

// Graph represents a directed graph. The nodes of the graph must be
// densely numbered starting at 0.
type Graph interface {
	// NumNodes returns the number of nodes in this graph.
	NumNodes() int

	// Out returns the nodes to which node i points.
	Out(i int) []int
}

// BiGraph extends Graph to graphs that also expose in-edges, which the
// dominance algorithms need.
type BiGraph interface {
	Graph

	// In returns the nodes which point to node i.
	In(i int) []int
}

// MakeBiGraph constructs a BiGraph from what may be a unidirectional Graph.
// If g is already a BiGraph, this returns g unchanged.
func MakeBiGraph(g Graph) BiGraph {
	if g, ok := g.(BiGraph); ok {
		return g
	}

	preds := make([][]int, g.NumNodes())
	for i := range preds {
		for _, j := range g.Out(i) {
			preds[j] = append(preds[j], i)
		}
	}

	return &bigraph{g, preds}
}

type bigraph struct {
	Graph
	preds [][]int
}

func (b *bigraph) In(i int) []int {
	return b.preds[i]
}

// IntGraph is a basic Graph g where g[i] is the list of out-edge indexes of
// node i.
type IntGraph [][]int

func (g IntGraph) NumNodes() int {
	return len(g)
}

func (g IntGraph) Out(i int) []int {
	return g[i]
}
