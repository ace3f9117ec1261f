// Package analytics holds the in-memory graph algorithms run over the knowledge graph:
// similarity, PageRank, community detection, degree ranking and cluster statistics.
package analytics

import "sort"

// Graph is an undirected weighted graph. Node order is insertion order, which keeps every
// algorithm in this package deterministic.
type Graph struct {
	ids   []string
	index map[string]int
	adj   []map[int]float64
	edges int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode inserts a node if it is not present yet.
func (g *Graph) AddNode(id string) {
	if _, ok := g.index[id]; ok {
		return
	}
	g.index[id] = len(g.ids)
	g.ids = append(g.ids, id)
	g.adj = append(g.adj, make(map[int]float64))
}

// AddEdge connects a and b, adding both nodes when needed. Repeated edges accumulate weight.
// Self loops and non-positive weights are ignored.
func (g *Graph) AddEdge(a, b string, weight float64) {
	if a == b || weight <= 0 {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	i, j := g.index[a], g.index[b]
	if _, ok := g.adj[i][j]; !ok {
		g.edges++
	}
	g.adj[i][j] += weight
	g.adj[j][i] += weight
}

// Nodes returns node ids in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.ids...)
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	if g == nil {
		return 0
	}
	return len(g.ids)
}

// EdgeCount returns the number of distinct undirected edges.
func (g *Graph) EdgeCount() int {
	if g == nil {
		return 0
	}
	return g.edges
}

// HasNode reports whether id is part of the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Weight returns the weight of the edge between a and b, or 0.
func (g *Graph) Weight(a, b string) float64 {
	i, ok := g.index[a]
	if !ok {
		return 0
	}
	j, ok := g.index[b]
	if !ok {
		return 0
	}
	return g.adj[i][j]
}

// Neighbors returns the neighbors of id ordered by node insertion order.
func (g *Graph) Neighbors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.adj[i]))
	for _, j := range g.sortedNeighbors(i) {
		out = append(out, g.ids[j])
	}
	return out
}

// Strength returns the weighted degree of id.
func (g *Graph) Strength(id string) float64 {
	i, ok := g.index[id]
	if !ok {
		return 0
	}
	return g.strength(i)
}

func (g *Graph) strength(i int) float64 {
	total := 0.0
	for _, w := range g.adj[i] {
		total += w
	}
	return total
}

func (g *Graph) sortedNeighbors(i int) []int {
	out := make([]int, 0, len(g.adj[i]))
	for j := range g.adj[i] {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}
