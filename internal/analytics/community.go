package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var communityTracer = otel.Tracer("analytics.community")

// Detector names accepted by NewCommunityDetector.
const (
	DetectorLouvain    = "louvain"
	DetectorComponents = "components"
)

// Community is a group of node ids. IDs are dense, starting at 0, ordered by size
// descending and then by the position of the first member in the graph.
type Community struct {
	ID      int      `json:"id"`
	Members []string `json:"members"`
}

// CommunityDetector partitions a graph into communities.
type CommunityDetector interface {
	Name() string
	Detect(ctx context.Context, graph *Graph) ([]Community, error)
}

// NewCommunityDetector returns the detector registered under name.
func NewCommunityDetector(name string) (CommunityDetector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DetectorLouvain:
		return NewLouvain(nil), nil
	case DetectorComponents:
		return ConnectedComponents{}, nil
	default:
		return nil, fmt.Errorf("unknown community detector %q", name)
	}
}

// Membership maps node ids to their community id.
func Membership(communities []Community) map[string]int {
	out := make(map[string]int)
	for _, community := range communities {
		for _, member := range community.Members {
			out[member] = community.ID
		}
	}
	return out
}

// ConnectedComponents labels every connected component as one community.
type ConnectedComponents struct{}

// Name implements CommunityDetector.
func (ConnectedComponents) Name() string { return DetectorComponents }

// Detect implements CommunityDetector.
func (ConnectedComponents) Detect(ctx context.Context, graph *Graph) ([]Community, error) {
	_, span := communityTracer.Start(ctx, "analytics.ConnectedComponents",
		trace.WithAttributes(attribute.Int("node_count", graph.NodeCount())))
	defer span.End()

	n := graph.NodeCount()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	next := 0
	for start := 0; start < n; start++ {
		if labels[start] >= 0 {
			continue
		}
		labels[start] = next
		queue := []int{start}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for _, neighbor := range graph.sortedNeighbors(current) {
				if labels[neighbor] < 0 {
					labels[neighbor] = next
					queue = append(queue, neighbor)
				}
			}
		}
		next++
	}
	communities := buildCommunities(graph, labels)
	span.SetAttributes(attribute.Int("communities_found", len(communities)))
	return communities, nil
}

// Louvain defaults.
const (
	DefaultLouvainLevels     = 20
	DefaultLouvainPasses     = 100
	DefaultLouvainResolution = 1.0
)

// LouvainOptions configures Louvain.
type LouvainOptions struct {
	// MaxLevels bounds the number of aggregation rounds.
	MaxLevels int
	// MaxPasses bounds local-moving sweeps per level.
	MaxPasses int
	// Resolution above 1 favours smaller communities.
	Resolution float64
}

// Validate applies defaults for invalid values.
func (o *LouvainOptions) Validate() {
	if o.MaxLevels <= 0 {
		o.MaxLevels = DefaultLouvainLevels
	}
	if o.MaxPasses <= 0 {
		o.MaxPasses = DefaultLouvainPasses
	}
	if o.Resolution <= 0 {
		o.Resolution = DefaultLouvainResolution
	}
}

// Louvain detects communities by greedy modularity optimization: nodes move to the neighbor
// community with the best modularity gain until no move helps, then communities are
// collapsed into single nodes and the process repeats.
type Louvain struct {
	opts LouvainOptions
}

// NewLouvain builds a Louvain detector. Nil options use defaults.
func NewLouvain(opts *LouvainOptions) *Louvain {
	var o LouvainOptions
	if opts != nil {
		o = *opts
	}
	o.Validate()
	return &Louvain{opts: o}
}

// Name implements CommunityDetector.
func (l *Louvain) Name() string { return DetectorLouvain }

// Detect implements CommunityDetector.
func (l *Louvain) Detect(ctx context.Context, graph *Graph) ([]Community, error) {
	ctx, span := communityTracer.Start(ctx, "analytics.Louvain",
		trace.WithAttributes(
			attribute.Int("node_count", graph.NodeCount()),
			attribute.Int("edge_count", graph.EdgeCount()),
		))
	defer span.End()

	n := graph.NodeCount()
	if n == 0 {
		span.AddEvent("empty_graph")
		return []Community{}, nil
	}

	// level adjacency: symmetric, self loops stored with twice their weight so that a node's
	// degree is the plain row sum.
	adj := make([]map[int]float64, n)
	for i := 0; i < n; i++ {
		adj[i] = make(map[int]float64, len(graph.adj[i]))
		for j, w := range graph.adj[i] {
			adj[i][j] = w
		}
	}
	membership := make([]int, n)
	for i := range membership {
		membership[i] = i
	}

	levels := 0
	for levels < l.opts.MaxLevels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		communities, moved := l.localMoving(adj)
		if !moved {
			break
		}
		levels++

		dense, count := renumber(communities)
		for i := range membership {
			membership[i] = dense[membership[i]]
		}
		adj = aggregate(adj, dense, count)
	}

	result := buildCommunities(graph, membership)
	span.SetAttributes(
		attribute.Int("levels", levels),
		attribute.Int("communities_found", len(result)),
	)
	return result, nil
}

func (l *Louvain) localMoving(adj []map[int]float64) ([]int, bool) {
	n := len(adj)
	degree := make([]float64, n)
	totalWeight := 0.0
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		neighbors[i] = make([]int, 0, len(adj[i]))
		for j, w := range adj[i] {
			degree[i] += w
			neighbors[i] = append(neighbors[i], j)
		}
		sort.Ints(neighbors[i])
		totalWeight += degree[i]
	}

	community := make([]int, n)
	communityDegree := make([]float64, n)
	for i := 0; i < n; i++ {
		community[i] = i
		communityDegree[i] = degree[i]
	}
	if totalWeight == 0 {
		return community, false
	}

	movedAny := false
	for pass := 0; pass < l.opts.MaxPasses; pass++ {
		moved := false
		for i := 0; i < n; i++ {
			current := community[i]
			communityDegree[current] -= degree[i]

			linkWeight := make(map[int]float64)
			candidates := make([]int, 0, len(neighbors[i]))
			for _, j := range neighbors[i] {
				if j == i {
					continue
				}
				c := community[j]
				if _, seen := linkWeight[c]; !seen {
					candidates = append(candidates, c)
				}
				linkWeight[c] += adj[i][j]
			}
			sort.Ints(candidates)

			gain := func(c int) float64 {
				return linkWeight[c] - l.opts.Resolution*communityDegree[c]*degree[i]/totalWeight
			}
			best := current
			bestGain := gain(current)
			for _, c := range candidates {
				if g := gain(c); g > bestGain+1e-12 {
					best, bestGain = c, g
				}
			}

			communityDegree[best] += degree[i]
			community[i] = best
			if best != current {
				moved = true
				movedAny = true
			}
		}
		if !moved {
			break
		}
	}
	return community, movedAny
}

// renumber maps community labels onto 0..k-1 in order of first appearance.
func renumber(labels []int) ([]int, int) {
	ids := make(map[int]int)
	dense := make([]int, len(labels))
	for i, label := range labels {
		id, ok := ids[label]
		if !ok {
			id = len(ids)
			ids[label] = id
		}
		dense[i] = id
	}
	return dense, len(ids)
}

func aggregate(adj []map[int]float64, community []int, count int) []map[int]float64 {
	out := make([]map[int]float64, count)
	for i := range out {
		out[i] = make(map[int]float64)
	}
	for i, row := range adj {
		for j, w := range row {
			out[community[i]][community[j]] += w
		}
	}
	return out
}

func buildCommunities(graph *Graph, labels []int) []Community {
	byLabel := make(map[int]*Community)
	order := make([]int, 0)
	for i, label := range labels {
		community, ok := byLabel[label]
		if !ok {
			community = &Community{}
			byLabel[label] = community
			order = append(order, label)
		}
		community.Members = append(community.Members, graph.ids[i])
	}

	out := make([]Community, 0, len(order))
	for _, label := range order {
		out = append(out, *byLabel[label])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Members) > len(out[j].Members)
	})
	for i := range out {
		out[i].ID = i
	}
	return out
}
