package analytics

import (
	"context"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
)

var pageRankTracer = otel.Tracer("analytics.pagerank")

// PageRank defaults.
const (
	DefaultDampingFactor = 0.85
	DefaultMaxIterations = 100
	DefaultConvergence   = 1e-6
)

// PageRankOptions configures PageRank.
type PageRankOptions struct {
	// DampingFactor must be in [0, 1].
	DampingFactor float64
	MaxIterations int
	Convergence   float64
}

// Validate replaces out-of-range values with defaults.
func (o *PageRankOptions) Validate() {
	if o.DampingFactor < 0 || o.DampingFactor > 1 {
		o.DampingFactor = DefaultDampingFactor
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Convergence <= 0 {
		o.Convergence = DefaultConvergence
	}
}

// DefaultPageRankOptions returns the standard configuration.
func DefaultPageRankOptions() *PageRankOptions {
	return &PageRankOptions{
		DampingFactor: DefaultDampingFactor,
		MaxIterations: DefaultMaxIterations,
		Convergence:   DefaultConvergence,
	}
}

// PageRankResult holds the scores of every node. Scores sum to 1.
type PageRankResult struct {
	Scores     map[string]float64
	Iterations int
	Converged  bool
	MaxDiff    float64
}

// PageRank runs weighted power iteration over the undirected graph. A node spreads its score
// to neighbors in proportion to edge weight; nodes without edges redistribute theirs evenly,
// so a graph of isolated nodes ends with 1/n everywhere.
func PageRank(ctx context.Context, graph *Graph, opts *PageRankOptions) *PageRankResult {
	ctx, span := pageRankTracer.Start(ctx, "analytics.PageRank",
		trace.WithAttributes(
			attribute.Int("node_count", graph.NodeCount()),
			attribute.Int("edge_count", graph.EdgeCount()),
		),
	)
	defer span.End()

	n := graph.NodeCount()
	if n == 0 {
		span.AddEvent("empty_graph")
		return &PageRankResult{Scores: map[string]float64{}, Converged: true}
	}

	if opts == nil {
		opts = DefaultPageRankOptions()
	} else {
		opts.Validate()
	}
	d := opts.DampingFactor
	size := float64(n)

	strength := make([]float64, n)
	neighbors := make([][]int, n)
	sinks := make([]int, 0)
	for i := 0; i < n; i++ {
		strength[i] = graph.strength(i)
		neighbors[i] = graph.sortedNeighbors(i)
		if strength[i] == 0 {
			sinks = append(sinks, i)
		}
	}

	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1 / size
	}

	var (
		iterations int
		converged  bool
		maxDiff    float64
	)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if ctx.Err() != nil {
			span.AddEvent("cancelled", trace.WithAttributes(attribute.Int("iterations_completed", iter)))
			break
		}

		sinkMass := 0.0
		for _, i := range sinks {
			sinkMass += scores[i]
		}
		base := (1-d)/size + d*sinkMass/size
		for i := range next {
			next[i] = base
		}
		for i := 0; i < n; i++ {
			if strength[i] == 0 {
				continue
			}
			share := d * scores[i] / strength[i]
			for _, j := range neighbors[i] {
				next[j] += share * graph.adj[i][j]
			}
		}

		maxDiff = 0
		for i := range next {
			if diff := math.Abs(next[i] - scores[i]); diff > maxDiff {
				maxDiff = diff
			}
		}
		scores, next = next, scores
		iterations = iter + 1
		if maxDiff < opts.Convergence {
			converged = true
			break
		}
	}

	result := &PageRankResult{
		Scores:     make(map[string]float64, n),
		Iterations: iterations,
		Converged:  converged,
		MaxDiff:    maxDiff,
	}
	for i, id := range graph.ids {
		result.Scores[id] = scores[i]
	}

	span.SetAttributes(
		attribute.Int("iterations", iterations),
		attribute.Bool("converged", converged),
		attribute.Float64("max_diff", maxDiff),
	)
	return result
}

// DefaultRelatedToWeight is used for relatedTo edges without a strength when ranking sections.
const DefaultRelatedToWeight = 1.0

// SectionGraph builds the undirected Mistake–Section graph PageRank runs on. sectionIDs are
// added first so sections without any relatedTo edge still receive a score.
func SectionGraph(sectionIDs []string, relatedTo []graphstore.Edge) *Graph {
	graph := NewGraph()
	for _, id := range sectionIDs {
		graph.AddNode(id)
	}
	for _, edge := range relatedTo {
		graph.AddNode(edge.From)
		graph.AddNode(edge.To)
		graph.AddEdge(edge.From, edge.To, models.EdgeStrength(edge.Attrs, DefaultRelatedToWeight))
	}
	return graph
}
