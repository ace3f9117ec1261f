package analytics

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-kg/internal/models"
)

// MistakeSimilarityThreshold is the minimum criteria overlap for two mistakes to be linked.
const MistakeSimilarityThreshold = 0.3

type weightedPair struct {
	to     int
	weight float64
}

// BuildMistakeGraph links every pair of mistakes whose rubric criteria Jaccard similarity
// exceeds MistakeSimilarityThreshold. The comparison is quadratic in len(mistakes), so callers
// scope it per course. Rows are compared concurrently on up to workers goroutines
// (GOMAXPROCS when workers <= 0).
func BuildMistakeGraph(ctx context.Context, mistakes []models.Mistake, workers int) (*Graph, error) {
	graph := NewGraph()
	for _, mistake := range mistakes {
		graph.AddNode(mistake.ID)
	}
	if len(mistakes) < 2 {
		return graph, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	criteria := make([]map[string]struct{}, len(mistakes))
	for i, mistake := range mistakes {
		criteria[i] = toSet(mistake.RubricCriteriaNames)
	}

	rows := make([][]weightedPair, len(mistakes))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i := 0; i < len(mistakes)-1; i++ {
		i := i
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			var pairs []weightedPair
			for j := i + 1; j < len(mistakes); j++ {
				weight := setJaccard(criteria[i], criteria[j])
				if weight > MistakeSimilarityThreshold {
					pairs = append(pairs, weightedPair{to: j, weight: weight})
				}
			}
			rows[i] = pairs
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for i, pairs := range rows {
		for _, pair := range pairs {
			graph.AddEdge(mistakes[i].ID, mistakes[pair.to].ID, pair.weight)
		}
	}
	return graph, nil
}

func setJaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for v := range a {
		if _, ok := b[v]; ok {
			intersection++
		}
	}
	return float64(intersection) / float64(len(a)+len(b)-intersection)
}
