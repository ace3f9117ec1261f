package analytics

import (
	"sort"

	"github.com/noah-isme/gema-kg/internal/models"
)

// topCriteriaPerCluster is how many criteria names a cluster summary lists.
const topCriteriaPerCluster = 3

// ClusterStats summarises one community of mistakes.
type ClusterStats struct {
	ClusterID    int      `json:"clusterId"`
	Size         int      `json:"size"`
	AverageScore float64  `json:"averageScore"`
	TopCriteria  []string `json:"topCriteria"`
	MistakeIDs   []string `json:"mistakeIds"`
}

// ClusterStatistics computes size, average scoreAwarded and the most frequent criteria of
// each community. Members missing from mistakes are ignored.
func ClusterStatistics(communities []Community, mistakes []models.Mistake) []ClusterStats {
	byID := make(map[string]models.Mistake, len(mistakes))
	for _, mistake := range mistakes {
		byID[mistake.ID] = mistake
	}

	out := make([]ClusterStats, 0, len(communities))
	for _, community := range communities {
		stats := ClusterStats{ClusterID: community.ID, TopCriteria: []string{}, MistakeIDs: []string{}}
		total := 0.0
		frequency := make(map[string]int)
		for _, member := range community.Members {
			mistake, ok := byID[member]
			if !ok {
				continue
			}
			stats.Size++
			stats.MistakeIDs = append(stats.MistakeIDs, member)
			total += mistake.ScoreAwarded
			for _, name := range mistake.RubricCriteriaNames {
				frequency[name]++
			}
		}
		if stats.Size > 0 {
			stats.AverageScore = total / float64(stats.Size)
		}
		stats.TopCriteria = topNames(frequency, topCriteriaPerCluster)
		out = append(out, stats)
	}
	return out
}

func topNames(frequency map[string]int, n int) []string {
	names := make([]string, 0, len(frequency))
	for name := range frequency {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if frequency[names[i]] != frequency[names[j]] {
			return frequency[names[i]] > frequency[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}
