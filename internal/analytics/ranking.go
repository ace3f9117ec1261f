package analytics

import (
	"sort"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
)

// CriterionRank is a rubric criterion with the number of mistakes pointing at it.
type CriterionRank struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ConnectionCount int    `json:"connectionCount"`
}

// RankCriteria counts inbound affectsCriteria edges per criterion and returns the top n,
// highest count first. Ties are ordered by name and then id. n <= 0 returns every criterion.
func RankCriteria(criteria []models.RubricCriterion, edges []graphstore.Edge, n int) []CriterionRank {
	counts := make(map[string]int, len(criteria))
	for _, edge := range edges {
		counts[edge.To]++
	}

	ranked := make([]CriterionRank, 0, len(criteria))
	for _, criterion := range criteria {
		ranked = append(ranked, CriterionRank{
			ID:              criterion.ID,
			Name:            criterion.Name,
			Description:     criterion.Description,
			ConnectionCount: counts[criterion.ID],
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ConnectionCount != ranked[j].ConnectionCount {
			return ranked[i].ConnectionCount > ranked[j].ConnectionCount
		}
		if ranked[i].Name != ranked[j].Name {
			return ranked[i].Name < ranked[j].Name
		}
		return ranked[i].ID < ranked[j].ID
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
