package services

import (
	"sort"

	"github.com/soaringjerry/Previsit/internal/models"
)

// CategoryGroup is one category tab of the rendered form.
type CategoryGroup struct {
	Category  string            `json:"category"`
	Questions []models.Question `json:"questions"`
}

// FilterByAge keeps the questions of one age bracket in pack order.
func FilterByAge(questions []models.Question, label string) []models.Question {
	out := make([]models.Question, 0)
	for _, q := range questions {
		if q.Age == label {
			out = append(out, q)
		}
	}
	return out
}

// GroupByCategory groups questions by category. Groups are sorted by category
// name; questions keep their relative order inside each group.
func GroupByCategory(questions []models.Question) []CategoryGroup {
	idx := map[string]int{}
	groups := make([]CategoryGroup, 0)
	for _, q := range questions {
		i, ok := idx[q.Category]
		if !ok {
			i = len(groups)
			idx[q.Category] = i
			groups = append(groups, CategoryGroup{Category: q.Category})
		}
		groups[i].Questions = append(groups[i].Questions, q)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Category < groups[j].Category })
	return groups
}
