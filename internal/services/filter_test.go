package services

import (
	"testing"

	"github.com/soaringjerry/Previsit/internal/models"
)

func TestFilterAndGroup(t *testing.T) {
	qs := []models.Question{
		{ID: "q1", Age: "0~3 months", Category: "Sleep"},
		{ID: "q2", Age: "4~6 months", Category: "Sleep"},
		{ID: "q3", Age: "0~3 months", Category: "Feeding"},
		{ID: "q4", Age: "0~3 months", Category: "Sleep"},
	}
	filtered := FilterByAge(qs, "0~3 months")
	if len(filtered) != 3 || filtered[0].ID != "q1" || filtered[2].ID != "q4" {
		t.Fatalf("FilterByAge = %+v", filtered)
	}
	if got := FilterByAge(qs, "7~9 months"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}

	groups := GroupByCategory(filtered)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].Category != "Feeding" || groups[1].Category != "Sleep" {
		t.Fatalf("group order = %s, %s", groups[0].Category, groups[1].Category)
	}
	if groups[1].Questions[0].ID != "q1" || groups[1].Questions[1].ID != "q4" {
		t.Fatalf("questions within group out of order: %+v", groups[1].Questions)
	}
}
