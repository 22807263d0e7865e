package services

import (
	"reflect"
	"testing"

	"github.com/soaringjerry/Previsit/internal/models"
)

func TestMatchAgeGroup(t *testing.T) {
	labels := []string{"14~35 days", "0~3 months", "4~6 Months"}
	cases := []struct {
		days int
		want int
	}{
		{20, 0},  // days bracket
		{10, 1},  // 0 months
		{100, 1}, // 3 months
		{150, 2}, // 5 months, case insensitive
		{400, 0}, // 13 months, default
	}
	for _, c := range cases {
		if got := MatchAgeGroup(c.days, labels); got != c.want {
			t.Fatalf("MatchAgeGroup(%d) = %d, want %d", c.days, got, c.want)
		}
	}
	if got := MatchAgeGroup(50, nil); got != 0 {
		t.Fatalf("empty labels = %d, want 0", got)
	}
}

func TestSortAgeGroups(t *testing.T) {
	got := SortAgeGroups([]string{"4~6 months", "14~35 days", "0~3 months", "school age"})
	want := []string{"0~3 months", "14~35 days", "4~6 months", "school age"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SortAgeGroups = %v, want %v", got, want)
	}
	if AgeSortKey("school age") != unknownAgeKey {
		t.Fatalf("unknown label key = %d", AgeSortKey("school age"))
	}
	if AgeSortKey("4 ~ 6 months") != 120 {
		t.Fatalf("spaced label key = %d", AgeSortKey("4 ~ 6 months"))
	}
}

func TestAgeGroupsDistinctAndOrdered(t *testing.T) {
	pack := &models.SurveyPack{Questions: []models.Question{
		{ID: "a", Age: "4~6 months"},
		{ID: "b", Age: "0~3 months"},
		{ID: "c", Age: "4~6 months"},
		{ID: "d", Age: "14~35 days"},
	}}
	got := AgeGroups(pack)
	want := []string{"0~3 months", "14~35 days", "4~6 months"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("AgeGroups = %v, want %v", got, want)
	}
}
