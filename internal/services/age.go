package services

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/soaringjerry/Previsit/internal/models"
)

var (
	monthsBracket = regexp.MustCompile(`(\d+)\s*~\s*(\d+)\s*months`)
	daysBracket   = regexp.MustCompile(`(\d+)\s*~\s*(\d+)\s*days`)
	leadingNumber = regexp.MustCompile(`^(\d+)`)
)

// unknownAgeKey places labels that follow neither pattern after every real bracket.
const unknownAgeKey = 9999

// MatchAgeGroup returns the index of the first label whose range contains the
// age. "N~M months" labels compare days/30, "N~M days" labels compare days.
// When nothing matches the first label (index 0) is the default.
func MatchAgeGroup(days int, labels []string) int {
	months := days / 30
	for i, label := range labels {
		l := strings.ToLower(label)
		if lo, hi, ok := parseBracket(monthsBracket, l); ok && lo <= months && months <= hi {
			return i
		}
		if lo, hi, ok := parseBracket(daysBracket, l); ok && lo <= days && days <= hi {
			return i
		}
	}
	return 0
}

func parseBracket(re *regexp.Regexp, label string) (int, int, bool) {
	m := re.FindStringSubmatch(label)
	if m == nil {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// AgeSortKey normalizes a label's lower bound to days: days labels use the
// bound as is, months labels multiply it by 30.
func AgeSortKey(label string) int {
	s := strings.ReplaceAll(strings.ToLower(label), " ", "")
	m := leadingNumber.FindStringSubmatch(s)
	switch {
	case strings.Contains(s, "days"):
		if m == nil {
			return unknownAgeKey
		}
		n, _ := strconv.Atoi(m[1])
		return n
	case strings.Contains(s, "months"):
		if m == nil {
			return unknownAgeKey
		}
		n, _ := strconv.Atoi(m[1])
		return n * 30
	default:
		return unknownAgeKey
	}
}

// SortAgeGroups returns a copy of labels ordered by AgeSortKey. Ties keep input order.
func SortAgeGroups(labels []string) []string {
	out := append([]string(nil), labels...)
	sort.SliceStable(out, func(i, j int) bool { return AgeSortKey(out[i]) < AgeSortKey(out[j]) })
	return out
}

// AgeGroups lists the distinct age labels of a pack in presentation order.
func AgeGroups(pack *models.SurveyPack) []string {
	seen := map[string]struct{}{}
	labels := make([]string, 0)
	for _, q := range pack.Questions {
		if _, ok := seen[q.Age]; ok {
			continue
		}
		seen[q.Age] = struct{}{}
		labels = append(labels, q.Age)
	}
	// lexical first so the stable sort below is deterministic for equal keys
	sort.Strings(labels)
	return SortAgeGroups(labels)
}
