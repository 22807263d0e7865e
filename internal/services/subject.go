package services

import (
	"strings"
	"time"

	"github.com/soaringjerry/Previsit/internal/models"
)

const dateLayout = "2006-01-02"

// SubjectInput is what the guardian types about the child.
type SubjectInput struct {
	Name   string `json:"name"`
	Gender string `json:"gender"`
	DOB    string `json:"dob"`
}

// BuildSubject derives the age fields from the date of birth. An empty DOB
// means "born today", the form's initial value. The name may still be empty;
// it is only required at submit time.
func BuildSubject(in SubjectInput, today time.Time) (models.Subject, error) {
	day := truncateDay(today)
	dob := day
	if s := strings.TrimSpace(in.DOB); s != "" {
		parsed, err := time.ParseInLocation(dateLayout, s, day.Location())
		if err != nil {
			return models.Subject{}, NewInvalidError("dob must be YYYY-MM-DD")
		}
		dob = parsed
	}
	if dob.After(day) {
		return models.Subject{}, NewInvalidError("dob cannot be in the future")
	}
	days := DaysBetween(dob, day)
	gender := strings.TrimSpace(in.Gender)
	if gender == "" {
		gender = "Male"
	}
	return models.Subject{
		Name:      strings.TrimSpace(in.Name),
		Gender:    gender,
		DOB:       dob.Format(dateLayout),
		DaysOld:   days,
		MonthsOld: days / 30,
	}, nil
}

// DaysBetween counts whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
