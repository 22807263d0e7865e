package services

import (
	"testing"
	"time"
)

func TestBuildSubject(t *testing.T) {
	today := time.Date(2025, 11, 19, 15, 30, 0, 0, time.UTC)
	s, err := BuildSubject(SubjectInput{Name: "  Mina ", DOB: "2025-08-21"}, today)
	if err != nil {
		t.Fatalf("BuildSubject error: %v", err)
	}
	if s.Name != "Mina" || s.Gender != "Male" {
		t.Fatalf("unexpected subject %+v", s)
	}
	if s.DaysOld != 90 || s.MonthsOld != 3 {
		t.Fatalf("age = %d days / %d months, want 90 / 3", s.DaysOld, s.MonthsOld)
	}

	born, err := BuildSubject(SubjectInput{Gender: "Female"}, today)
	if err != nil {
		t.Fatalf("empty dob: %v", err)
	}
	if born.DaysOld != 0 || born.DOB != "2025-11-19" || born.Gender != "Female" {
		t.Fatalf("empty dob subject = %+v", born)
	}
}

func TestBuildSubjectRejectsBadDOB(t *testing.T) {
	today := time.Date(2025, 11, 19, 0, 0, 0, 0, time.UTC)
	for _, dob := range []string{"2025-11-20", "19/11/2025"} {
		_, err := BuildSubject(SubjectInput{DOB: dob}, today)
		se, ok := AsServiceError(err)
		if !ok || se.Code != ErrorInvalid {
			t.Fatalf("dob %q: expected invalid error, got %v", dob, err)
		}
	}
}
