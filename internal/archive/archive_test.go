package archive

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/soaringjerry/Previsit/internal/models"
)

func sampleSubmission(at time.Time) *models.Submission {
	n := 3.5
	attachment := "rash.png"
	return &models.Submission{
		ID:          "abc123",
		SubmittedAt: at,
		Subject:     models.Subject{Name: "김하늘", Gender: "Female", DOB: "2025-01-02", DaysOld: 120, MonthsOld: 4, AgeGroup: "4~6 months"},
		Attachment:  &attachment,
		AISummary:   "Summary <b>ok</b> & fine — 요약",
		Responses: []models.ResponseRecord{
			{ID: "q1", Category: "Feeding", Text: "수유는 잘 하나요?", Answer: models.Answer{Text: "Yes"}},
			{ID: "q2", Category: "Growth", Text: "Kg?", Answer: models.Answer{Number: &n}},
			{ID: "q3", Category: "Sleep", Text: "Where?", Answer: models.Answer{Choices: []string{"Crib", "Bed"}}},
		},
	}
}

func TestPersistRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "responses")
	a := New(dir)
	at := time.Date(2025, 11, 19, 12, 30, 0, 0, time.UTC)
	sub := sampleSubmission(at)

	path, err := a.Persist(sub)
	if err != nil {
		t.Fatalf("Persist error: %v", err)
	}
	if filepath.Base(path) != "resp_20251119_123000.json" {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"김하늘", "<b>ok</b> & fine", "\n  \"child_info\""} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("file does not contain %q verbatim:\n%s", want, raw)
		}
	}

	got, err := a.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !got.SubmittedAt.Equal(at) {
		t.Fatalf("submitted_at = %v, want %v", got.SubmittedAt, at)
	}
	got.SubmittedAt = sub.SubmittedAt
	if !reflect.DeepEqual(got, sub) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, sub)
	}
}

func TestPersistSameSecondDoesNotOverwrite(t *testing.T) {
	a := New(t.TempDir())
	tokens := []string{"aaaa1111", "bbbb2222"}
	a.token = func() string {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}
	at := time.Date(2025, 11, 19, 12, 30, 0, 0, time.UTC)

	first := sampleSubmission(at)
	second := sampleSubmission(at.Add(400 * time.Millisecond))
	second.ID = "other"

	p1, err := a.Persist(first)
	if err != nil {
		t.Fatalf("first persist: %v", err)
	}
	p2, err := a.Persist(second)
	if err != nil {
		t.Fatalf("second persist: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("same path for both submissions: %s", p1)
	}
	if filepath.Base(p2) != "resp_20251119_123000_aaaa1111.json" {
		t.Fatalf("unexpected collision name %s", filepath.Base(p2))
	}
	s1, _ := a.Load(p1)
	s2, _ := a.Load(p2)
	if s1.ID != "abc123" || s2.ID != "other" {
		t.Fatalf("records overwritten: %q %q", s1.ID, s2.ID)
	}
	files, err := a.List()
	if err != nil || len(files) != 2 {
		t.Fatalf("List = %v, %v; want 2 files", files, err)
	}
}

func TestPersistEmptyResponses(t *testing.T) {
	a := New(t.TempDir())
	sub := &models.Submission{ID: "empty", SubmittedAt: time.Now().UTC()}
	path, err := a.Persist(sub)
	if err != nil {
		t.Fatalf("Persist error: %v", err)
	}
	got, err := a.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got.Responses == nil || len(got.Responses) != 0 {
		t.Fatalf("expected empty, non-nil responses; got %#v", got.Responses)
	}
	if got.Attachment != nil {
		t.Fatalf("attachment should be null")
	}
}

func TestPersistUncreatableDir(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := New(filepath.Join(blocker, "responses"))
	if _, err := a.Persist(sampleSubmission(time.Now().UTC())); err == nil {
		t.Fatalf("expected error when directory cannot be created")
	}
}

func TestListMissingDir(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "absent"))
	n, err := a.Count()
	if err != nil || n != 0 {
		t.Fatalf("Count = %d, %v; want 0, nil", n, err)
	}
}
