package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/soaringjerry/Previsit/internal/models"
)

func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "index.db"), "", nil)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndexAddListGet(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	base := time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC)
	attachment := "photo.jpg"
	older := &models.Submission{ID: "s1", SubmittedAt: base, Subject: models.Subject{Name: "Ann", AgeGroup: "0~3 months"}}
	newer := &models.Submission{
		ID:          "s2",
		SubmittedAt: base.Add(time.Hour),
		Subject:     models.Subject{Name: "Ben", Gender: "Male", AgeGroup: "4~6 months", MonthsOld: 5},
		Attachment:  &attachment,
		AISummary:   "ok",
		Responses:   []models.ResponseRecord{{ID: "q1"}, {ID: "q2"}},
	}
	for i, sub := range []*models.Submission{older, newer} {
		if err := idx.Add(ctx, EntryFor(sub, filepath.Join("responses", sub.ID+".json"))); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	// duplicate add is ignored
	if err := idx.Add(ctx, EntryFor(older, filepath.Join("responses", "s1.json"))); err != nil {
		t.Fatalf("duplicate Add: %v", err)
	}

	n, err := idx.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count = %d, %v; want 2", n, err)
	}

	list, err := idx.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "s2" || list[1].ID != "s1" {
		t.Fatalf("List order = %+v, want s2, s1", list)
	}
	if !list[0].HasSummary || list[0].ResponseCount != 2 || list[0].Attachment != "photo.jpg" {
		t.Fatalf("entry fields not stored: %+v", list[0])
	}
	if !list[0].SubmittedAt.Equal(newer.SubmittedAt) {
		t.Fatalf("submitted_at = %v", list[0].SubmittedAt)
	}

	got, err := idx.Get(ctx, "s1")
	if err != nil || got == nil || got.SubjectName != "Ann" {
		t.Fatalf("Get s1 = %+v, %v", got, err)
	}
	missing, err := idx.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("Get missing = %+v, %v; want nil, nil", missing, err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)
	if err := RunMigrations(ctx, idx.db, ""); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
	var applied int
	if err := idx.db.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied migrations = %d, want 1", applied)
	}
}
