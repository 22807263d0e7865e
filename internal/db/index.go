package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/models"
)

// EntryFor builds the index row for a persisted submission.
func EntryFor(sub *models.Submission, path string) models.SubmissionEntry {
	e := models.SubmissionEntry{
		ID:            sub.ID,
		Path:          path,
		SubmittedAt:   sub.SubmittedAt,
		SubjectName:   sub.Subject.Name,
		Gender:        sub.Subject.Gender,
		AgeGroup:      sub.Subject.AgeGroup,
		MonthsOld:     sub.Subject.MonthsOld,
		ResponseCount: len(sub.Responses),
		HasSummary:    sub.AISummary != "",
	}
	if sub.Attachment != nil {
		e.Attachment = *sub.Attachment
	}
	return e
}

// SQLiteIndex keeps a queryable list of archived submissions. The JSON files
// stay the source of truth; the index can be rebuilt from them.
type SQLiteIndex struct {
	db  *sql.DB
	log *zap.Logger
}

// Open creates the database file's directory, opens it and applies migrations.
func Open(ctx context.Context, path, migrationsDir string, log *zap.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	idx, err := NewSQLiteIndex(sqlDB, log)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := RunMigrations(ctx, sqlDB, migrationsDir); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return idx, nil
}

func NewSQLiteIndex(db *sql.DB, log *zap.Logger) (*SQLiteIndex, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if log == nil {
		log = zap.NewNop()
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteIndex{db: db, log: log}, nil
}

func (s *SQLiteIndex) Close() error { return s.db.Close() }

func (s *SQLiteIndex) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Add inserts an entry; re-adding the same id or path is a no-op.
func (s *SQLiteIndex) Add(ctx context.Context, e models.SubmissionEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO submissions
		(id, path, submitted_at, subject_name, gender, age_group, months_old, response_count, has_summary, attachment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Path, e.SubmittedAt.UTC().Format(time.RFC3339Nano), e.SubjectName, e.Gender, e.AgeGroup,
		e.MonthsOld, e.ResponseCount, boolToInt64(e.HasSummary), toNullString(e.Attachment))
	if err != nil {
		return fmt.Errorf("index submission %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM submissions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// List returns entries newest first.
func (s *SQLiteIndex) List(ctx context.Context, limit, offset int) ([]models.SubmissionEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, submitted_at, subject_name, gender, age_group, months_old, response_count, has_summary, attachment
		FROM submissions ORDER BY submitted_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]models.SubmissionEntry, 0)
	for rows.Next() {
		e, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns the entry for id or nil when absent.
func (s *SQLiteIndex) Get(ctx context.Context, id string) (*models.SubmissionEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, path, submitted_at, subject_name, gender, age_group, months_old, response_count, has_summary, attachment
		FROM submissions WHERE id = ?`, id)
	e, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteIndex) scan(r scanner) (models.SubmissionEntry, error) {
	var (
		e          models.SubmissionEntry
		at         string
		hasSummary int64
		attachment sql.NullString
	)
	if err := r.Scan(&e.ID, &e.Path, &at, &e.SubjectName, &e.Gender, &e.AgeGroup, &e.MonthsOld, &e.ResponseCount, &hasSummary, &attachment); err != nil {
		return models.SubmissionEntry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		s.log.Warn("sqlite index: bad submitted_at", zap.String("id", e.ID), zap.Error(err))
	}
	e.SubmittedAt = t
	e.HasSummary = hasSummary != 0
	e.Attachment = attachment.String
	return e, nil
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
