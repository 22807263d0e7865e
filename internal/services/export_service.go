package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/soaringjerry/Previsit/internal/models"
)

// ReportRenderer writes a printable report of one submission.
type ReportRenderer interface {
	Render(w io.Writer, sub *models.Submission) error
}

// ArchiveReader gives clinicians read access to archived submissions.
type ArchiveReader interface {
	ListSubmissions(ctx context.Context, limit, offset int) ([]models.SubmissionEntry, error)
	// LoadSubmission returns nil when id is unknown.
	LoadSubmission(ctx context.Context, id string) (*models.Submission, error)
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	renderer ReportRenderer
	archive  ArchiveReader
}

func NewExportService(renderer ReportRenderer, archive ArchiveReader) *ExportService {
	return &ExportService{renderer: renderer, archive: archive}
}

// ReportFilename is the download name of a submission's report.
func ReportFilename(sub *models.Submission) string {
	name := strings.TrimSpace(sub.Subject.Name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	if name == "" {
		name = sub.ID
	}
	return fmt.Sprintf("Result_%s.pdf", name)
}

func (s *ExportService) ReportPDF(sub *models.Submission) (*ExportResult, error) {
	if sub == nil {
		return nil, ErrNoSubmission
	}
	if s.renderer == nil {
		return nil, NewUnavailableError("report export is not configured")
	}
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, sub); err != nil {
		return nil, NewInternalError("could not render the report", err)
	}
	return &ExportResult{Filename: ReportFilename(sub), ContentType: "application/pdf", Data: buf.Bytes()}, nil
}

// SubmissionPage is one page of the archive listing with the bounds that
// were actually applied.
type SubmissionPage struct {
	Items  []models.SubmissionEntry `json:"items"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// ListSubmissions returns one page of archived submissions. Out-of-range
// limits fall back to 50; negative offsets start at 0.
func (s *ExportService) ListSubmissions(ctx context.Context, limit, offset int) (*SubmissionPage, error) {
	if s.archive == nil {
		return nil, NewUnavailableError("submission index is not configured")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.archive.ListSubmissions(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.SubmissionEntry{}
	}
	return &SubmissionPage{Items: items, Limit: limit, Offset: offset}, nil
}

func (s *ExportService) Submission(ctx context.Context, id string) (*models.Submission, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewInvalidError("id required")
	}
	if s.archive == nil {
		return nil, NewUnavailableError("submission index is not configured")
	}
	sub, err := s.archive.LoadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, NewNotFoundError("submission not found")
	}
	return sub, nil
}

func (s *ExportService) ReportByID(ctx context.Context, id string) (*ExportResult, error) {
	sub, err := s.Submission(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ReportPDF(sub)
}
