package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/models"
)

// SubmissionArchive is the durable, one-file-per-submission store.
type SubmissionArchive interface {
	Persist(sub *models.Submission) (string, error)
	Count() (int, error)
}

// SubmissionIndex is an optional queryable index over the archive.
type SubmissionIndex interface {
	Record(ctx context.Context, sub *models.Submission, path string) error
	Count(ctx context.Context) (int, error)
}

// SubmitRequest carries a session snapshot into the submission workflow.
type SubmitRequest struct {
	Subject    models.Subject
	Responses  []models.ResponseRecord
	Attachment string
}

type SubmitResult struct {
	Submission *models.Submission
	Path       string
}

// SubmissionObserver receives the outcome of every submit attempt.
type SubmissionObserver func(outcome string)

type SubmissionService struct {
	archive  SubmissionArchive
	index    SubmissionIndex
	advisor  *AdvisorService
	log      *zap.Logger
	now      func() time.Time
	idGen    func() string
	observer SubmissionObserver
}

func NewSubmissionService(archive SubmissionArchive, index SubmissionIndex, advisor *AdvisorService, log *zap.Logger) *SubmissionService {
	if log == nil {
		log = zap.NewNop()
	}
	if advisor == nil {
		advisor = NewAdvisorService(nil, 0, log)
	}
	return &SubmissionService{
		archive: archive,
		index:   index,
		advisor: advisor,
		log:     log,
		now:     time.Now,
		idGen:   defaultSubmissionID,
	}
}

func defaultSubmissionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Observe registers a hook called with "ok", "invalid" or "failed".
func (s *SubmissionService) Observe(fn SubmissionObserver) { s.observer = fn }

func (s *SubmissionService) observe(outcome string) {
	if s.observer != nil {
		s.observer(outcome)
	}
}

// Submit summarizes and persists one submission. The summary step can only
// degrade the summary text; persistence failures are returned to the caller.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if strings.TrimSpace(req.Subject.Name) == "" {
		s.observe("invalid")
		return nil, ErrNameRequired
	}
	responses := req.Responses
	if responses == nil {
		responses = []models.ResponseRecord{}
	}

	summary := s.advisor.Summarize(ctx, SummaryRequest{Responses: responses, Subject: req.Subject})

	sub := &models.Submission{
		ID:          s.idGen(),
		SubmittedAt: s.now(),
		Subject:     req.Subject,
		AISummary:   summary,
		Responses:   responses,
	}
	if a := strings.TrimSpace(req.Attachment); a != "" {
		sub.Attachment = &a
	}

	path, err := s.archive.Persist(sub)
	if err != nil {
		s.log.Error("persist submission failed", zap.String("submission_id", sub.ID), zap.Error(err))
		s.observe("failed")
		return nil, NewInternalError("could not save the submission, please try again", err)
	}
	if s.index != nil {
		if err := s.index.Record(ctx, sub, path); err != nil {
			s.log.Warn("index submission failed", zap.String("submission_id", sub.ID), zap.Error(err))
		}
	}
	s.log.Info("submission persisted",
		zap.String("submission_id", sub.ID),
		zap.String("path", path),
		zap.Int("responses", len(sub.Responses)),
		zap.Bool("summary", sub.AISummary != ""),
	)
	s.observe("ok")
	return &SubmitResult{Submission: sub, Path: path}, nil
}

// ArchivedCount returns how many submissions exist, preferring the index.
func (s *SubmissionService) ArchivedCount(ctx context.Context) (int, error) {
	if s.index != nil {
		n, err := s.index.Count(ctx)
		if err == nil {
			return n, nil
		}
		s.log.Warn("index count failed, falling back to archive", zap.Error(err))
	}
	return s.archive.Count()
}
