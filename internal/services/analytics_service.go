package services

import (
	"context"
	"sort"

	"github.com/soaringjerry/Previsit/internal/models"
)

const analyticsPage = 200

type AnalyticsService struct {
	archive ArchiveReader
}

type AgeGroupCount struct {
	AgeGroup string `json:"age_group"`
	Count    int    `json:"count"`
}

type AnalyticsTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type AnalyticsSummary struct {
	TotalSubmissions int                   `json:"total_submissions"`
	WithSummary      int                   `json:"with_summary"`
	WithAttachment   int                   `json:"with_attachment"`
	AgeGroups        []AgeGroupCount       `json:"age_groups"`
	Timeseries       []AnalyticsTimeseries `json:"timeseries"`
}

func NewAnalyticsService(archive ArchiveReader) *AnalyticsService {
	return &AnalyticsService{archive: archive}
}

// Summary aggregates every indexed submission.
func (s *AnalyticsService) Summary(ctx context.Context) (*AnalyticsSummary, error) {
	if s.archive == nil {
		return nil, NewUnavailableError("submission index is not configured")
	}
	var entries []models.SubmissionEntry
	for offset := 0; ; offset += analyticsPage {
		page, err := s.archive.ListSubmissions(ctx, analyticsPage, offset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if len(page) < analyticsPage {
			break
		}
	}
	return summarize(entries), nil
}

func summarize(entries []models.SubmissionEntry) *AnalyticsSummary {
	out := &AnalyticsSummary{TotalSubmissions: len(entries)}
	byGroup := map[string]int{}
	byDay := map[string]int{}
	for _, e := range entries {
		if e.HasSummary {
			out.WithSummary++
		}
		if e.Attachment != "" {
			out.WithAttachment++
		}
		byGroup[e.AgeGroup]++
		byDay[e.SubmittedAt.UTC().Format("2006-01-02")]++
	}
	labels := make([]string, 0, len(byGroup))
	for l := range byGroup {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	labels = SortAgeGroups(labels)
	out.AgeGroups = make([]AgeGroupCount, 0, len(labels))
	for _, l := range labels {
		out.AgeGroups = append(out.AgeGroups, AgeGroupCount{AgeGroup: l, Count: byGroup[l]})
	}
	out.Timeseries = buildTimeseries(byDay)
	return out
}

func buildTimeseries(counts map[string]int) []AnalyticsTimeseries {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]AnalyticsTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, AnalyticsTimeseries{Date: d, Count: counts[d]})
	}
	return out
}
