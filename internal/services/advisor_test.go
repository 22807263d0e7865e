package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/soaringjerry/Previsit/internal/ai"
	"github.com/soaringjerry/Previsit/internal/models"
)

type stubChatModel struct {
	mu      sync.Mutex
	enabled bool
	replies []string
	err     error
	calls   [][]ai.Message
	temps   []float64
}

func (m *stubChatModel) Enabled() bool { return m.enabled }

func (m *stubChatModel) Chat(_ context.Context, msgs []ai.Message, temp float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msgs)
	m.temps = append(m.temps, temp)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	out := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return out, nil
}

type stubAdvisor struct {
	mu            sync.Mutex
	feedback      string
	feedbackErr   error
	summary       string
	summaryErr    error
	feedbackCalls int
	summaryCalls  int
}

func (a *stubAdvisor) Feedback(context.Context, FeedbackRequest) (models.AdvisorResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feedbackCalls++
	return models.AdvisorResult{Text: a.feedback}, a.feedbackErr
}

func (a *stubAdvisor) Summarize(context.Context, SummaryRequest) (models.AdvisorResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaryCalls++
	return models.AdvisorResult{Text: a.summary}, a.summaryErr
}

func TestInterpretFeedback(t *testing.T) {
	cases := []struct{ in, want string }{
		{"PASS", ""},
		{"  PASS\n", ""},
		{"It is normal for this age.", ""},
		{"⚠️ Consider a hearing check.", "⚠️ Consider a hearing check."},
		{" ⚠️ Visit a clinic soon.  ", "⚠️ Visit a clinic soon."},
	}
	for _, tc := range cases {
		if got := interpretFeedback(tc.in); got != tc.want {
			t.Fatalf("interpretFeedback(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestModelAdvisorFeedbackPrompt(t *testing.T) {
	model := &stubChatModel{enabled: true, replies: []string{"⚠️ Check weight gain."}}
	adv := NewModelAdvisor(model)
	res, err := adv.Feedback(context.Background(), FeedbackRequest{QuestionText: "Weight", Answer: "3", MonthsOld: 4})
	if err != nil {
		t.Fatalf("Feedback error: %v", err)
	}
	if res.Text != "⚠️ Check weight gain." {
		t.Fatalf("feedback text = %q", res.Text)
	}
	if len(model.calls) != 1 || model.temps[0] != 0 {
		t.Fatalf("unexpected calls %+v temps %v", model.calls, model.temps)
	}
	user := model.calls[0][1].Content
	if !strings.Contains(user, "Age: 4 months") || !strings.Contains(user, "Answer: 3") {
		t.Fatalf("prompt missing data: %q", user)
	}
}

func TestSummaryContextSkipsNegatives(t *testing.T) {
	rs := []models.ResponseRecord{
		{Text: "Fever?", Answer: models.Answer{Text: "No"}},
		{Text: "Cough?", Answer: models.Answer{Text: "Often"}},
		{Text: "Rash?", Answer: models.Answer{Text: "None"}},
	}
	got := SummaryContext(rs)
	if strings.Contains(got, "Fever") || strings.Contains(got, "Rash") || !strings.Contains(got, "- Q: Cough?\n  A: Often") {
		t.Fatalf("SummaryContext = %q", got)
	}
	if SummaryContext(rs[:1]) != "No significant findings." {
		t.Fatalf("expected no findings text")
	}
	if SummaryContext(nil) != "No significant findings." {
		t.Fatalf("expected no findings text for empty input")
	}
}

func TestAdvisorServiceFeedbackCachesAndDegrades(t *testing.T) {
	adv := &stubAdvisor{feedback: "⚠️ note"}
	svc := NewAdvisorService(adv, 0, nil)
	req := FeedbackRequest{QuestionText: "Q", Answer: "A", MonthsOld: 2}
	for i := 0; i < 3; i++ {
		if got := svc.Feedback(context.Background(), req); got != "⚠️ note" {
			t.Fatalf("Feedback = %q", got)
		}
	}
	if adv.feedbackCalls != 1 {
		t.Fatalf("advisor called %d times, want 1", adv.feedbackCalls)
	}
	if got := svc.Feedback(context.Background(), FeedbackRequest{QuestionText: "Q"}); got != "" || adv.feedbackCalls != 1 {
		t.Fatalf("empty answer should skip advisor, got %q", got)
	}

	failing := NewAdvisorService(&stubAdvisor{feedbackErr: errors.New("timeout")}, 0, nil)
	if got := failing.Feedback(context.Background(), req); got != "" {
		t.Fatalf("failed feedback should be no opinion, got %q", got)
	}
	if got := NewAdvisorService(nil, 0, nil).Feedback(context.Background(), req); got != "" {
		t.Fatalf("disabled advisor returned %q", got)
	}
}

func TestAdvisorServiceFeedbackCacheIsBounded(t *testing.T) {
	adv := &stubAdvisor{feedback: "pass"}
	svc := NewAdvisorService(adv, 0, nil)
	ctx := context.Background()
	first := FeedbackRequest{QuestionText: "Q", Answer: "answer-0"}
	svc.Feedback(ctx, first)
	for i := 1; i <= feedbackCacheSize; i++ {
		svc.Feedback(ctx, FeedbackRequest{QuestionText: "Q", Answer: fmt.Sprintf("answer-%d", i)})
	}
	if n := svc.cache.Len(); n != feedbackCacheSize {
		t.Fatalf("cache len = %d, want %d", n, feedbackCacheSize)
	}
	before := adv.feedbackCalls
	svc.Feedback(ctx, first)
	if adv.feedbackCalls != before+1 {
		t.Fatalf("oldest entry should have been evicted")
	}
}

func TestAdvisorServiceSummarize(t *testing.T) {
	ok := NewAdvisorService(&stubAdvisor{summary: "Summary text"}, 0, nil)
	if got := ok.Summarize(context.Background(), SummaryRequest{}); got != "Summary text" {
		t.Fatalf("Summarize = %q", got)
	}
	failing := NewAdvisorService(&stubAdvisor{summaryErr: errors.New("boom")}, 0, nil)
	if got := failing.Summarize(context.Background(), SummaryRequest{}); got != "Error during AI analysis: boom" {
		t.Fatalf("failed Summarize = %q", got)
	}
	if got := NewAdvisorService(nil, 0, nil).Summarize(context.Background(), SummaryRequest{}); got != "" {
		t.Fatalf("disabled Summarize = %q", got)
	}
}
