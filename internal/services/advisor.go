package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/ai"
	"github.com/soaringjerry/Previsit/internal/models"
)

// FeedbackRequest is the input of a per-answer advisory call.
type FeedbackRequest struct {
	QuestionText string
	Answer       string
	MonthsOld    int
}

// SummaryRequest is the input of the end-of-survey clinical summary.
type SummaryRequest struct {
	Responses []models.ResponseRecord
	Subject   models.Subject
}

// Advisor is the boundary to the language model. Implementations return an
// empty Text when they have no opinion.
type Advisor interface {
	Feedback(ctx context.Context, req FeedbackRequest) (models.AdvisorResult, error)
	Summarize(ctx context.Context, req SummaryRequest) (models.AdvisorResult, error)
}

// ChatModel is the slice of the ai client the services rely on.
type ChatModel interface {
	Enabled() bool
	Chat(ctx context.Context, messages []ai.Message, temperature float64) (string, error)
}

// WarningMarker prefixes every advisory the model is allowed to surface.
const WarningMarker = "⚠️"

const passToken = "PASS"

const feedbackSystemPrompt = `You are a pediatric specialist AI.
Analyze the child's age (months), question, and guardian's answer to determine if 'Clinical Attention' is needed.

[Analysis Rules]
1. If the answer is within normal medical range or no urgent advice is needed, ONLY print "PASS". (No explanation)
2. If there is a suspicion of developmental delay or pathological symptoms requiring 'Attention', write a 1-sentence advice in the format below.
   Format: "⚠️ [Key Advice]"

[Precautions]
- Do NOT add fluff like "It is normal". ONLY output "PASS" or "⚠️ ...".
- Answer in English.`

const summarySystemPrompt = `You are an AI assistant (CDSS) for a pediatrician.
Analyze the patient's survey data and write a report in English.
[Rules]
1. Summarize key symptoms.
2. List potential suspected conditions (Probability: High/Medium).
3. Provide recommendation points for the doctor.
4. End with "※ Accurate diagnosis is made by a doctor."`

// negativeAnswers are left out of the summary context to keep it on findings.
var negativeAnswers = map[string]struct{}{"No": {}, "Not at all": {}, "None": {}}

// ModelAdvisor implements Advisor on top of a chat-completions model.
type ModelAdvisor struct {
	model ChatModel
}

func NewModelAdvisor(model ChatModel) *ModelAdvisor {
	return &ModelAdvisor{model: model}
}

func (a *ModelAdvisor) Feedback(ctx context.Context, req FeedbackRequest) (models.AdvisorResult, error) {
	user := fmt.Sprintf("[Data]\n- Age: %d months\n- Question: %s\n- Answer: %s\n\nAnalysis Result:", req.MonthsOld, req.QuestionText, req.Answer)
	out, err := a.model.Chat(ctx, []ai.Message{
		{Role: "system", Content: feedbackSystemPrompt},
		{Role: "user", Content: user},
	}, 0)
	if err != nil {
		return models.AdvisorResult{}, err
	}
	return models.AdvisorResult{Text: interpretFeedback(out)}, nil
}

func (a *ModelAdvisor) Summarize(ctx context.Context, req SummaryRequest) (models.AdvisorResult, error) {
	s := req.Subject
	user := fmt.Sprintf("[Patient Info]\nName: %s, Gender: %s\nAge: %d months (%d days old)\n\n[Survey Content]\n%s",
		s.Name, s.Gender, s.MonthsOld, s.DaysOld, SummaryContext(req.Responses))
	out, err := a.model.Chat(ctx, []ai.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: user},
	}, 0)
	if err != nil {
		return models.AdvisorResult{}, err
	}
	return models.AdvisorResult{Text: out}, nil
}

// interpretFeedback keeps only warnings; "PASS" and anything off-format is no opinion.
func interpretFeedback(out string) string {
	out = strings.TrimSpace(out)
	if out == passToken || !strings.HasPrefix(out, WarningMarker) {
		return ""
	}
	return out
}

// SummaryContext renders the noteworthy answers as Q/A lines for the summary prompt.
func SummaryContext(responses []models.ResponseRecord) string {
	var b strings.Builder
	for _, r := range responses {
		ans := r.Answer.String()
		if ans == "" {
			continue
		}
		if _, neg := negativeAnswers[ans]; neg {
			continue
		}
		fmt.Fprintf(&b, "- Q: %s\n  A: %s\n", r.Text, ans)
	}
	if b.Len() == 0 {
		return "No significant findings."
	}
	return b.String()
}

// AdvisorService applies the degradation rules around an optional Advisor:
// feedback failures become "no opinion" and summary failures become a
// visible error string. Neither ever aborts the survey flow.
type AdvisorService struct {
	advisor Advisor
	timeout time.Duration
	log     *zap.Logger
	cache   *lru.Cache[FeedbackRequest, string]
}

// feedbackCacheSize bounds the memo of per-answer feedback.
const feedbackCacheSize = 2048

// NewAdvisorService wraps advisor; a nil advisor disables AI features.
func NewAdvisorService(advisor Advisor, timeout time.Duration, log *zap.Logger) *AdvisorService {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	cache, _ := lru.New[FeedbackRequest, string](feedbackCacheSize)
	return &AdvisorService{advisor: advisor, timeout: timeout, log: log, cache: cache}
}

func (s *AdvisorService) Enabled() bool { return s != nil && s.advisor != nil }

// Feedback returns advisory text or "" for no opinion.
func (s *AdvisorService) Feedback(ctx context.Context, req FeedbackRequest) string {
	if !s.Enabled() || strings.TrimSpace(req.Answer) == "" {
		return ""
	}
	if v, ok := s.cache.Get(req); ok {
		return v
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.advisor.Feedback(ctx, req)
	if err != nil {
		s.log.Warn("answer feedback unavailable", zap.Error(err))
		return ""
	}
	text := strings.TrimSpace(res.Text)
	s.cache.Add(req, text)
	return text
}

// Summarize returns the clinical summary, "" when AI is disabled, or an
// error message in place of the summary when the call fails.
func (s *AdvisorService) Summarize(ctx context.Context, req SummaryRequest) string {
	if !s.Enabled() {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.advisor.Summarize(ctx, req)
	if err != nil {
		s.log.Warn("clinical summary failed", zap.Error(err))
		return "Error during AI analysis: " + err.Error()
	}
	return res.Text
}
