package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/models"
)

// SurveySession is the explicit per-guardian state: subject, selected age
// group, collected answers and chat history.
type SurveySession struct {
	mu sync.Mutex

	ID        string
	Subject   models.Subject
	AgeGroup  string
	Collector *Collector
	Chat      []models.ChatMessage
	Last      *SubmitResult
	UpdatedAt time.Time
}

// SessionStore keeps sessions between requests.
type SessionStore interface {
	PutSession(s *SurveySession)
	GetSession(id string) *SurveySession
}

// SessionView is the read model returned to the form.
type SessionView struct {
	ID        string                   `json:"id"`
	Subject   models.Subject           `json:"subject"`
	AgeGroups []string                 `json:"age_groups"`
	AgeGroup  string                   `json:"age_group"`
	Groups    []CategoryGroup          `json:"groups"`
	Answers   map[string]models.Answer `json:"answers"`
	Answered  int                      `json:"answered"`
	Total     int                      `json:"total"`
	Chat      []models.ChatMessage     `json:"chat"`
	Submitted bool                     `json:"submitted"`
}

// AnswerResult is returned after recording one answer.
type AnswerResult struct {
	QuestionID string        `json:"question_id"`
	Answer     models.Answer `json:"answer"`
	Answered   bool          `json:"answered"`
	Feedback   string        `json:"feedback,omitempty"`
	Others     int           `json:"others"`
	Progress   int           `json:"answered_count"`
	Total      int           `json:"total"`
}

type SurveyService struct {
	pack        *models.SurveyPack
	ageGroups   []string
	store       SessionStore
	advisor     *AdvisorService
	submissions *SubmissionService
	chat        *ChatService
	log         *zap.Logger
	now         func() time.Time
	idGen       func() string
}

func NewSurveyService(pack *models.SurveyPack, store SessionStore, advisor *AdvisorService, submissions *SubmissionService, chat *ChatService, log *zap.Logger) *SurveyService {
	if log == nil {
		log = zap.NewNop()
	}
	if advisor == nil {
		advisor = NewAdvisorService(nil, 0, log)
	}
	return &SurveyService{
		pack:        pack,
		ageGroups:   AgeGroups(pack),
		store:       store,
		advisor:     advisor,
		submissions: submissions,
		chat:        chat,
		log:         log,
		now:         time.Now,
		idGen:       uuid.NewString,
	}
}

func (s *SurveyService) Pack() *models.SurveyPack { return s.pack }

func (s *SurveyService) AgeGroups() []string { return append([]string(nil), s.ageGroups...) }

func (s *SurveyService) matchGroup(days int) string {
	if len(s.ageGroups) == 0 {
		return ""
	}
	return s.ageGroups[MatchAgeGroup(days, s.ageGroups)]
}

func (s *SurveyService) hasGroup(label string) bool {
	return contains(s.ageGroups, label)
}

func (s *SurveyService) session(id string) (*SurveySession, error) {
	sess := s.store.GetSession(id)
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// StartSession creates a session for the subject. The age group follows the
// DOB unless ageGroup names one explicitly.
func (s *SurveyService) StartSession(in SubjectInput, ageGroup string) (*SessionView, error) {
	subject, err := BuildSubject(in, s.now())
	if err != nil {
		return nil, err
	}
	group := s.matchGroup(subject.DaysOld)
	if ageGroup = strings.TrimSpace(ageGroup); ageGroup != "" {
		if !s.hasGroup(ageGroup) {
			return nil, NewInvalidError(fmt.Sprintf("unknown age group %q", ageGroup))
		}
		group = ageGroup
	}
	subject.AgeGroup = group
	sess := &SurveySession{
		ID:        s.idGen(),
		Subject:   subject,
		AgeGroup:  group,
		Collector: NewCollector(FilterByAge(s.pack.Questions, group)),
		Chat:      []models.ChatMessage{{Role: "assistant", Content: Greeting}},
		UpdatedAt: s.now(),
	}
	s.store.PutSession(sess)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

func (s *SurveyService) View(id string) (*SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

// UpdateSubject replaces the subject details. A changed DOB re-runs the age
// matcher and switches to the matched group.
func (s *SurveyService) UpdateSubject(id string, in SubjectInput) (*SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	subject, err := BuildSubject(in, s.now())
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if subject.DOB != sess.Subject.DOB {
		s.selectGroup(sess, s.matchGroup(subject.DaysOld))
	}
	subject.AgeGroup = sess.AgeGroup
	sess.Subject = subject
	sess.UpdatedAt = s.now()
	return s.view(sess), nil
}

// SelectAgeGroup overrides the matched group.
func (s *SurveyService) SelectAgeGroup(id, label string) (*SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if !s.hasGroup(label) {
		return nil, NewInvalidError(fmt.Sprintf("unknown age group %q", label))
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.selectGroup(sess, label)
	sess.UpdatedAt = s.now()
	return s.view(sess), nil
}

func (s *SurveyService) selectGroup(sess *SurveySession, label string) {
	sess.AgeGroup = label
	sess.Subject.AgeGroup = label
	sess.Collector.SetQuestions(FilterByAge(s.pack.Questions, label))
}

// Answer records one answer. When the question ends up answered the result
// carries the archive count; advisory text is requested only when the
// question was previously unanswered. Both are best effort.
func (s *SurveyService) Answer(ctx context.Context, id, questionID string, raw json.RawMessage) (*AnswerResult, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	res, err := sess.Collector.Record(questionID, raw)
	if err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	answered, total := sess.Collector.Progress()
	months := sess.Subject.MonthsOld
	sess.UpdatedAt = s.now()
	sess.mu.Unlock()

	out := &AnswerResult{
		QuestionID: questionID,
		Answer:     res.Answer,
		Answered:   res.Answered,
		Progress:   answered,
		Total:      total,
	}
	if !res.Answered {
		return out, nil
	}
	if s.submissions != nil {
		if n, err := s.submissions.ArchivedCount(ctx); err == nil {
			out.Others = n
		} else {
			s.log.Warn("answer stats unavailable", zap.Error(err))
		}
	}
	if !res.Transitioned {
		return out, nil
	}
	// adapter latency must not hold the session lock
	out.Feedback = s.advisor.Feedback(ctx, FeedbackRequest{
		QuestionText: res.Question.Text,
		Answer:       res.Answer.String(),
		MonthsOld:    months,
	})
	return out, nil
}

// Submit persists the session's current answers. The name is required.
func (s *SurveyService) Submit(ctx context.Context, id, attachment string) (*SubmitResult, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if s.submissions == nil {
		return nil, NewUnavailableError("submissions are not configured")
	}
	sess.mu.Lock()
	req := SubmitRequest{
		Subject:    sess.Subject,
		Responses:  sess.Collector.Responses(),
		Attachment: attachment,
	}
	sess.mu.Unlock()

	res, err := s.submissions.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.Last = res
	if res.Submission.AISummary != "" {
		sess.Chat = append(sess.Chat, models.ChatMessage{
			Role:    "assistant",
			Content: fmt.Sprintf("📝 **[Analysis Result]** has arrived.\n\n%s\n\nFeel free to ask if you have questions.", res.Submission.AISummary),
		})
	}
	sess.UpdatedAt = s.now()
	return res, nil
}

// LastSubmission returns the most recent submission of the session.
func (s *SurveyService) LastSubmission(id string) (*models.Submission, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.Last == nil {
		return nil, ErrNoSubmission
	}
	return sess.Last.Submission, nil
}

// Chat appends the guardian's message, asks the assistant and records its reply.
func (s *SurveyService) Chat(ctx context.Context, id, message string) (*ChatReply, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, NewInvalidError("message required")
	}
	if s.chat == nil {
		return nil, ErrAdvisorDisabled
	}
	sess.mu.Lock()
	sess.Chat = append(sess.Chat, models.ChatMessage{Role: "user", Content: message})
	history := append([]models.ChatMessage(nil), sess.Chat...)
	sess.mu.Unlock()

	reply, err := s.chat.Ask(ctx, history, message)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	sess.Chat = append(sess.Chat, models.ChatMessage{Role: "assistant", Content: reply.Answer})
	sess.UpdatedAt = s.now()
	sess.mu.Unlock()
	return reply, nil
}

func (s *SurveyService) view(sess *SurveySession) *SessionView {
	questions := sess.Collector.Questions()
	answered, total := sess.Collector.Progress()
	return &SessionView{
		ID:        sess.ID,
		Subject:   sess.Subject,
		AgeGroups: s.AgeGroups(),
		AgeGroup:  sess.AgeGroup,
		Groups:    renderGroups(questions),
		Answers:   sess.Collector.Answers(),
		Answered:  answered,
		Total:     total,
		Chat:      append([]models.ChatMessage(nil), sess.Chat...),
		Submitted: sess.Last != nil,
	}
}

// renderGroups groups questions into tabs with each choice question's
// effective options filled in.
func renderGroups(questions []models.Question) []CategoryGroup {
	groups := GroupByCategory(questions)
	for _, g := range groups {
		for i, q := range g.Questions {
			if len(q.Options) == 0 {
				g.Questions[i].Options = append([]string(nil), ChoiceOptions(q)...)
			}
		}
	}
	return groups
}
