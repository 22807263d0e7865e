package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/ai"
	"github.com/soaringjerry/Previsit/internal/models"
)

// Greeting opens every chat history.
const Greeting = "Hello! Ask me anything about the survey questions. I'm here to help."

const (
	retrieveK       = 3
	passageMaxChars = 1200
	snippetMaxChars = 500
	historyWindow   = 5
)

const guideSystemPrompt = `You are a pediatric guide assistant. Answer accurately and concisely in English based on the provided documents.
Do not infer information not present in the documents; prioritize general safety rules and recommendations to visit a hospital.`

// Passage is one retrieved document chunk.
type Passage struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Retriever finds document passages relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
}

// ChatReply is the assistant's answer plus the sources it was grounded on.
type ChatReply struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Snippets []string `json:"snippets"`
}

type ChatService struct {
	model     ChatModel
	retriever Retriever
	timeout   time.Duration
	log       *zap.Logger
}

// NewChatService builds the assistant. retriever may be nil, in which case
// answers come from the model alone.
func NewChatService(model ChatModel, retriever Retriever, timeout time.Duration, log *zap.Logger) *ChatService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{model: model, retriever: retriever, timeout: timeout, log: log}
}

func (s *ChatService) Enabled() bool {
	return s != nil && s.model != nil && s.model.Enabled()
}

// Ask answers question given the conversation so far. history must already
// include the question as its last user message.
func (s *ChatService) Ask(ctx context.Context, history []models.ChatMessage, question string) (*ChatReply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, NewInvalidError("message required")
	}
	if !s.Enabled() {
		return nil, ErrAdvisorDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply := &ChatReply{Sources: []string{}, Snippets: []string{}}
	guide := s.documentAnswer(ctx, question, reply)

	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		lines = append(lines, m.Role+": "+m.Content)
	}
	prompt := fmt.Sprintf("You are a kind and professional pediatric counseling AI.\nAnswer in English.\n[History] %s\n[Medical Info] %s\n[Current Question] %s",
		strings.Join(lines, "\n"), guide, question)
	answer, err := s.model.Chat(ctx, []ai.Message{{Role: "user", Content: prompt}}, 0.3)
	if err != nil {
		s.log.Warn("chat completion failed", zap.Error(err))
		return nil, NewBadGatewayError("the assistant is unavailable right now")
	}
	reply.Answer = answer
	return reply, nil
}

// documentAnswer runs the retrieval step. Any failure yields "" so the
// assistant still answers without documents.
func (s *ChatService) documentAnswer(ctx context.Context, question string, reply *ChatReply) string {
	if s.retriever == nil {
		return ""
	}
	passages, err := s.retriever.Retrieve(ctx, question, retrieveK)
	if err != nil {
		s.log.Warn("document retrieval failed", zap.Error(err))
		return ""
	}
	ctxText := "No documents"
	if len(passages) > 0 {
		parts := make([]string, 0, len(passages))
		for _, p := range passages {
			parts = append(parts, truncateRunes(p.Text, passageMaxChars))
			reply.Snippets = append(reply.Snippets, truncateRunes(p.Text, snippetMaxChars))
			if p.Source != "" {
				reply.Sources = append(reply.Sources, p.Source)
			}
		}
		ctxText = strings.Join(parts, "\n\n")
	}
	out, err := s.model.Chat(ctx, []ai.Message{
		{Role: "system", Content: guideSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Question: %s\nReference:\n%s\nAnswer based on the reference.", question, ctxText)},
	}, 0)
	if err != nil {
		s.log.Warn("document answer failed", zap.Error(err))
		return ""
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
