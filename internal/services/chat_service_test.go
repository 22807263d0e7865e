package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/soaringjerry/Previsit/internal/models"
)

type stubRetriever struct {
	passages []Passage
	err      error
	k        int
}

func (r *stubRetriever) Retrieve(_ context.Context, _ string, k int) ([]Passage, error) {
	r.k = k
	return r.passages, r.err
}

func TestChatAskUsesDocumentsAndHistory(t *testing.T) {
	model := &stubChatModel{enabled: true, replies: []string{"Guide says rest.", "Please keep the baby rested."}}
	ret := &stubRetriever{passages: []Passage{
		{Text: strings.Repeat("가", 1500), Source: "fever.md"},
		{Text: "Hydration matters.", Source: "care.txt"},
	}}
	svc := NewChatService(model, ret, 0, nil)

	history := []models.ChatMessage{{Role: "assistant", Content: Greeting}}
	for i := 0; i < 6; i++ {
		history = append(history, models.ChatMessage{Role: "user", Content: "msg" + string(rune('a'+i))})
	}
	reply, err := svc.Ask(context.Background(), history, "What about fever?")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if reply.Answer != "Please keep the baby rested." {
		t.Fatalf("answer = %q", reply.Answer)
	}
	if len(reply.Sources) != 2 || reply.Sources[0] != "fever.md" {
		t.Fatalf("sources = %v", reply.Sources)
	}
	if len(reply.Snippets) != 2 || utf8.RuneCountInString(reply.Snippets[0]) != 500 || reply.Snippets[1] != "Hydration matters." {
		t.Fatalf("snippets = %d %v", len(reply.Snippets), reply.Snippets[1:])
	}
	if ret.k != 3 {
		t.Fatalf("retrieved k = %d, want 3", ret.k)
	}
	if len(model.calls) != 2 || model.temps[0] != 0 || model.temps[1] != 0.3 {
		t.Fatalf("calls = %d temps = %v", len(model.calls), model.temps)
	}
	guideUser := model.calls[0][1].Content
	if strings.Count(guideUser, "가") != 1200 {
		t.Fatalf("passage not truncated to 1200 runes")
	}
	counsel := model.calls[1][0].Content
	if !strings.Contains(counsel, "[Medical Info] Guide says rest.") {
		t.Fatalf("counseling prompt missing guide answer: %q", counsel)
	}
	if strings.Contains(counsel, Greeting) || strings.Contains(counsel, "msga") || !strings.Contains(counsel, "user: msgb") {
		t.Fatalf("history window not applied: %q", counsel)
	}
}

func TestChatAskDegradesWithoutDocuments(t *testing.T) {
	model := &stubChatModel{enabled: true, replies: []string{"answer"}}
	svc := NewChatService(model, &stubRetriever{err: errors.New("index missing")}, 0, nil)
	reply, err := svc.Ask(context.Background(), nil, "hello")
	if err != nil || reply.Answer != "answer" {
		t.Fatalf("Ask = %+v, %v", reply, err)
	}
	if len(model.calls) != 1 {
		t.Fatalf("guide step should be skipped on retrieval failure, calls = %d", len(model.calls))
	}
	if len(reply.Sources) != 0 {
		t.Fatalf("sources = %v", reply.Sources)
	}
}

func TestChatAskErrors(t *testing.T) {
	svc := NewChatService(&stubChatModel{enabled: true}, nil, 0, nil)
	if _, err := svc.Ask(context.Background(), nil, "  "); err == nil {
		t.Fatalf("expected invalid error for empty message")
	}
	disabled := NewChatService(&stubChatModel{enabled: false}, nil, 0, nil)
	if _, err := disabled.Ask(context.Background(), nil, "hi"); !errors.Is(err, ErrAdvisorDisabled) {
		t.Fatalf("expected ErrAdvisorDisabled, got %v", err)
	}
	failing := NewChatService(&stubChatModel{enabled: true, err: errors.New("503")}, nil, 0, nil)
	_, err := failing.Ask(context.Background(), nil, "hi")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorBadGateway {
		t.Fatalf("expected bad gateway, got %v", err)
	}
}
