package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/soaringjerry/Previsit/internal/models"
)

var (
	defaultSingleOptions = []string{"Yes", "No"}
	defaultScaleOptions  = []string{"Never", "Sometimes", "Often", "Always"}
)

// ChoiceOptions returns the options a choice question renders, falling back
// to the built-in sets when the pack gives none.
func ChoiceOptions(q models.Question) []string {
	if len(q.Options) > 0 {
		return q.Options
	}
	switch q.Type() {
	case models.TypeSingle:
		return defaultSingleOptions
	case models.TypeScale:
		return defaultScaleOptions
	default:
		return nil
	}
}

// RecordResult describes the effect of one Record call.
type RecordResult struct {
	Question     models.Question
	Answer       models.Answer
	Answered     bool
	Transitioned bool
}

// Collector accumulates at most one answer per question of the current set.
// Answers survive a change of question set so switching age groups back and
// forth does not lose input.
type Collector struct {
	questions []models.Question
	byID      map[string]models.Question
	answers   map[string]models.Answer
}

func NewCollector(questions []models.Question) *Collector {
	c := &Collector{answers: map[string]models.Answer{}}
	c.SetQuestions(questions)
	return c
}

// SetQuestions swaps the rendered question set. Questions are kept in
// rendering order: category tabs first, pack order within a tab.
func (c *Collector) SetQuestions(questions []models.Question) {
	ordered := make([]models.Question, 0, len(questions))
	for _, g := range GroupByCategory(questions) {
		ordered = append(ordered, g.Questions...)
	}
	c.questions = ordered
	c.byID = make(map[string]models.Question, len(ordered))
	for _, q := range ordered {
		c.byID[q.ID] = q
	}
}

func (c *Collector) Questions() []models.Question {
	return append([]models.Question(nil), c.questions...)
}

// Record validates raw against the question's response type and stores it.
// A JSON null, empty string or empty array clears the answer.
func (c *Collector) Record(questionID string, raw json.RawMessage) (RecordResult, error) {
	q, ok := c.byID[questionID]
	if !ok {
		return RecordResult{}, NewNotFoundError(fmt.Sprintf("question %q is not in the current set", questionID))
	}
	ans, err := parseAnswer(q, raw)
	if err != nil {
		return RecordResult{}, err
	}
	_, had := c.answers[questionID]
	res := RecordResult{Question: q, Answer: ans}
	if ans.IsZero() {
		delete(c.answers, questionID)
		return res, nil
	}
	c.answers[questionID] = ans
	res.Answered = true
	res.Transitioned = !had
	return res, nil
}

// Answer returns the stored answer for a question, if any.
func (c *Collector) Answer(questionID string) (models.Answer, bool) {
	a, ok := c.answers[questionID]
	return a, ok
}

// Answers returns the answers of the current set keyed by question id.
func (c *Collector) Answers() map[string]models.Answer {
	out := make(map[string]models.Answer)
	for _, q := range c.questions {
		if a, ok := c.answers[q.ID]; ok {
			out[q.ID] = a
		}
	}
	return out
}

// Responses lists the answered questions of the current set. Unanswered
// questions are omitted; the result is never nil.
func (c *Collector) Responses() []models.ResponseRecord {
	out := make([]models.ResponseRecord, 0, len(c.answers))
	for _, q := range c.questions {
		a, ok := c.answers[q.ID]
		if !ok {
			continue
		}
		out = append(out, models.ResponseRecord{ID: q.ID, Category: q.Category, Text: q.Text, Answer: a})
	}
	return out
}

// Progress returns answered and total counts for the current set.
func (c *Collector) Progress() (answered, total int) {
	for _, q := range c.questions {
		if _, ok := c.answers[q.ID]; ok {
			answered++
		}
	}
	return answered, len(c.questions)
}

func parseAnswer(q models.Question, raw json.RawMessage) (models.Answer, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return models.Answer{}, nil
	}
	switch q.Type() {
	case models.TypeSingle, models.TypeScale:
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return models.Answer{}, NewInvalidError(fmt.Sprintf("question %s expects one option", q.ID))
		}
		if s == "" {
			return models.Answer{}, nil
		}
		if !contains(ChoiceOptions(q), s) {
			return models.Answer{}, NewInvalidError(fmt.Sprintf("question %s: %q is not an option", q.ID, s))
		}
		return models.Answer{Text: s}, nil
	case models.TypeMulti:
		var picks []string
		if err := json.Unmarshal(trimmed, &picks); err != nil {
			return models.Answer{}, NewInvalidError(fmt.Sprintf("question %s expects a list of options", q.ID))
		}
		if len(picks) == 0 {
			return models.Answer{}, nil
		}
		if len(q.Options) > 0 {
			for _, p := range picks {
				if !contains(q.Options, p) {
					return models.Answer{}, NewInvalidError(fmt.Sprintf("question %s: %q is not an option", q.ID, p))
				}
			}
		}
		return models.Answer{Choices: dedupe(picks)}, nil
	case models.TypeNumber:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err == nil {
			return models.Answer{Number: &f}, nil
		}
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			s = strings.TrimSpace(s)
			if s == "" {
				return models.Answer{}, nil
			}
			// ParseFloat accepts NaN and Inf spellings, which cannot be archived.
			if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return models.Answer{Number: &f}, nil
			}
		}
		return models.Answer{}, NewInvalidError(fmt.Sprintf("question %s expects a number", q.ID))
	default:
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return models.Answer{}, NewInvalidError(fmt.Sprintf("question %s expects text", q.ID))
		}
		if strings.TrimSpace(s) == "" {
			return models.Answer{}, nil
		}
		return models.Answer{Text: s}, nil
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
