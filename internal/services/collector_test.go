package services

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/soaringjerry/Previsit/internal/models"
)

func collectorQuestions() []models.Question {
	return []models.Question{
		{ID: "q1", Category: "Sleep", QType: "single", Text: "Sleeps well?"},
		{ID: "q2", Category: "Feeding", QType: "multi", Text: "Feeding method", Options: []string{"Breast", "Formula"}},
		{ID: "q3", Category: "Growth", QType: "numeric", Text: "Weight"},
		{ID: "q4", Category: "Sleep", QType: "textarea", Text: "Notes"},
		{ID: "q5", Category: "Sleep", QType: "scale", Text: "Night waking"},
	}
}

func TestCollectorRecordTransitions(t *testing.T) {
	c := NewCollector(collectorQuestions())

	res, err := c.Record("q1", json.RawMessage(`"Yes"`))
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if !res.Answered || !res.Transitioned {
		t.Fatalf("first answer should transition: %+v", res)
	}
	res, err = c.Record("q1", json.RawMessage(`"No"`))
	if err != nil || !res.Answered || res.Transitioned {
		t.Fatalf("changed answer = %+v, %v", res, err)
	}
	res, err = c.Record("q1", json.RawMessage(`null`))
	if err != nil || res.Answered {
		t.Fatalf("clearing answer = %+v, %v", res, err)
	}
	if _, ok := c.Answer("q1"); ok {
		t.Fatalf("cleared answer still stored")
	}
	res, err = c.Record("q1", json.RawMessage(`"Yes"`))
	if err != nil || !res.Transitioned {
		t.Fatalf("re-answer should transition again: %+v, %v", res, err)
	}
}

func TestCollectorParsesEachType(t *testing.T) {
	c := NewCollector(collectorQuestions())
	if _, err := c.Record("q2", json.RawMessage(`["Formula","Breast","Formula"]`)); err != nil {
		t.Fatalf("multi: %v", err)
	}
	if a, _ := c.Answer("q2"); !reflect.DeepEqual(a.Choices, []string{"Formula", "Breast"}) {
		t.Fatalf("multi choices = %v", a.Choices)
	}
	if _, err := c.Record("q3", json.RawMessage(`"6.5"`)); err != nil {
		t.Fatalf("numeric string: %v", err)
	}
	if a, _ := c.Answer("q3"); a.Number == nil || *a.Number != 6.5 {
		t.Fatalf("number = %+v", a)
	}
	if _, err := c.Record("q3", json.RawMessage(`7`)); err != nil {
		t.Fatalf("number: %v", err)
	}
	if _, err := c.Record("q4", json.RawMessage(`"<b>fussy</b> at night"`)); err != nil {
		t.Fatalf("text: %v", err)
	}
	if _, err := c.Record("q5", json.RawMessage(`"Often"`)); err != nil {
		t.Fatalf("scale default option: %v", err)
	}

	bad := map[string]string{
		"q1": `"Maybe"`,
		"q2": `["Bottle"]`,
		"q3": `"heavy"`,
		"q4": `42`,
		"q5": `"Rarely"`,
	}
	for id, raw := range bad {
		_, err := c.Record(id, json.RawMessage(raw))
		se, ok := AsServiceError(err)
		if !ok || se.Code != ErrorInvalid {
			t.Fatalf("%s %s: expected invalid error, got %v", id, raw, err)
		}
	}
	if _, err := c.Record("zz", json.RawMessage(`"Yes"`)); err == nil {
		t.Fatalf("expected not found for unknown question")
	}
}

func TestCollectorRejectsNonFiniteNumbers(t *testing.T) {
	c := NewCollector(collectorQuestions())
	for _, raw := range []string{`"NaN"`, `"Inf"`, `"-Infinity"`, `"+inf"`} {
		res, err := c.Record("q3", json.RawMessage(raw))
		se, ok := AsServiceError(err)
		if !ok || se.Code != ErrorInvalid || res.Answered {
			t.Fatalf("%s: result = %+v, err = %v", raw, res, err)
		}
	}
	if _, ok := c.Answer("q3"); ok {
		t.Fatalf("non-finite value was stored")
	}
	if _, err := c.Record("q3", json.RawMessage(`"-2.5e1"`)); err != nil {
		t.Fatalf("finite exponent form rejected: %v", err)
	}
	if _, err := json.Marshal(c.Responses()); err != nil {
		t.Fatalf("responses do not encode: %v", err)
	}
}

func TestCollectorResponsesFollowRenderingOrder(t *testing.T) {
	c := NewCollector(collectorQuestions())
	for id, raw := range map[string]string{"q1": `"Yes"`, "q2": `["Breast"]`, "q4": `"ok"`} {
		if _, err := c.Record(id, json.RawMessage(raw)); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}
	rs := c.Responses()
	ids := []string{}
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	// Feeding, then Sleep in pack order; q3 and q5 unanswered
	if want := []string{"q2", "q1", "q4"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("response order = %v, want %v", ids, want)
	}
	if answered, total := c.Progress(); answered != 3 || total != 5 {
		t.Fatalf("progress = %d/%d", answered, total)
	}
}

func TestCollectorKeepsAnswersAcrossSets(t *testing.T) {
	qs := collectorQuestions()
	c := NewCollector(qs[:2])
	if _, err := c.Record("q1", json.RawMessage(`"Yes"`)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	c.SetQuestions(qs[2:])
	if rs := c.Responses(); rs == nil || len(rs) != 0 {
		t.Fatalf("responses outside current set leaked: %#v", rs)
	}
	c.SetQuestions(qs)
	if _, ok := c.Answer("q1"); !ok {
		t.Fatalf("answer lost after switching back")
	}
}

func TestChoiceOptionsDefaults(t *testing.T) {
	if got := ChoiceOptions(models.Question{QType: "single"}); !reflect.DeepEqual(got, []string{"Yes", "No"}) {
		t.Fatalf("single defaults = %v", got)
	}
	if got := ChoiceOptions(models.Question{QType: "scale"}); len(got) != 4 {
		t.Fatalf("scale defaults = %v", got)
	}
	if got := ChoiceOptions(models.Question{QType: "text"}); got != nil {
		t.Fatalf("text options = %v", got)
	}
}
