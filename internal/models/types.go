package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResponseType is the answer shape a question expects.
type ResponseType string

const (
	TypeSingle ResponseType = "single"
	TypeMulti  ResponseType = "multi"
	TypeScale  ResponseType = "scale"
	TypeNumber ResponseType = "number"
	TypeText   ResponseType = "text"
)

// NormalizeResponseType maps the qtype spellings found in survey packs onto
// the known response types. Anything unrecognized is rendered as free text.
func NormalizeResponseType(raw string) ResponseType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "single":
		return TypeSingle
	case "multi", "multiple":
		return TypeMulti
	case "scale":
		return TypeScale
	case "number", "numeric":
		return TypeNumber
	default:
		return TypeText
	}
}

// Question is one survey item. Optional guidance fields are empty when absent.
type Question struct {
	ID       string   `json:"id"`
	Age      string   `json:"age"`
	Category string   `json:"category"`
	QType    string   `json:"qtype"`
	Text     string   `json:"text"`
	Number   string   `json:"number,omitempty"`
	Options  []string `json:"options,omitempty"`
	Help     string   `json:"help,omitempty"`

	Criteria          string `json:"criteria,omitempty"`
	Actions           string `json:"actions,omitempty"`
	Counseling        string `json:"counseling,omitempty"`
	ItemGuide         string `json:"item_guide,omitempty"`
	PositiveParenting string `json:"positive_parenting,omitempty"`
	Caution           string `json:"caution,omitempty"`
	CaregiverNote     string `json:"caregiver_note,omitempty"`
	PEItem            string `json:"pe_item,omitempty"`
	PECaution         string `json:"pe_caution,omitempty"`
	Judgment          string `json:"judgment,omitempty"`
	EduTopic          string `json:"edu_topic,omitempty"`
}

// Type returns the normalized response type of the question.
func (q Question) Type() ResponseType { return NormalizeResponseType(q.QType) }

// SurveyPack is the full question set loaded from one source document.
type SurveyPack struct {
	Meta      map[string]any `json:"meta,omitempty"`
	Questions []Question     `json:"questions"`
}

// Subject describes the child the survey is about. MonthsOld is DaysOld/30,
// an approximation kept on purpose; it is not a calendar month count.
type Subject struct {
	Name      string `json:"name"`
	Gender    string `json:"gender"`
	DOB       string `json:"dob"`
	DaysOld   int    `json:"days_old"`
	MonthsOld int    `json:"months_old"`
	AgeGroup  string `json:"age_group"`
}

// Answer holds a raw answer value. Exactly one of Text, Choices or Number is
// set for an answered question; the zero value means unanswered.
// It encodes as a plain JSON string, array or number.
type Answer struct {
	Text    string
	Choices []string
	Number  *float64
}

// IsZero reports whether the answer is "unanswered".
func (a Answer) IsZero() bool {
	return strings.TrimSpace(a.Text) == "" && len(a.Choices) == 0 && a.Number == nil
}

// String renders the answer the way it is shown to people and models.
func (a Answer) String() string {
	switch {
	case a.Number != nil:
		return strconv.FormatFloat(*a.Number, 'f', -1, 64)
	case len(a.Choices) > 0:
		return strings.Join(a.Choices, ", ")
	default:
		return a.Text
	}
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch {
	case a.Number != nil:
		return json.Marshal(*a.Number)
	case len(a.Choices) > 0:
		return marshalNoEscape(a.Choices)
	case a.Text != "":
		return marshalNoEscape(a.Text)
	default:
		return []byte("null"), nil
	}
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	*a = Answer{}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '"':
		return json.Unmarshal(trimmed, &a.Text)
	case '[':
		return json.Unmarshal(trimmed, &a.Choices)
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return fmt.Errorf("answer: unsupported value %s", string(trimmed))
		}
		a.Number = &f
		return nil
	}
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ResponseRecord is one answered question as stored in a submission.
type ResponseRecord struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Text     string `json:"text"`
	Answer   Answer `json:"answer"`
}

// Submission is one completed guardian response. Once persisted it is never rewritten.
type Submission struct {
	ID          string           `json:"id"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Subject     Subject          `json:"child_info"`
	Attachment  *string          `json:"attachment"`
	AISummary   string           `json:"ai_summary"`
	Responses   []ResponseRecord `json:"responses"`
}

// SubmissionEntry is the searchable summary of one archived submission.
type SubmissionEntry struct {
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	SubmittedAt   time.Time `json:"submitted_at"`
	SubjectName   string    `json:"subject_name"`
	Gender        string    `json:"gender"`
	AgeGroup      string    `json:"age_group"`
	MonthsOld     int       `json:"months_old"`
	ResponseCount int       `json:"response_count"`
	HasSummary    bool      `json:"has_summary"`
	Attachment    string    `json:"attachment,omitempty"`
}

// AdvisorResult is the fixed shape every model call returns.
type AdvisorResult struct {
	Text string `json:"text"`
}

// ChatMessage is one turn of the assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
