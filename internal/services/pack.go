package services

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/soaringjerry/Previsit/internal/models"
)

// PackError reports the first schema violation found in a survey pack.
type PackError struct {
	Path   string
	Reason string
}

func (e *PackError) Error() string { return e.Path + ": " + e.Reason }

// LoadPack reads and validates the survey pack at path.
func LoadPack(path string) (*models.SurveyPack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open survey pack: %w", err)
	}
	defer func() { _ = f.Close() }()
	pack, err := ParsePack(f)
	if err != nil {
		return nil, fmt.Errorf("load survey pack %s: %w", path, err)
	}
	return pack, nil
}

// ParsePack decodes a pack document and rejects questions missing required fields.
func ParsePack(r io.Reader) (*models.SurveyPack, error) {
	var pack models.SurveyPack
	if err := json.NewDecoder(r).Decode(&pack); err != nil {
		return nil, fmt.Errorf("decode survey pack: %w", err)
	}
	if err := ValidatePack(&pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

func ValidatePack(pack *models.SurveyPack) error {
	if len(pack.Questions) == 0 {
		return &PackError{Path: "questions", Reason: "at least one question required"}
	}
	seen := make(map[string]struct{}, len(pack.Questions))
	for i, q := range pack.Questions {
		required := []struct {
			field string
			value string
		}{
			{"id", q.ID},
			{"age", q.Age},
			{"category", q.Category},
			{"qtype", q.QType},
			{"text", q.Text},
		}
		for _, r := range required {
			if strings.TrimSpace(r.value) == "" {
				return &PackError{Path: fmt.Sprintf("questions[%d].%s", i, r.field), Reason: "required"}
			}
		}
		if _, dup := seen[q.ID]; dup {
			return &PackError{Path: fmt.Sprintf("questions[%d].id", i), Reason: fmt.Sprintf("duplicate id %q", q.ID)}
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}
